// Package quota classifies provider error codes and tracks the quota and
// lockout windows they open.
//
// This package contains:
//   - Code / Category: the provider error taxonomy and its single mapping
//   - ProviderError: typed error carrying a decoded provider code
//   - State: process-wide daily-limit and lockout flags with explicit reset rules
package quota

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code is an error code returned in a provider response body.
type Code int

const (
	CodeInvalidUser         Code = 4001
	CodeInvalidHash         Code = 4003
	CodeAccountLocked       Code = 4004
	CodeAccountExpired      Code = 4005
	CodeTokenExpired        Code = 4006
	CodePasswordRequired    Code = 4008
	CodeMaxLoginAttempts    Code = 4009
	CodeTemporaryLockout    Code = 4010
	CodeMaxImageDownloads   Code = 5002
	CodeMaxScheduleRequests Code = 5003
)

// Category groups provider codes by how callers must react.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryAuthFailure
	CategoryAccountLocked
	CategoryTokenExpired
	CategoryImageQuotaExceeded
	CategoryMetadataQuotaExceeded
	CategoryLockoutWithCooldown
)

var categoryNames = map[Category]string{
	CategoryUnknown:               "unknown",
	CategoryAuthFailure:           "auth_failure",
	CategoryAccountLocked:         "account_locked",
	CategoryTokenExpired:          "token_expired",
	CategoryImageQuotaExceeded:    "image_quota_exceeded",
	CategoryMetadataQuotaExceeded: "metadata_quota_exceeded",
	CategoryLockoutWithCooldown:   "lockout_with_cooldown",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// IsQuota reports whether the category is a request budget signal rather than
// a hard failure.
func (c Category) IsQuota() bool {
	return c == CategoryImageQuotaExceeded ||
		c == CategoryMetadataQuotaExceeded ||
		c == CategoryLockoutWithCooldown
}

// Classify maps a provider code to its category. This is the only place codes
// are interpreted.
func Classify(code Code) Category {
	switch code {
	case CodeInvalidUser, CodeInvalidHash, CodePasswordRequired:
		return CategoryAuthFailure
	case CodeAccountLocked, CodeAccountExpired, CodeMaxLoginAttempts:
		return CategoryAccountLocked
	case CodeTokenExpired:
		return CategoryTokenExpired
	case CodeMaxImageDownloads:
		return CategoryImageQuotaExceeded
	case CodeMaxScheduleRequests:
		return CategoryMetadataQuotaExceeded
	case CodeTemporaryLockout:
		return CategoryLockoutWithCooldown
	default:
		return CategoryUnknown
	}
}

// ProviderError is a decoded provider error body.
type ProviderError struct {
	Code     Code   `json:"code"`
	Message  string `json:"message"`
	Response string `json:"response"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d (%s): %s", e.Code, e.Category(), e.Message)
}

// Category classifies the error code.
func (e *ProviderError) Category() Category {
	return Classify(e.Code)
}

// ParseError decodes a provider error body. It returns nil when the body carries
// no error code.
func ParseError(body []byte) *ProviderError {
	var pe ProviderError
	if err := json.Unmarshal(body, &pe); err != nil {
		return nil
	}
	if pe.Code == 0 {
		return nil
	}
	return &pe
}

// CategoryOf extracts the category from an error chain.
func CategoryOf(err error) Category {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category()
	}
	return CategoryUnknown
}
