package domain

import (
	"strconv"
	"strings"
	"time"
)

type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// Item is a single library entry handed to the maintenance runner.
type Item struct {
	ID           string
	Name         string
	Path         string
	MediaType    MediaType
	DateModified time.Time
}

// FailureKey identifies one version of an item. Editing the item changes
// DateModified and therefore the key.
type FailureKey string

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and 1970-01-01.
const ticksAtUnixEpoch int64 = 621355968000000000

// Ticks returns t as 100ns intervals since 0001-01-01 UTC.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return ticksAtUnixEpoch + t.Unix()*10_000_000 + int64(t.Nanosecond()/100)
}

// NewFailureKey builds the key as path followed by the modification ticks.
func NewFailureKey(item Item) FailureKey {
	return FailureKey(item.Path + strconv.FormatInt(Ticks(item.DateModified), 10))
}

// Equal compares keys case-insensitively.
func (k FailureKey) Equal(other FailureKey) bool {
	return strings.EqualFold(string(k), string(other))
}

// Normalized is the form used for set membership.
func (k FailureKey) Normalized() string {
	return strings.ToLower(string(k))
}
