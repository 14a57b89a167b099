package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/listings"
	"github.com/vietddude/librarian/internal/infra/quota"
	"github.com/vietddude/librarian/internal/infra/requests"
	"github.com/vietddude/librarian/internal/maintenance/batch"
	"github.com/vietddude/librarian/internal/maintenance/health"
)

const defaultHistoryLimit = 10

// UserIDHeader carries the caller identity set by the upstream proxy.
const UserIDHeader = "X-User-Id"

const (
	msgDisabled       = "Request integration is disabled"
	msgNoServer       = "Unable to connect to any configured request server"
	msgUnavailable    = "Unable to connect to request server"
	msgQueryRequired  = "Query parameter is required"
	msgInvalidPage    = "Page must be a positive integer"
	msgSearchFailed   = "Failed to search request server"
	msgInvalidID      = "Media id must be an integer"
	msgNotFound       = "Media not found"
	msgInvalidBody    = "mediaType (movie or tv) and mediaId are required"
	msgUserRequired   = "User identity is required"
	msgRequestFailed  = "Failed to request media in request server"
	msgRequestError   = "Failed to request media"
	msgCountries      = "Unable to load available countries"
	msgListingsOff    = "Listings integration is disabled"
	msgListingsDown   = "Unable to connect to listings server"
	msgImageLimit     = "Daily image download limit reached"
	msgLockedOut      = "Listings provider is temporarily locked out"
	msgInvalidImage   = "Image path must be relative"
	msgImageFailed    = "Failed to fetch image"
	msgRunInProgress  = "A run is already in progress"
	msgRunStartFailed = "Failed to start run"
)

func handleHealth(hc HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := hc.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if report.SystemStatus == health.StatusCritical {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": report.SystemStatus})
	}
}

func handleHealthDetailed(hc HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, hc.CheckHealth(c.Request.Context()))
	}
}

func handleRequestStatus(svc RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := svc.Status(c.Request.Context())
		switch {
		case errors.Is(err, requests.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "message": msgDisabled})
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "message": msgNoServer})
		default:
			c.JSON(http.StatusOK, gin.H{"connected": true, "serverUrl": url})
		}
	}
}

func handleSearch(svc RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if strings.TrimSpace(query) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgQueryRequired})
			return
		}
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidPage})
			return
		}

		body, err := svc.Search(c.Request.Context(), query, page)
		switch {
		case errors.Is(err, requests.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgDisabled})
		case errors.Is(err, requests.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
		case err != nil:
			slog.Error("Error searching request server", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgSearchFailed})
		default:
			c.Data(http.StatusOK, "application/json", body)
		}
	}
}

func handleDetails(svc RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		mediaID, err := strconv.Atoi(c.Param("mediaId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidID})
			return
		}

		body, err := svc.Details(c.Request.Context(), c.Param("mediaType"), mediaID)
		switch {
		case errors.Is(err, requests.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgDisabled})
		case errors.Is(err, requests.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
		case err != nil:
			slog.Debug("Media details lookup failed", "error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
		default:
			c.Data(http.StatusOK, "application/json", body)
		}
	}
}

type submitRequest struct {
	MediaType string `json:"mediaType" binding:"required,oneof=movie tv"`
	MediaID   int    `json:"mediaId"   binding:"required"`
}

func handleSubmit(svc RequestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body submitRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidBody})
			return
		}
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgUserRequired})
			return
		}

		resp, err := svc.Submit(c.Request.Context(), userID, body.MediaType, body.MediaID)
		var se *gateway.StatusError
		switch {
		case errors.Is(err, requests.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgDisabled})
		case errors.Is(err, requests.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgUnavailable})
		case errors.As(err, &se):
			slog.Warn("Media request rejected", "status", se.StatusCode, "body", string(se.Body))
			c.JSON(http.StatusBadRequest, gin.H{"error": msgRequestFailed})
		case err != nil:
			slog.Error("Error requesting media", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": msgRequestError})
		default:
			c.Data(http.StatusOK, "application/json", resp)
		}
	}
}

func handleCountries(svc ListingsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := svc.GetAvailableCountries(c.Request.Context())
		if err != nil {
			slog.Warn("Country list unavailable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgCountries})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

func handleImage(svc ListingsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uri := strings.TrimPrefix(c.Param("uri"), "/")
		if uri == "" || strings.Contains(uri, "://") {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidImage})
			return
		}

		body, err := svc.FetchImage(c.Request.Context(), uri)
		var pe *quota.ProviderError
		switch {
		case errors.Is(err, listings.ErrImageLimitActive):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgImageLimit})
		case errors.Is(err, listings.ErrLockedOut):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgLockedOut})
		case errors.Is(err, listings.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgListingsOff})
		case errors.Is(err, listings.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgListingsDown})
		case errors.As(err, &pe) && pe.Category() == quota.CategoryImageQuotaExceeded:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgImageLimit})
		case errors.As(err, &pe) && pe.Category() == quota.CategoryLockoutWithCooldown:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgLockedOut})
		case err != nil:
			slog.Warn("Image fetch failed", "uri", uri, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": msgImageFailed})
		default:
			c.Data(http.StatusOK, http.DetectContentType(body), body)
		}
	}
}

func handleImageLimit(svc ListingsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"active": svc.IsImageDailyLimitActive(), "resetsAt": nil}
		if resets := svc.ImageLimitResetsAt(); !resets.IsZero() {
			resp["resetsAt"] = resets.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleRunTrigger(svc MaintenanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := svc.Trigger(c.Request.Context())
		switch {
		case errors.Is(err, batch.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": msgRunInProgress})
		case err != nil:
			slog.Error("Failed to start maintenance run", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgRunStartFailed})
		default:
			c.JSON(http.StatusAccepted, gin.H{"runId": id})
		}
	}
}

func handleRunStatus(svc MaintenanceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
		if err != nil || limit < 1 {
			limit = defaultHistoryLimit
		}
		history, err := svc.History(c.Request.Context(), limit)
		if err != nil {
			slog.Warn("Failed to load run history", "error", err)
		}
		if history == nil {
			history = []*domain.Run{}
		}
		c.JSON(http.StatusOK, gin.H{"status": svc.Status(), "history": history})
	}
}
