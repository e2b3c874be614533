package provider

import (
	"context"
	"errors"
	"net/http"

	"dialtrack/internal/contacts"
	"dialtrack/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrUnknownCallRef means no attempt or contact owns the reported call id.
var ErrUnknownCallRef = errors.New("provider: unknown call ref")

// CallSettler applies a provider-reported outcome to the store.
// Implementations must be idempotent per call ref: applying the same report
// twice leaves contact and attempt state unchanged after the second apply.
type CallSettler interface {
	SettleCall(ctx context.Context, callRef string, status contacts.Status, durationSeconds int, recordingURL string) error
}

// WebhookHandler receives the provider's call-report push.
//
// It only parses, maps the status onto the closed enum, resolves the
// duration and delegates. The poller path writes the same values through
// the same settler, so ordering between the two does not matter.
type WebhookHandler struct {
	Settler CallSettler
}

func (h WebhookHandler) HandleCallReport(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Settler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settler not configured"})
		return
	}

	var report CallReport
	if err := c.ShouldBindJSON(&report); err != nil {
		log.Warn("call report parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if report.CallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id is required"})
		return
	}

	status, ok := contacts.ParseStatus(report.Status)
	if !ok {
		log.Warn("call report with unknown status", "call_id", report.CallID, "status", report.Status)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	duration := ResolveDuration(report)

	err := h.Settler.SettleCall(c.Request.Context(), report.CallID, status, duration, report.RecordingURL)
	if errors.Is(err, ErrUnknownCallRef) {
		// The provider can replay reports for calls we no longer track.
		log.Warn("call report for unknown ref", "call_id", report.CallID)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "unknown call ref ignored"})
		return
	}
	if err != nil {
		log.Error("call settle failed", "call_id", report.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settle failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
