package api

import (
	"net/http"
	"strconv"
	"time"

	"whatsapp-autoresponder/internal/models"

	"github.com/gin-gonic/gin"
)

const defaultLogLimit = 50

type DashboardHandler struct {
	store Store
}

func NewDashboardHandler(st Store) *DashboardHandler {
	return &DashboardHandler{store: st}
}

// GetConfig returns the whole document.
func (h *DashboardHandler) GetConfig(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ReplaceConfig swaps in a whole document from the editor.
func (h *DashboardHandler) ReplaceConfig(c *gin.Context) {
	var doc models.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, err)
		return
	}
	for _, opt := range doc.MenuOptions {
		if err := validateOption(opt); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := h.store.Replace(c.Request.Context(), doc); err != nil {
		respondError(c, err)
		return
	}
	h.GetConfig(c)
}

// ReloadConfig re-reads the backend.
func (h *DashboardHandler) ReloadConfig(c *gin.Context) {
	if err := h.store.Reload(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration reloaded"})
}

type settingsRequest struct {
	Settings       models.Settings    `json:"settings"`
	DefaultMessage string             `json:"defaultMessage"`
	GlobalMedia    models.GlobalMedia `json:"globalMedia"`
}

// UpdateSettings replaces the document-level knobs. Fields left out of the
// body keep their current values.
func (h *DashboardHandler) UpdateSettings(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	req := settingsRequest{Settings: doc.Settings, DefaultMessage: doc.DefaultMessage, GlobalMedia: doc.GlobalMedia}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Settings.HandoffMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handoffMinutes must be >= 0"})
		return
	}
	if err := h.store.UpdateSettings(c.Request.Context(), req.Settings, req.DefaultMessage, req.GlobalMedia); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// GetLogs returns the newest message log entries first, ?limit= capped at
// the ring size.
func (h *DashboardHandler) GetLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	entries := doc.MessageLog
	if limit > len(entries) {
		limit = len(entries)
	}
	out := make([]models.MessageLogEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	c.JSON(http.StatusOK, out)
}

// GetAnalytics summarizes votes and collection sizes.
func (h *DashboardHandler) GetAnalytics(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	var stats struct {
		Votes            models.Votes `json:"votes"`
		TotalOptions     int          `json:"total_options"`
		ActiveOptions    int          `json:"active_options"`
		PendingSchedules int          `json:"pending_schedules"`
		SentSchedules    int          `json:"sent_schedules"`
		PausedContacts   int          `json:"paused_contacts"`
		LoggedMessages   int          `json:"logged_messages"`
		AnsweredContacts int          `json:"answered_contacts"`
		GlobalPause      bool         `json:"global_pause"`
	}
	stats.Votes = doc.Votes
	stats.TotalOptions = len(doc.MenuOptions)
	for _, o := range doc.MenuOptions {
		if o.Active {
			stats.ActiveOptions++
		}
	}
	for _, m := range doc.ScheduledMessages {
		if m.Status == models.StatusSent {
			stats.SentSchedules++
		} else {
			stats.PendingSchedules++
		}
	}
	now := time.Now().UnixMilli()
	for _, exp := range doc.PauseRegistry {
		if exp >= now {
			stats.PausedContacts++
		}
	}
	stats.LoggedMessages = len(doc.MessageLog)
	stats.AnsweredContacts = len(doc.ResponseHistory)
	stats.GlobalPause = doc.GlobalPause
	c.JSON(http.StatusOK, stats)
}
