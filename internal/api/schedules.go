package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/store"

	"github.com/gin-gonic/gin"
)

type ScheduleHandler struct {
	store Store
}

func NewScheduleHandler(st Store) *ScheduleHandler {
	return &ScheduleHandler{store: st}
}

// GetSchedules lists scheduled messages, optionally filtered by ?status=.
func (h *ScheduleHandler) GetSchedules(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	status := models.ScheduleStatus(c.Query("status"))
	out := make([]models.ScheduledMessage, 0, len(doc.ScheduledMessages))
	for _, m := range doc.ScheduledMessages {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	c.JSON(http.StatusOK, out)
}

// CreateSchedule queues a new message. It always starts pending.
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var m models.ScheduledMessage
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	m.ID = ""
	m.Status = models.StatusPending
	if err := validateSchedule(m); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.store.UpsertScheduled(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// UpdateSchedule replaces a scheduled message. Without an explicit status the
// item is re-armed as pending.
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if doc.ScheduledIndex(id) < 0 {
		respondError(c, store.ErrNotFound)
		return
	}

	var m models.ScheduledMessage
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	m.ID = id
	if m.Status == "" {
		m.Status = models.StatusPending
	}
	if err := validateSchedule(m); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.store.UpsertScheduled(c.Request.Context(), m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.store.DeleteScheduled(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted successfully"})
}

func validateSchedule(m models.ScheduledMessage) error {
	if strings.TrimSpace(m.Recipient) == "" {
		return errors.New("recipient is required")
	}
	if m.SendAt.IsZero() {
		return errors.New("sendAt is required")
	}
	switch m.Recurrence {
	case "", models.RecurrenceNone, models.RecurrenceHourly, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
	default:
		return fmt.Errorf("unknown recurrence %q", m.Recurrence)
	}
	switch m.Status {
	case models.StatusPending, models.StatusSent:
	default:
		return fmt.Errorf("unknown status %q", m.Status)
	}
	switch m.ResponseMode {
	case "", models.ResponseSingle, models.ResponseMulti:
	default:
		return fmt.Errorf("responseMode must be %q or %q", models.ResponseSingle, models.ResponseMulti)
	}
	if m.TextBody == "" && m.Media == (models.MediaRefs{}) {
		return errors.New("textBody or media is required")
	}
	return nil
}
