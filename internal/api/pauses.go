package api

import (
	"net/http"
	"sort"
	"time"

	"whatsapp-autoresponder/internal/automation"
	"whatsapp-autoresponder/internal/transport"

	"github.com/gin-gonic/gin"
)

type PauseHandler struct {
	store    Store
	pauses   *automation.PauseManager
	notifier automation.Notifier
	now      func() time.Time
}

func NewPauseHandler(st Store, notifier automation.Notifier) *PauseHandler {
	return &PauseHandler{
		store:    st,
		pauses:   automation.NewPauseManager(st),
		notifier: notifier,
		now:      time.Now,
	}
}

type pauseView struct {
	ContactID        string    `json:"contactId"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RemainingMinutes int       `json:"remainingMinutes"`
}

// GetPauses lists the contacts whose pause has not expired yet.
func (h *PauseHandler) GetPauses(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	now := h.now()
	pauses := make([]pauseView, 0, len(doc.PauseRegistry))
	for id, exp := range doc.PauseRegistry {
		expiresAt := time.UnixMilli(exp)
		if !expiresAt.After(now) {
			continue
		}
		pauses = append(pauses, pauseView{
			ContactID:        id,
			ExpiresAt:        expiresAt,
			RemainingMinutes: int(expiresAt.Sub(now).Round(time.Minute) / time.Minute),
		})
	}
	sort.Slice(pauses, func(i, j int) bool { return pauses[i].ExpiresAt.Before(pauses[j].ExpiresAt) })
	c.JSON(http.StatusOK, gin.H{"globalPause": doc.GlobalPause, "contacts": pauses})
}

// PauseContact silences the bot for one contact.
func (h *PauseHandler) PauseContact(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	contactID := transport.NormalizeRecipient(c.Param("contact"))
	expiresAt, err := h.pauses.EnterPause(c.Request.Context(), contactID, req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.Notify(automation.EventPause, automation.PauseEvent{ContactID: contactID, Paused: true, ExpiresAt: &expiresAt})
	c.JSON(http.StatusOK, pauseView{ContactID: contactID, ExpiresAt: expiresAt, RemainingMinutes: req.Minutes})
}

func (h *PauseHandler) ResumeContact(c *gin.Context) {
	contactID := transport.NormalizeRecipient(c.Param("contact"))
	if err := h.store.ClearPause(c.Request.Context(), contactID); err != nil {
		respondError(c, err)
		return
	}
	h.notifier.Notify(automation.EventPause, automation.PauseEvent{ContactID: contactID, Paused: false})
	c.JSON(http.StatusOK, gin.H{"contactId": contactID, "paused": false})
}

func (h *PauseHandler) PauseBot(c *gin.Context)  { h.setGlobal(c, true) }
func (h *PauseHandler) ResumeBot(c *gin.Context) { h.setGlobal(c, false) }

func (h *PauseHandler) setGlobal(c *gin.Context, paused bool) {
	if err := h.store.SetGlobalPause(c.Request.Context(), paused); err != nil {
		respondError(c, err)
		return
	}
	h.notifier.Notify(automation.EventPause, automation.PauseEvent{Global: true, Paused: paused})
	c.JSON(http.StatusOK, gin.H{"globalPause": paused})
}
