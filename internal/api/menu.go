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

type MenuHandler struct {
	store Store
}

func NewMenuHandler(st Store) *MenuHandler {
	return &MenuHandler{store: st}
}

// GetOptions returns the menu options in declaration order.
func (h *MenuHandler) GetOptions(c *gin.Context) {
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc.MenuOptions)
}

// CreateOption appends a new option. Options are active unless the body says
// otherwise.
func (h *MenuHandler) CreateOption(c *gin.Context) {
	opt := models.MenuOption{Active: true}
	if err := c.ShouldBindJSON(&opt); err != nil {
		badRequest(c, err)
		return
	}
	opt.ID = ""
	if err := validateOption(opt); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.store.UpsertOption(c.Request.Context(), opt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// UpdateOption replaces an existing option, keeping its id. An omitted active
// flag keeps the current value.
func (h *MenuHandler) UpdateOption(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	i := doc.OptionIndex(id)
	if i < 0 {
		respondError(c, store.ErrNotFound)
		return
	}

	opt := models.MenuOption{Active: doc.MenuOptions[i].Active}
	if err := c.ShouldBindJSON(&opt); err != nil {
		badRequest(c, err)
		return
	}
	opt.ID = id
	if err := validateOption(opt); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.store.UpsertOption(c.Request.Context(), opt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *MenuHandler) DeleteOption(c *gin.Context) {
	if err := h.store.DeleteOption(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Option deleted successfully"})
}

// ToggleOption flips the active flag.
func (h *MenuHandler) ToggleOption(c *gin.Context) {
	active, err := h.store.ToggleOption(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": active})
}

func validateOption(opt models.MenuOption) error {
	if strings.TrimSpace(opt.Title) == "" {
		return errors.New("title is required")
	}
	switch opt.ResponseMode {
	case "", models.ResponseSingle, models.ResponseMulti:
	default:
		return fmt.Errorf("responseMode must be %q or %q", models.ResponseSingle, models.ResponseMulti)
	}
	switch opt.BotStatusDirective {
	case models.DirectiveNone, models.DirectivePauseAll, models.DirectiveUnpauseAll:
	default:
		return fmt.Errorf("unknown botStatusDirective %q", opt.BotStatusDirective)
	}
	if opt.PreDelayMs < 0 || opt.UserPauseMinutes < 0 {
		return errors.New("preDelayMs and userPauseMinutes must be >= 0")
	}
	return nil
}
