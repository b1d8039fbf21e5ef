// Package api serves the admin surface: menu options, schedules, pauses,
// the configuration document, logs, analytics, media uploads and manual sends.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"whatsapp-autoresponder/internal/automation"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Store is the part of the document store the admin handlers use.
type Store interface {
	Snapshot(ctx context.Context) (models.Document, error)
	UpsertOption(ctx context.Context, opt models.MenuOption) (models.MenuOption, error)
	DeleteOption(ctx context.Context, id string) error
	ToggleOption(ctx context.Context, id string) (bool, error)
	UpsertScheduled(ctx context.Context, m models.ScheduledMessage) (models.ScheduledMessage, error)
	DeleteScheduled(ctx context.Context, id string) error
	SetPause(ctx context.Context, contactID string, expiresAt time.Time) error
	ClearPause(ctx context.Context, contactID string) error
	SetGlobalPause(ctx context.Context, paused bool) error
	UpdateSettings(ctx context.Context, settings models.Settings, defaultMessage string, media models.GlobalMedia) error
	Replace(ctx context.Context, doc models.Document) error
	Reload(ctx context.Context) error
}

// Sender delivers composed content to a recipient.
type Sender interface {
	Send(ctx context.Context, to string, content models.Content) error
}

type Deps struct {
	Store     Store
	Sender    Sender
	Notifier  automation.Notifier // may be nil
	MediaRoot string
	Logger    zerolog.Logger
}

// Register mounts every admin route on g.
func Register(g *gin.RouterGroup, d Deps) {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	menu := NewMenuHandler(d.Store)
	schedules := NewScheduleHandler(d.Store)
	pauses := NewPauseHandler(d.Store, d.Notifier)
	dashboard := NewDashboardHandler(d.Store)
	wa := NewWhatsAppHandler(d.Sender, d.MediaRoot, d.Logger)

	g.GET("/menu/options", menu.GetOptions)
	g.POST("/menu/options", menu.CreateOption)
	g.PUT("/menu/options/:id", menu.UpdateOption)
	g.DELETE("/menu/options/:id", menu.DeleteOption)
	g.POST("/menu/options/:id/toggle", menu.ToggleOption)

	g.GET("/schedules", schedules.GetSchedules)
	g.POST("/schedules", schedules.CreateSchedule)
	g.PUT("/schedules/:id", schedules.UpdateSchedule)
	g.DELETE("/schedules/:id", schedules.DeleteSchedule)

	g.GET("/pauses", pauses.GetPauses)
	g.PUT("/pauses/:contact", pauses.PauseContact)
	g.DELETE("/pauses/:contact", pauses.ResumeContact)
	g.POST("/bot/pause", pauses.PauseBot)
	g.POST("/bot/resume", pauses.ResumeBot)

	g.GET("/config", dashboard.GetConfig)
	g.PUT("/config", dashboard.ReplaceConfig)
	g.POST("/config/reload", dashboard.ReloadConfig)
	g.PUT("/settings", dashboard.UpdateSettings)
	g.GET("/logs", dashboard.GetLogs)
	g.GET("/analytics", dashboard.GetAnalytics)

	g.POST("/media", wa.UploadMedia)
	g.POST("/send", wa.SendMessage)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}

// respondError maps store errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
