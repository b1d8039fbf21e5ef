package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"whatsapp-autoresponder/internal/automation"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"
	"whatsapp-autoresponder/internal/whatsapp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type WhatsAppHandler struct {
	sender    Sender
	mediaRoot string
	logger    zerolog.Logger
}

func NewWhatsAppHandler(sender Sender, mediaRoot string, logger zerolog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{sender: sender, mediaRoot: mediaRoot, logger: logger}
}

type sendRequest struct {
	To string `json:"to" binding:"required"`
	models.Content
}

// SendMessage composes text and media the same way options do and sends it
// right away.
func (h *WhatsAppHandler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ResponseMode == "" {
		req.ResponseMode = models.ResponseSingle
	}

	err := h.sender.Send(c.Request.Context(), req.To, req.Content)
	switch {
	case errors.Is(err, automation.ErrEmptyContent):
		badRequest(c, err)
	case err != nil:
		h.logger.Error().Err(err).Str("to", req.To).Msg("manual send")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send message: " + err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "Message sent"})
	}
}

// mediaKindFor maps a sniffed MIME type to the media slot it can fill.
func mediaKindFor(mime string) (transport.MediaKind, bool) {
	switch {
	case mime == "image/gif":
		return transport.MediaGIF, true
	case mime == "image/webp":
		return transport.MediaSticker, true
	case strings.HasPrefix(mime, "image/"):
		return transport.MediaImage, true
	case strings.HasPrefix(mime, "video/"):
		return transport.MediaVideo, true
	case strings.HasPrefix(mime, "audio/"):
		return transport.MediaAudio, true
	case mime == "application/pdf":
		return transport.MediaPDF, true
	}
	return "", false
}

// UploadMedia stores a multipart "file" under the media root and returns the
// reference to put in an option or schedule.
func (h *WhatsAppHandler) UploadMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, whatsapp.MaxMediaBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	if len(data) > whatsapp.MaxMediaBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	mt := mimetype.Detect(data)
	kind, ok := mediaKindFor(mt.String())
	if !ok {
		for p := mt.Parent(); p != nil && !ok; p = p.Parent() {
			kind, ok = mediaKindFor(p.String())
		}
	}
	if !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported media type " + mt.String()})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = mt.Extension()
	}
	name := uuid.NewString() + ext
	if err := os.MkdirAll(h.mediaRoot, 0o755); err != nil {
		respondError(c, err)
		return
	}
	if err := os.WriteFile(filepath.Join(h.mediaRoot, name), data, 0o644); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info().Str("file", name).Str("mime", mt.String()).Int("bytes", len(data)).Msg("media uploaded")
	c.JSON(http.StatusCreated, gin.H{
		"ref":      name,
		"kind":     kind,
		"mime":     mt.String(),
		"size":     len(data),
		"filename": header.Filename,
	})
}
