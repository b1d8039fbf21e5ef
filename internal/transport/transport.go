// Package transport defines the chat capability the engine talks to and the
// inbound message shape every transport adapter produces.
package transport

import (
	"context"
	"errors"
	"strings"

	"whatsapp-autoresponder/internal/models"
)

// ErrMediaUnavailable is returned when a media reference cannot be resolved
// (missing file, unreachable URL). Callers degrade to the caption.
var ErrMediaUnavailable = errors.New("transport: media unavailable")

type Presence string

const (
	PresenceNone      Presence = "none"
	PresenceTyping    Presence = "typing"
	PresenceRecording Presence = "recording"
)

type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaGIF     MediaKind = "gif"
	MediaPDF     MediaKind = "pdf"
	MediaVideo   MediaKind = "video"
	MediaAudio   MediaKind = "audio"
	MediaSticker MediaKind = "sticker"
)

// MediaMessage is one outbound media item. Ref is an absolute path or an
// http(s) URL.
type MediaMessage struct {
	Kind     MediaKind
	Ref      string
	Filename string
	Caption  string
	// Voice sends audio as a push-to-talk note.
	Voice bool
}

// Transport is the outbound side of a chat session.
type Transport interface {
	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to string, m MediaMessage) error
	SendLocation(ctx context.Context, to string, loc models.Location) error
	SendInteractiveList(ctx context.Context, to string, list models.InteractiveList) error
	SendButtons(ctx context.Context, to, text string, buttons []models.Button) error
	SetPresence(ctx context.Context, to string, p Presence) error
}

// Inbound is a received message, already reduced to what the engine needs.
type Inbound struct {
	From     string
	Name     string
	Text     string
	IsGroup  bool
	FromMe   bool
	IsStatus bool
	Reply    Reply
}

// NormalizeRecipient strips the WhatsApp address suffixes so contacts are
// keyed by bare phone number.
func NormalizeRecipient(id string) string {
	id = strings.TrimSpace(id)
	for _, suffix := range []string{"@c.us", "@s.whatsapp.net"} {
		id = strings.TrimSuffix(id, suffix)
	}
	return strings.TrimPrefix(id, "+")
}
