package automation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"whatsapp-autoresponder/internal/metrics"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/textnorm"
	"whatsapp-autoresponder/internal/transport"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "whatsapp-autoresponder/automation"

// Store is what the engine and scheduler need from the document store.
type Store interface {
	PauseStore
	Snapshot(ctx context.Context) (models.Document, error)
	AppendLog(ctx context.Context, e models.MessageLogEntry) error
	SetGlobalPause(ctx context.Context, paused bool) error
	RecordResponse(ctx context.Context, contactID, text string) error
	RecordVote(ctx context.Context, yes bool) (models.Votes, error)
	MarkScheduledSent(ctx context.Context, id string, dispatchedAt time.Time, next *time.Time) error
}

// Notifier receives live events for the dashboard feed.
type Notifier interface {
	Notify(event string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}

// Event names published by the engine.
const (
	EventMessage = "message"
	EventPause   = "pause"
)

// PauseEvent is published whenever a contact or the whole bot is paused or
// resumed.
type PauseEvent struct {
	ContactID string     `json:"contactId,omitempty"`
	Global    bool       `json:"global,omitempty"`
	Paused    bool       `json:"paused"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Inbound outcomes, used as metric labels and span attributes.
const (
	outcomeResponded   = "responded"
	outcomeIgnored     = "ignored"
	outcomePaused      = "paused"
	outcomeReactivated = "reactivated"
	outcomeHandoff     = "handoff"
	outcomeFailed      = "failed"
)

type Engine struct {
	store      Store
	pauses     *PauseManager
	composer   *Composer
	dispatcher *Dispatcher
	notifier   Notifier
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewEngine wires the inbound pipeline. notifier may be nil.
func NewEngine(st Store, t transport.Transport, composer *Composer, notifier Notifier, logger zerolog.Logger) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	logger = logger.With().Str("component", "engine").Logger()
	return &Engine{
		store:      st,
		pauses:     NewPauseManager(st),
		composer:   composer,
		dispatcher: NewDispatcher(t, logger),
		notifier:   notifier,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
}

// ProcessIncomingMessage runs one inbound message through the pipeline. It
// never panics; a failure is logged, answered with an apology where possible
// and returned.
func (e *Engine) ProcessIncomingMessage(ctx context.Context, in transport.Inbound) (err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "automation.ProcessIncomingMessage",
		trace.WithAttributes(attribute.Bool("chat.group", in.IsGroup)))
	defer span.End()

	outcome := outcomeFailed
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("from", in.From).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			err = fmt.Errorf("panic processing message: %v", r)
			outcome = outcomeFailed
			e.dispatcher.Apologize(ctx, in.From)
		}
		metrics.InboundMessages.WithLabelValues(outcome).Inc()
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	outcome, err = e.process(ctx, in)
	return err
}

func (e *Engine) process(ctx context.Context, in transport.Inbound) (string, error) {
	if in.FromMe || in.IsStatus {
		return outcomeIgnored, nil
	}

	doc, err := e.store.Snapshot(ctx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("snapshot: %w", err)
	}

	contactID := transport.NormalizeRecipient(in.From)
	text := strings.TrimSpace(in.Text)
	name := in.Name
	if name == "" {
		name = contactID
	}

	entry := models.MessageLogEntry{Timestamp: time.Now(), ContactName: name, ContactID: contactID, Text: strings.ToLower(text)}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("contact", contactID).Msg("append message log")
	}
	e.notifier.Notify(EventMessage, entry)
	e.logger.Info().Str("contact", contactID).Str("name", name).Str("text", text).Msg("message received")

	if doc.GlobalPause {
		return outcomePaused, nil
	}
	if text == "" && !in.Reply.Present() {
		return outcomeIgnored, nil
	}
	if in.IsGroup && !doc.Settings.GroupMessages {
		return outcomeIgnored, nil
	}

	if kw := doc.Settings.HandoffKeyword; kw != "" && textnorm.Equal(text, kw) && !e.pauses.Paused(doc, contactID) {
		return e.handoff(ctx, doc, in.From, contactID)
	}

	gate, err := e.pauses.ShouldProcess(ctx, doc, contactID, text)
	if err != nil {
		return outcomeFailed, fmt.Errorf("pause gate: %w", err)
	}
	switch gate {
	case GateSuppress:
		return outcomePaused, nil
	case GateReactivated:
		e.notifier.Notify(EventPause, PauseEvent{ContactID: contactID, Paused: false})
		if err := e.dispatcher.Deliver(ctx, Delivery{To: in.From, Parts: []Part{TextPart(ReactivatedText)}}); err != nil {
			return outcomeFailed, err
		}
		return outcomeReactivated, nil
	}

	m := Resolve(doc, in)
	by := m.By
	if by == "" {
		by = "none"
	}
	metrics.Matches.WithLabelValues(m.Kind.String(), by).Inc()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("match.kind", m.Kind.String()), attribute.String("match.by", by))
	e.logger.Debug().Str("contact", contactID).Stringer("kind", m.Kind).Str("by", by).Str("option", m.Option.ID).Msg("resolved")

	switch m.Kind {
	case MatchStructured:
		err = e.respondStructured(ctx, in.From, m)
	case MatchMenu:
		err = e.dispatcher.Deliver(ctx, Delivery{To: in.From, Parts: []Part{WelcomeText(doc), MenuText(doc)}})
	case MatchOption:
		err = e.respondOption(ctx, in, contactID, m.Option)
	default:
		err = e.respondFallback(ctx, doc, in.From, text)
	}
	if err != nil {
		e.dispatcher.Apologize(ctx, in.From)
		return outcomeFailed, err
	}
	return outcomeResponded, nil
}

// ErrEmptyContent is returned by Send when the content yields no parts.
var ErrEmptyContent = errors.New("automation: nothing to send")

// Send composes content and delivers it outside any conversation, as the
// admin send form does. The text is interpolated with the recipient's number.
func (e *Engine) Send(ctx context.Context, to string, content models.Content) error {
	contactID := transport.NormalizeRecipient(to)
	content.TextBody = Interpolate(content.TextBody, contactID, contactID)
	parts := e.composer.Compose(content, content.ResponseMode)
	if len(parts) == 0 {
		return ErrEmptyContent
	}
	return e.dispatcher.Deliver(ctx, Delivery{To: to, Parts: parts})
}

func (e *Engine) handoff(ctx context.Context, doc models.Document, to, contactID string) (string, error) {
	minutes := doc.Settings.HandoffMinutes
	if minutes <= 0 {
		minutes = models.DefaultHandoffMinutes
	}
	exp, err := e.pauses.EnterPause(ctx, contactID, minutes)
	if err != nil {
		return outcomeFailed, fmt.Errorf("enter pause: %w", err)
	}
	e.notifier.Notify(EventPause, PauseEvent{ContactID: contactID, Paused: true, ExpiresAt: &exp})
	e.logger.Info().Str("contact", contactID).Int("minutes", minutes).Msg("handed off to attendant")

	dl := Delivery{To: to, Parts: []Part{TextPart(HandoffText(minutes))}, Presence: transport.PresenceTyping}
	if err := e.dispatcher.Deliver(ctx, dl); err != nil {
		return outcomeFailed, err
	}
	return outcomeHandoff, nil
}

func (e *Engine) respondStructured(ctx context.Context, to string, m Match) error {
	if err := e.dispatcher.Deliver(ctx, Delivery{To: to, Parts: []Part{TextPart(m.Text)}}); err != nil {
		return err
	}
	if m.Vote != NoVote {
		if _, err := e.store.RecordVote(ctx, m.Vote == VoteYes); err != nil {
			e.logger.Warn().Err(err).Msg("record vote")
		}
	}
	return nil
}

// respondOption sends an option's content and extras, then applies its side
// effects. Side effects run even when a part failed to send.
func (e *Engine) respondOption(ctx context.Context, in transport.Inbound, contactID string, opt models.MenuOption) error {
	text := Interpolate(opt.TextBody, in.Name, contactID)
	content := opt.Content
	content.TextBody = text

	parts := e.composer.Compose(content, opt.ResponseMode)
	parts = append(parts, e.composer.Extras(opt, text)...)

	presence := transport.PresenceNone
	switch {
	case opt.RecordingIndicator:
		presence = transport.PresenceRecording
	case opt.TypingIndicator:
		presence = transport.PresenceTyping
	}

	sendErr := e.dispatcher.Deliver(ctx, Delivery{
		To:       in.From,
		Parts:    parts,
		Presence: presence,
		PreDelay: time.Duration(opt.PreDelayMs) * time.Millisecond,
	})

	var errs []error
	if sendErr != nil {
		errs = append(errs, sendErr)
	}
	if err := e.store.RecordResponse(ctx, contactID, text); err != nil {
		errs = append(errs, fmt.Errorf("record response: %w", err))
	}

	switch opt.BotStatusDirective {
	case models.DirectivePauseAll, models.DirectiveUnpauseAll:
		paused := opt.BotStatusDirective == models.DirectivePauseAll
		if err := e.store.SetGlobalPause(ctx, paused); err != nil {
			errs = append(errs, fmt.Errorf("set global pause: %w", err))
		} else {
			e.notifier.Notify(EventPause, PauseEvent{Global: true, Paused: paused})
		}
	}

	if opt.UserPauseMinutes > 0 {
		exp, err := e.pauses.EnterPause(ctx, contactID, opt.UserPauseMinutes)
		if err != nil {
			errs = append(errs, fmt.Errorf("enter pause: %w", err))
		} else {
			e.notifier.Notify(EventPause, PauseEvent{ContactID: contactID, Paused: true, ExpiresAt: &exp})
		}
	}
	return errors.Join(errs...)
}

// respondFallback handles text no option matched: poll answers, the global
// media keywords and finally the default message.
func (e *Engine) respondFallback(ctx context.Context, doc models.Document, to, text string) error {
	lowered := strings.ToLower(text)

	if v := plainVote(lowered); v != NoVote {
		if _, err := e.store.RecordVote(ctx, v == VoteYes); err != nil {
			return fmt.Errorf("record vote: %w", err)
		}
		reply := voteNoText
		if v == VoteYes {
			reply = voteYesText
		}
		return e.dispatcher.Deliver(ctx, Delivery{To: to, Parts: []Part{TextPart(reply)}})
	}

	if parts := e.globalMedia(doc.GlobalMedia, lowered); len(parts) > 0 {
		return e.dispatcher.Deliver(ctx, Delivery{To: to, Parts: parts})
	}

	msg := doc.DefaultMessage
	if strings.TrimSpace(msg) == "" {
		msg = models.DefaultMessage
	}
	return e.dispatcher.Deliver(ctx, Delivery{To: to, Parts: []Part{TextPart(msg)}, Presence: transport.PresenceTyping})
}

func (e *Engine) globalMedia(gm models.GlobalMedia, keyword string) []Part {
	caption, ok := globalMediaCaptions[keyword]
	if !ok {
		return nil
	}
	var kind transport.MediaKind
	var ref string
	switch keyword {
	case "pdf":
		kind, ref = transport.MediaPDF, gm.PDF
	case "audio":
		kind, ref = transport.MediaAudio, gm.Audio
	case "gif":
		kind, ref = transport.MediaGIF, gm.GIF
	case "imagem":
		kind, ref = transport.MediaImage, gm.Image
	}
	if ref == "" {
		return nil
	}
	if kind == transport.MediaAudio {
		return []Part{TextPart(caption), e.composer.MediaPart(kind, ref, "")}
	}
	return []Part{e.composer.MediaPart(kind, ref, caption)}
}
