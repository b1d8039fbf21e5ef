package automation

import (
	"context"
	"fmt"
	"time"

	"whatsapp-autoresponder/internal/metrics"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSchedulerInterval is how often due scheduled messages are checked.
const DefaultSchedulerInterval = time.Minute

// Scheduler sends scheduled messages once their time has come. Delivery is
// at least once: an item is committed only after it was sent, so a crash in
// between repeats it on the next tick.
type Scheduler struct {
	store      Store
	composer   *Composer
	dispatcher *Dispatcher
	interval   time.Duration
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewScheduler(st Store, t transport.Transport, composer *Composer, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		store:      st,
		composer:   composer,
		dispatcher: NewDispatcher(t, logger),
		interval:   interval,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches every due item and returns how many went out. A failing
// item is logged and left pending.
func (s *Scheduler) Tick(ctx context.Context) int {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("scheduler tick panicked")
		}
	}()

	doc, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot")
		return 0
	}

	now := s.now()
	sent := 0
	for _, m := range doc.ScheduledMessages {
		if m.Status != models.StatusPending || m.SendAt.After(now) {
			continue
		}
		if s.dispatch(ctx, m) {
			sent++
		}
	}
	return sent
}

func (s *Scheduler) dispatch(ctx context.Context, m models.ScheduledMessage) bool {
	ctx, span := s.tracer.Start(ctx, "automation.ScheduledDispatch", trace.WithAttributes(
		attribute.String("schedule.id", m.ID),
		attribute.String("schedule.recurrence", string(m.Recurrence)),
	))
	defer span.End()

	to := transport.NormalizeRecipient(m.Recipient)
	content := m.Content
	content.TextBody = Interpolate(m.TextBody, m.Name, to)

	err := s.dispatcher.Deliver(ctx, Delivery{To: to, Parts: s.composer.Compose(content, m.ResponseMode)})
	if err == nil {
		err = s.store.MarkScheduledSent(ctx, m.ID, m.SendAt, NextOccurrence(m.SendAt, m.Recurrence))
	}
	if err != nil {
		metrics.ScheduledMessages.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Str("id", m.ID).Msgf("[ERRO AGENDADA] %s (%s)", m.Name, m.Recipient)
		s.appendLog(ctx, m, fmt.Sprintf("[ERRO AGENDADA] %s (%s): %v", m.Name, m.Recipient, err))
		return false
	}

	metrics.ScheduledMessages.WithLabelValues("sent").Inc()
	line := fmt.Sprintf("[AGENDADA] %s (%s): %s", m.Name, m.Recipient, m.TextBody)
	s.logger.Info().Str("id", m.ID).Msg(line)
	s.appendLog(ctx, m, line)
	return true
}

func (s *Scheduler) appendLog(ctx context.Context, m models.ScheduledMessage, line string) {
	entry := models.MessageLogEntry{
		Timestamp:   s.now(),
		ContactName: m.Name,
		ContactID:   transport.NormalizeRecipient(m.Recipient),
		Text:        line,
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("append scheduler log")
	}
}

// NextOccurrence returns the send time following sendAt, or nil when the item
// does not recur.
func NextOccurrence(sendAt time.Time, r models.Recurrence) *time.Time {
	var next time.Time
	switch r {
	case models.RecurrenceHourly:
		next = sendAt.Add(time.Hour)
	case models.RecurrenceDaily:
		next = sendAt.AddDate(0, 0, 1)
	case models.RecurrenceWeekly:
		next = sendAt.AddDate(0, 0, 7)
	case models.RecurrenceMonthly:
		next = sendAt.AddDate(0, 1, 0)
	default:
		return nil
	}
	return &next
}
