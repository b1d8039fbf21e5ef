package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-autoresponder/internal/metrics"
	"whatsapp-autoresponder/internal/transport"

	"github.com/rs/zerolog"
)

// PresenceHold is how long typing or recording is shown before the first part.
const PresenceHold = 1200 * time.Millisecond

// Dispatcher delivers composed parts over a transport.
type Dispatcher struct {
	transport transport.Transport
	logger    zerolog.Logger
	// sleep is swapped in tests to skip real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(t transport.Transport, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{transport: t, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivery describes one response sequence.
type Delivery struct {
	To       string
	Parts    []Part
	Presence transport.Presence
	PreDelay time.Duration
}

// Deliver waits PreDelay, holds the presence, then attempts every part in
// order. A failing part does not stop the rest; all failures are joined.
func (d *Dispatcher) Deliver(ctx context.Context, dl Delivery) error {
	if err := d.sleep(ctx, dl.PreDelay); err != nil {
		return err
	}

	holding := dl.Presence != "" && dl.Presence != transport.PresenceNone
	if holding {
		if err := d.transport.SetPresence(ctx, dl.To, dl.Presence); err != nil {
			d.logger.Debug().Err(err).Str("to", dl.To).Msg("set presence")
		}
		if err := d.sleep(ctx, PresenceHold); err != nil {
			return err
		}
	}

	var errs []error
	for i, p := range dl.Parts {
		if err := d.send(ctx, dl.To, p); err != nil {
			metrics.DispatchErrors.WithLabelValues(p.Kind.String()).Inc()
			d.logger.Error().Err(err).Str("to", dl.To).Int("part", i).Str("kind", p.Kind.String()).Msg("send part")
			errs = append(errs, fmt.Errorf("part %d (%s): %w", i, p.Kind, err))
			continue
		}
		metrics.PartsSent.WithLabelValues(p.Kind.String()).Inc()
	}

	if holding {
		if err := d.transport.SetPresence(ctx, dl.To, transport.PresenceNone); err != nil {
			d.logger.Debug().Err(err).Str("to", dl.To).Msg("clear presence")
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, to string, p Part) error {
	switch p.Kind {
	case PartText:
		return d.transport.SendText(ctx, to, p.Text)
	case PartMedia:
		err := d.transport.SendMedia(ctx, to, p.Media)
		if !errors.Is(err, transport.ErrMediaUnavailable) {
			return err
		}
		d.logger.Warn().Str("ref", p.Media.Ref).Str("to", to).Msg("media unavailable, sending caption only")
		if p.Media.Caption == "" {
			return nil
		}
		return d.transport.SendText(ctx, to, p.Media.Caption)
	case PartLocation:
		return d.transport.SendLocation(ctx, to, p.Location)
	case PartList:
		return d.transport.SendInteractiveList(ctx, to, *p.List)
	case PartButtons:
		return d.transport.SendButtons(ctx, to, p.Text, p.Buttons)
	}
	return fmt.Errorf("unknown part kind %d", p.Kind)
}

// Apologize sends the generic error notice. Its own failure is only logged.
func (d *Dispatcher) Apologize(ctx context.Context, to string) {
	if err := d.transport.SendText(ctx, to, ApologyText); err != nil {
		d.logger.Error().Err(err).Str("to", to).Msg("send apology")
	}
}

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartMedia:
		return "media"
	case PartLocation:
		return "location"
	case PartList:
		return "list"
	case PartButtons:
		return "buttons"
	}
	return "unknown"
}
