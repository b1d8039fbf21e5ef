package transport

import (
	"context"

	"whatsapp-autoresponder/internal/models"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Transport so outbound sends share one token bucket.
// Presence updates pass through unthrottled.
type RateLimited struct {
	next    Transport
	limiter *rate.Limiter
}

func NewRateLimited(next Transport, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) SendText(ctx context.Context, to, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendText(ctx, to, text)
}

func (r *RateLimited) SendMedia(ctx context.Context, to string, m MediaMessage) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendMedia(ctx, to, m)
}

func (r *RateLimited) SendLocation(ctx context.Context, to string, loc models.Location) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendLocation(ctx, to, loc)
}

func (r *RateLimited) SendInteractiveList(ctx context.Context, to string, list models.InteractiveList) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendInteractiveList(ctx, to, list)
}

func (r *RateLimited) SendButtons(ctx context.Context, to, text string, buttons []models.Button) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.SendButtons(ctx, to, text, buttons)
}

func (r *RateLimited) SetPresence(ctx context.Context, to string, p Presence) error {
	return r.next.SetPresence(ctx, to, p)
}
