package automation

import (
	"context"
	"time"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/textnorm"
)

// Gate is the pause manager's verdict on one inbound message.
type Gate int

const (
	GateProcess Gate = iota
	GateSuppress
	// GateReactivated means a pause was lifted by a greeting or the reset
	// keyword; the caller sends ReactivatedText and nothing else.
	GateReactivated
)

func (g Gate) String() string {
	switch g {
	case GateSuppress:
		return "suppress"
	case GateReactivated:
		return "reactivated"
	}
	return "process"
}

// PauseStore is the subset of the store the pause manager writes through.
type PauseStore interface {
	SetPause(ctx context.Context, contactID string, expiresAt time.Time) error
	ClearPause(ctx context.Context, contactID string) error
}

// PauseManager evaluates and edits per-contact suppression windows. Expiry is
// checked lazily when a message from the contact arrives.
type PauseManager struct {
	store PauseStore
	now   func() time.Time
}

func NewPauseManager(st PauseStore) *PauseManager {
	return &PauseManager{store: st, now: time.Now}
}

// Paused reports whether contactID has a pause that has not yet expired.
func (p *PauseManager) Paused(doc models.Document, contactID string) bool {
	exp, ok := doc.PauseRegistry[contactID]
	return ok && p.now().UnixMilli() <= exp
}

// ShouldProcess decides whether the message from contactID goes on to the
// matcher. Expired entries are cleared on the way.
func (p *PauseManager) ShouldProcess(ctx context.Context, doc models.Document, contactID, text string) (Gate, error) {
	if doc.GlobalPause {
		return GateSuppress, nil
	}
	exp, ok := doc.PauseRegistry[contactID]
	if !ok {
		return GateProcess, nil
	}
	if p.now().UnixMilli() > exp {
		if err := p.store.ClearPause(ctx, contactID); err != nil {
			return GateProcess, err
		}
		return GateProcess, nil
	}

	norm := textnorm.Normalize(text)
	if norm == ResetKeyword || IsGreeting(norm) {
		if err := p.store.ClearPause(ctx, contactID); err != nil {
			return GateSuppress, err
		}
		return GateReactivated, nil
	}
	return GateSuppress, nil
}

// EnterPause suppresses contactID for the given minutes, replacing any
// existing window. It returns the new expiry.
func (p *PauseManager) EnterPause(ctx context.Context, contactID string, minutes int) (time.Time, error) {
	expiresAt := p.now().Add(time.Duration(minutes) * time.Minute)
	return expiresAt, p.store.SetPause(ctx, contactID, expiresAt)
}
