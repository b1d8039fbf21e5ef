package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-autoresponder/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: closed")
)

// mutation edits the document in place and reports whether it changed.
type mutation func(doc *models.Document) (bool, error)

type request struct {
	ctx    context.Context
	apply  mutation
	read   func(doc models.Document)
	noSave bool
	done   chan error
}

// Store owns the authoritative document. A single goroutine applies every
// delta and persists the result before answering, so concurrent writers
// never overwrite each other's fields.
type Store struct {
	backend Backend
	logger  zerolog.Logger
	reqs    chan request
	quit    chan struct{}
	stopped chan struct{}
}

// Open loads the document from backend and starts the writer goroutine. A
// document that cannot be read is replaced by models.DefaultDocument.
func Open(ctx context.Context, backend Backend, logger zerolog.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store: nil backend")
	}
	doc, err := backend.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("configuration unreadable, using default document")
		doc = models.DefaultDocument()
	}
	doc.Normalize()

	s := &Store{
		backend: backend,
		logger:  logger,
		reqs:    make(chan request),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run(doc)
	return s, nil
}

func (s *Store) run(doc models.Document) {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.reqs:
			req.done <- s.handle(&doc, req)
		}
	}
}

func (s *Store) handle(doc *models.Document, req request) error {
	if req.read != nil {
		req.read(doc.Clone())
		return nil
	}

	next := doc.Clone()
	changed, err := req.apply(&next)
	if err != nil || !changed {
		return err
	}
	if req.noSave {
		*doc = next
		return nil
	}
	if err := s.backend.Save(req.ctx, next); err != nil {
		s.logger.Error().Err(err).Msg("persist document")
		return fmt.Errorf("persist document: %w", err)
	}
	*doc = next
	return nil
}

func (s *Store) do(ctx context.Context, req request) error {
	req.ctx = ctx
	req.done = make(chan error, 1)
	select {
	case s.reqs <- req:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the request always completes; waiting on ctx here would
	// let a caller believe a persisted write was dropped.
	return <-req.done
}

func (s *Store) mutate(ctx context.Context, fn mutation) error {
	return s.do(ctx, request{apply: fn})
}

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot(ctx context.Context) (models.Document, error) {
	var out models.Document
	err := s.do(ctx, request{read: func(doc models.Document) { out = doc }})
	return out, err
}

// Close stops the writer goroutine. Pending callers get ErrClosed.
func (s *Store) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.stopped
}

func (s *Store) SetPause(ctx context.Context, contactID string, expiresAt time.Time) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		doc.PauseRegistry[contactID] = expiresAt.UnixMilli()
		return true, nil
	})
}

func (s *Store) ClearPause(ctx context.Context, contactID string) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if _, ok := doc.PauseRegistry[contactID]; !ok {
			return false, nil
		}
		delete(doc.PauseRegistry, contactID)
		return true, nil
	})
}

func (s *Store) SetGlobalPause(ctx context.Context, paused bool) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if doc.GlobalPause == paused {
			return false, nil
		}
		doc.GlobalPause = paused
		return true, nil
	})
}

// MarkScheduledSent commits a dispatched scheduled message. next is the
// following occurrence for recurring items, or nil to mark the item sent. The
// write is skipped when the item was edited after dispatch (its SendAt no
// longer equals dispatchedAt).
func (s *Store) MarkScheduledSent(ctx context.Context, id string, dispatchedAt time.Time, next *time.Time) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		i := doc.ScheduledIndex(id)
		if i < 0 {
			return false, ErrNotFound
		}
		m := &doc.ScheduledMessages[i]
		if !m.SendAt.Equal(dispatchedAt) {
			return false, nil
		}
		if next != nil {
			m.SendAt = *next
			m.Status = models.StatusPending
		} else {
			m.Status = models.StatusSent
		}
		return true, nil
	})
}

func (s *Store) AppendLog(ctx context.Context, e models.MessageLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		doc.AppendLog(e)
		return true, nil
	})
}

func (s *Store) RecordResponse(ctx context.Context, contactID, text string) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if doc.ResponseHistory[contactID] == text {
			return false, nil
		}
		doc.ResponseHistory[contactID] = text
		return true, nil
	})
}

// RecordVote counts one answer to the yes/no poll and returns the new totals.
func (s *Store) RecordVote(ctx context.Context, yes bool) (models.Votes, error) {
	var out models.Votes
	err := s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if yes {
			doc.Votes.Yes++
		} else {
			doc.Votes.No++
		}
		out = doc.Votes
		return true, nil
	})
	return out, err
}

// UpsertOption replaces the option with the same id, or appends it. An empty
// id gets a fresh UUID. The stored option is returned.
func (s *Store) UpsertOption(ctx context.Context, opt models.MenuOption) (models.MenuOption, error) {
	if opt.ID == "" {
		opt.ID = uuid.NewString()
	}
	if opt.ResponseMode == "" {
		opt.ResponseMode = models.ResponseSingle
	}
	err := s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if i := doc.OptionIndex(opt.ID); i >= 0 {
			doc.MenuOptions[i] = opt.Clone()
		} else {
			doc.MenuOptions = append(doc.MenuOptions, opt.Clone())
		}
		return true, nil
	})
	return opt, err
}

func (s *Store) DeleteOption(ctx context.Context, id string) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		i := doc.OptionIndex(id)
		if i < 0 {
			return false, ErrNotFound
		}
		doc.MenuOptions = append(doc.MenuOptions[:i], doc.MenuOptions[i+1:]...)
		return true, nil
	})
}

// ToggleOption flips the active flag and returns the new value.
func (s *Store) ToggleOption(ctx context.Context, id string) (bool, error) {
	var active bool
	err := s.mutate(ctx, func(doc *models.Document) (bool, error) {
		i := doc.OptionIndex(id)
		if i < 0 {
			return false, ErrNotFound
		}
		doc.MenuOptions[i].Active = !doc.MenuOptions[i].Active
		active = doc.MenuOptions[i].Active
		return true, nil
	})
	return active, err
}

func (s *Store) UpsertScheduled(ctx context.Context, m models.ScheduledMessage) (models.ScheduledMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ResponseMode == "" {
		m.ResponseMode = models.ResponseSingle
	}
	if m.Recurrence == "" {
		m.Recurrence = models.RecurrenceNone
	}
	if m.Status == "" {
		m.Status = models.StatusPending
	}
	err := s.mutate(ctx, func(doc *models.Document) (bool, error) {
		if i := doc.ScheduledIndex(m.ID); i >= 0 {
			doc.ScheduledMessages[i] = m
		} else {
			doc.ScheduledMessages = append(doc.ScheduledMessages, m)
		}
		return true, nil
	})
	return m, err
}

func (s *Store) DeleteScheduled(ctx context.Context, id string) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		i := doc.ScheduledIndex(id)
		if i < 0 {
			return false, ErrNotFound
		}
		doc.ScheduledMessages = append(doc.ScheduledMessages[:i], doc.ScheduledMessages[i+1:]...)
		return true, nil
	})
}

// UpdateSettings stores the document-level knobs together with the default
// message and the global media. An empty defaultMessage keeps the current one.
func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings, defaultMessage string, media models.GlobalMedia) error {
	return s.mutate(ctx, func(doc *models.Document) (bool, error) {
		doc.Settings = settings
		if defaultMessage != "" {
			doc.DefaultMessage = defaultMessage
		}
		doc.GlobalMedia = media
		doc.Normalize()
		return true, nil
	})
}

// Replace swaps in a whole document, as the admin editor does.
func (s *Store) Replace(ctx context.Context, doc models.Document) error {
	doc = doc.Clone()
	doc.Normalize()
	return s.mutate(ctx, func(cur *models.Document) (bool, error) {
		*cur = doc
		return true, nil
	})
}

// Reload re-reads the backend, picking up edits made outside the process.
func (s *Store) Reload(ctx context.Context) error {
	return s.do(ctx, request{noSave: true, apply: func(doc *models.Document) (bool, error) {
		loaded, err := s.backend.Load(ctx)
		if err != nil {
			return false, fmt.Errorf("reload: %w", err)
		}
		loaded.Normalize()
		*doc = loaded
		return true, nil
	}})
}
