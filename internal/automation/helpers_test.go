package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/store"
	"whatsapp-autoresponder/internal/transport"

	"github.com/rs/zerolog"
)

type sent struct {
	Op       string
	To       string
	Text     string
	Media    transport.MediaMessage
	Location models.Location
	List     *models.InteractiveList
	Buttons  []models.Button
	Presence transport.Presence
}

// recorder is a transport.Transport that remembers every call.
type recorder struct {
	mu    sync.Mutex
	calls []sent
	// fail makes the named operation return an error; an entry keyed by a
	// text fails only SendText with that exact text.
	fail map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}}
}

func (r *recorder) record(s sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	if err := r.fail[s.Op]; err != nil {
		return err
	}
	if s.Op == "text" {
		return r.fail["text:"+s.Text]
	}
	return nil
}

func (r *recorder) SendText(ctx context.Context, to, text string) error {
	return r.record(sent{Op: "text", To: to, Text: text})
}

func (r *recorder) SendMedia(ctx context.Context, to string, m transport.MediaMessage) error {
	return r.record(sent{Op: "media", To: to, Media: m})
}

func (r *recorder) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return r.record(sent{Op: "location", To: to, Location: loc})
}

func (r *recorder) SendInteractiveList(ctx context.Context, to string, list models.InteractiveList) error {
	return r.record(sent{Op: "list", To: to, List: &list})
}

func (r *recorder) SendButtons(ctx context.Context, to, text string, buttons []models.Button) error {
	return r.record(sent{Op: "buttons", To: to, Text: text, Buttons: buttons})
}

func (r *recorder) SetPresence(ctx context.Context, to string, p transport.Presence) error {
	return r.record(sent{Op: "presence", To: to, Presence: p})
}

// sends returns the recorded calls other than presence updates.
func (r *recorder) sends() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, c := range r.calls {
		if c.Op != "presence" {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.calls...)
}

func (r *recorder) texts() []string {
	var out []string
	for _, c := range r.sends() {
		if c.Op == "text" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type memBackend struct {
	mu  sync.Mutex
	doc models.Document
}

func (m *memBackend) Load(ctx context.Context) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone(), nil
}

func (m *memBackend) Save(ctx context.Context, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc.Clone()
	return nil
}

func openStore(t *testing.T, doc models.Document) *store.Store {
	t.Helper()
	doc.Normalize()
	st, err := store.Open(context.Background(), &memBackend{doc: doc}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func noSleep(context.Context, time.Duration) error { return nil }

type recordedEvent struct {
	name    string
	payload any
}

type eventSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *eventSink) Notify(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{event, payload})
}

func (s *eventSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.name == name {
			n++
		}
	}
	return n
}

type harness struct {
	engine *Engine
	store  *store.Store
	tr     *recorder
	events *eventSink
}

func newHarness(t *testing.T, doc models.Document) *harness {
	t.Helper()
	st := openStore(t, doc)
	tr := newRecorder()
	events := &eventSink{}
	e := NewEngine(st, tr, NewComposer(t.TempDir()), events, zerolog.Nop())
	e.dispatcher.sleep = noSleep
	return &harness{engine: e, store: st, tr: tr, events: events}
}

func (h *harness) send(t *testing.T, in transport.Inbound) error {
	t.Helper()
	if in.From == "" {
		in.From = "5511999990000@c.us"
	}
	return h.engine.ProcessIncomingMessage(context.Background(), in)
}

func (h *harness) snapshot(t *testing.T) models.Document {
	t.Helper()
	doc, err := h.store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return doc
}

var errBoom = errors.New("boom")

func option(id, title, trigger, text string) models.MenuOption {
	return models.MenuOption{
		ID:      id,
		Title:   title,
		Trigger: trigger,
		Content: models.Content{ResponseMode: models.ResponseSingle, TextBody: text},
		Active:  true,
	}
}
