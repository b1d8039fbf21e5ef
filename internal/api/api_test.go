package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-autoresponder/internal/automation"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []sendRequest
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to string, content models.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sendRequest{To: to, Content: content})
	return f.err
}

type eventSink struct {
	mu     sync.Mutex
	events []automation.PauseEvent
}

func (s *eventSink) Notify(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := payload.(automation.PauseEvent); ok && event == automation.EventPause {
		s.events = append(s.events, ev)
	}
}

type testAPI struct {
	router    *gin.Engine
	store     *store.Store
	sender    *fakeSender
	events    *eventSink
	mediaRoot string
}

func newTestAPI(t *testing.T, doc models.Document) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	backend := store.NewFileBackend(filepath.Join(dir, "data.json"))
	doc.Normalize()
	if err := backend.Save(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	st, err := store.Open(context.Background(), backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	a := &testAPI{store: st, sender: &fakeSender{}, events: &eventSink{}, mediaRoot: filepath.Join(dir, "assets")}
	a.router = gin.New()
	Register(a.router.Group("/api"), Deps{
		Store:     st,
		Sender:    a.sender,
		Notifier:  a.events,
		MediaRoot: a.mediaRoot,
		Logger:    zerolog.Nop(),
	})
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) snapshot(t *testing.T) models.Document {
	t.Helper()
	doc, err := a.store.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestMenuOptions_CRUD(t *testing.T) {
	a := newTestAPI(t, models.DefaultDocument())

	w := a.do(t, http.MethodPost, "/api/menu/options", map[string]any{"title": "Catálogo", "trigger": "catalogo", "textBody": "Veja o catálogo"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	created := decode[models.MenuOption](t, w)
	if created.ID == "" || !created.Active || created.ResponseMode != models.ResponseSingle {
		t.Fatalf("created = %+v", created)
	}

	if w := a.do(t, http.MethodPost, "/api/menu/options", map[string]any{"trigger": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("create without title = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/menu/options", `{"title":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body = %d", w.Code)
	}

	w = a.do(t, http.MethodPut, "/api/menu/options/"+created.ID, map[string]any{"title": "Catálogo 2025", "responseMode": "multi"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body)
	}
	updated := decode[models.MenuOption](t, w)
	if updated.ID != created.ID || updated.Title != "Catálogo 2025" || updated.Trigger != "" || !updated.Active {
		t.Fatalf("updated = %+v", updated)
	}
	if w := a.do(t, http.MethodPut, "/api/menu/options/nope", map[string]any{"title": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("update unknown = %d", w.Code)
	}

	w = a.do(t, http.MethodPost, "/api/menu/options/"+created.ID+"/toggle", nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["active"] != false {
		t.Fatalf("toggle = %d %s", w.Code, w.Body)
	}

	list := decode[[]models.MenuOption](t, a.do(t, http.MethodGet, "/api/menu/options", nil))
	if len(list) != 1 || list[0].Active {
		t.Fatalf("list = %+v", list)
	}

	if w := a.do(t, http.MethodDelete, "/api/menu/options/"+created.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/api/menu/options/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/menu/options/nope/toggle", nil); w.Code != http.StatusNotFound {
		t.Fatalf("toggle unknown = %d", w.Code)
	}
}

func TestSchedules(t *testing.T) {
	a := newTestAPI(t, models.DefaultDocument())
	sendAt := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)

	w := a.do(t, http.MethodPost, "/api/schedules", map[string]any{
		"name": "Lembrete", "recipient": "5511999990000", "sendAt": sendAt, "recurrence": "weekly", "textBody": "Oi {nome}", "status": "sent",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body)
	}
	m := decode[models.ScheduledMessage](t, w)
	if m.ID == "" || m.Status != models.StatusPending || !m.SendAt.Equal(sendAt) {
		t.Fatalf("created = %+v", m)
	}

	bad := []map[string]any{
		{"recipient": "", "sendAt": sendAt, "textBody": "x"},
		{"recipient": "5511", "textBody": "x"},
		{"recipient": "5511", "sendAt": sendAt, "recurrence": "yearly", "textBody": "x"},
		{"recipient": "5511", "sendAt": sendAt},
	}
	for i, body := range bad {
		if w := a.do(t, http.MethodPost, "/api/schedules", body); w.Code != http.StatusBadRequest {
			t.Fatalf("bad[%d] = %d", i, w.Code)
		}
	}

	w = a.do(t, http.MethodPut, "/api/schedules/"+m.ID, map[string]any{"recipient": "5511888", "sendAt": sendAt, "textBody": "Novo", "status": "sent"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body)
	}
	if got := decode[models.ScheduledMessage](t, w); got.Recurrence != models.RecurrenceNone || got.Status != models.StatusSent {
		t.Fatalf("updated = %+v", got)
	}

	if pending := decode[[]models.ScheduledMessage](t, a.do(t, http.MethodGet, "/api/schedules?status=pending", nil)); len(pending) != 0 {
		t.Fatalf("pending = %+v", pending)
	}
	if all := decode[[]models.ScheduledMessage](t, a.do(t, http.MethodGet, "/api/schedules", nil)); len(all) != 1 {
		t.Fatalf("all = %+v", all)
	}

	if w := a.do(t, http.MethodPut, "/api/schedules/nope", map[string]any{"recipient": "1", "sendAt": sendAt, "textBody": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("update unknown = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/api/schedules/"+m.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/api/schedules/"+m.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

type pausesResponse struct {
	GlobalPause bool        `json:"globalPause"`
	Contacts    []pauseView `json:"contacts"`
}

func TestPauses(t *testing.T) {
	doc := models.DefaultDocument()
	doc.PauseRegistry["expired"] = time.Now().Add(-time.Minute).UnixMilli()
	a := newTestAPI(t, doc)

	if w := a.do(t, http.MethodPut, "/api/pauses/5511999990000@c.us", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Fatalf("pause without minutes = %d", w.Code)
	}
	w := a.do(t, http.MethodPut, "/api/pauses/5511999990000@c.us", map[string]any{"minutes": 30})
	if w.Code != http.StatusOK {
		t.Fatalf("pause = %d %s", w.Code, w.Body)
	}

	listed := decode[pausesResponse](t, a.do(t, http.MethodGet, "/api/pauses", nil))
	if len(listed.Contacts) != 1 || listed.Contacts[0].ContactID != "5511999990000" || listed.Contacts[0].RemainingMinutes != 30 {
		t.Fatalf("pauses = %+v", listed)
	}

	if w := a.do(t, http.MethodDelete, "/api/pauses/5511999990000", nil); w.Code != http.StatusOK {
		t.Fatalf("resume = %d", w.Code)
	}
	if _, ok := a.snapshot(t).PauseRegistry["5511999990000"]; ok {
		t.Fatalf("pause not cleared")
	}

	if w := a.do(t, http.MethodPost, "/api/bot/pause", nil); w.Code != http.StatusOK || !a.snapshot(t).GlobalPause {
		t.Fatalf("bot pause = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/bot/resume", nil); w.Code != http.StatusOK || a.snapshot(t).GlobalPause {
		t.Fatalf("bot resume = %d", w.Code)
	}

	a.events.mu.Lock()
	defer a.events.mu.Unlock()
	if len(a.events.events) != 4 {
		t.Fatalf("events = %+v", a.events.events)
	}
	if ev := a.events.events[0]; !ev.Paused || ev.ContactID != "5511999990000" || ev.ExpiresAt == nil {
		t.Fatalf("pause event = %+v", ev)
	}
	if ev := a.events.events[2]; !ev.Global || !ev.Paused {
		t.Fatalf("global event = %+v", ev)
	}
}

func TestConfigSettingsAndLogs(t *testing.T) {
	doc := models.DefaultDocument()
	doc.Settings.WelcomeMessage = "Bem-vindo!"
	for i := 0; i < 5; i++ {
		doc.MessageLog = append(doc.MessageLog, models.MessageLogEntry{ContactID: "5511", Text: string(rune('a' + i))})
	}
	doc.Votes = models.Votes{Yes: 3, No: 1}
	a := newTestAPI(t, doc)

	got := decode[models.Document](t, a.do(t, http.MethodGet, "/api/config", nil))
	if got.Settings.WelcomeMessage != "Bem-vindo!" || got.DefaultMessage != models.DefaultMessage {
		t.Fatalf("config = %+v", got)
	}

	w := a.do(t, http.MethodPut, "/api/settings", map[string]any{"settings": map[string]any{"groupMessages": true}, "globalMedia": map[string]any{"pdf": "catalogo.pdf"}})
	if w.Code != http.StatusOK {
		t.Fatalf("settings = %d %s", w.Code, w.Body)
	}
	cur := a.snapshot(t)
	if !cur.Settings.GroupMessages || cur.Settings.WelcomeMessage != "Bem-vindo!" || cur.Settings.HandoffKeyword != "4" || cur.GlobalMedia.PDF != "catalogo.pdf" {
		t.Fatalf("settings after update = %+v / %+v", cur.Settings, cur.GlobalMedia)
	}

	logs := decode[[]models.MessageLogEntry](t, a.do(t, http.MethodGet, "/api/logs?limit=2", nil))
	if len(logs) != 2 || logs[0].Text != "e" || logs[1].Text != "d" {
		t.Fatalf("logs = %+v", logs)
	}

	stats := decode[map[string]any](t, a.do(t, http.MethodGet, "/api/analytics", nil))
	if votes, _ := stats["votes"].(map[string]any); votes["yes"] != float64(3) || votes["no"] != float64(1) {
		t.Fatalf("analytics = %v", stats)
	}
	if stats["logged_messages"] != float64(5) {
		t.Fatalf("analytics = %v", stats)
	}

	replacement := models.DefaultDocument()
	replacement.MenuOptions = []models.MenuOption{{ID: "a", Title: "Preços", Active: true}}
	if w := a.do(t, http.MethodPut, "/api/config", replacement); w.Code != http.StatusOK {
		t.Fatalf("replace = %d %s", w.Code, w.Body)
	}
	if cur := a.snapshot(t); len(cur.MenuOptions) != 1 || cur.Settings.WelcomeMessage != "" {
		t.Fatalf("after replace = %+v", cur)
	}
	replacement.MenuOptions[0].Title = ""
	if w := a.do(t, http.MethodPut, "/api/config", replacement); w.Code != http.StatusBadRequest {
		t.Fatalf("replace with invalid option = %d", w.Code)
	}

	if w := a.do(t, http.MethodPost, "/api/config/reload", nil); w.Code != http.StatusOK {
		t.Fatalf("reload = %d", w.Code)
	}
	if cur := a.snapshot(t); len(cur.MenuOptions) != 1 {
		t.Fatalf("reload lost the saved document: %+v", cur.MenuOptions)
	}
}

func upload(t *testing.T, a *testAPI, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestUploadMedia(t *testing.T) {
	a := newTestAPI(t, models.DefaultDocument())

	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n")
	w := upload(t, a, "Catalogo.PDF", pdf)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body)
	}
	res := decode[map[string]any](t, w)
	ref, _ := res["ref"].(string)
	if res["kind"] != "pdf" || res["mime"] != "application/pdf" || !strings.HasSuffix(ref, ".pdf") {
		t.Fatalf("upload result = %v", res)
	}
	stored, err := os.ReadFile(filepath.Join(a.mediaRoot, ref))
	if err != nil || !bytes.Equal(stored, pdf) {
		t.Fatalf("stored file: %v", err)
	}

	if w := upload(t, a, "notes.txt", []byte("just some text")); w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text upload = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/media", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("upload without file = %d", w.Code)
	}
}

func TestSendMessage(t *testing.T) {
	a := newTestAPI(t, models.DefaultDocument())

	w := a.do(t, http.MethodPost, "/api/send", map[string]any{"to": "5511999990000", "textBody": "Olá", "media": map[string]any{"image": "promo.png"}})
	if w.Code != http.StatusOK {
		t.Fatalf("send = %d %s", w.Code, w.Body)
	}
	if len(a.sender.sent) != 1 {
		t.Fatalf("sent = %+v", a.sender.sent)
	}
	if s := a.sender.sent[0]; s.To != "5511999990000" || s.TextBody != "Olá" || s.Media.Image != "promo.png" || s.ResponseMode != models.ResponseSingle {
		t.Fatalf("sent = %+v", s)
	}

	if w := a.do(t, http.MethodPost, "/api/send", map[string]any{"textBody": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("send without recipient = %d", w.Code)
	}

	a.sender.err = automation.ErrEmptyContent
	if w := a.do(t, http.MethodPost, "/api/send", map[string]any{"to": "5511"}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty send = %d", w.Code)
	}
	a.sender.err = errors.New("graph api down")
	if w := a.do(t, http.MethodPost, "/api/send", map[string]any{"to": "5511", "textBody": "x"}); w.Code != http.StatusBadGateway {
		t.Fatalf("failing send = %d", w.Code)
	}
}
