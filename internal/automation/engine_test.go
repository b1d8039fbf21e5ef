package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"whatsapp-autoresponder/internal/metrics"
	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestEngine_GreetingShowsMenu(t *testing.T) {
	doc := menuDoc()
	doc.MenuOptions[2].Active = false
	h := newHarness(t, doc)

	base := testutil.ToFloat64(metrics.InboundMessages.WithLabelValues(outcomeResponded))
	if err := h.send(t, transport.Inbound{Name: "Ana", Text: "oi"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	texts := h.tr.texts()
	if len(texts) != 2 {
		t.Fatalf("sent %d texts, want welcome and menu: %q", len(texts), texts)
	}
	if texts[0] != DefaultWelcome {
		t.Fatalf("first part = %q", texts[0])
	}
	menu := texts[1]
	iCat, iPre := strings.Index(menu, "Catálogo"), strings.Index(menu, "Preços")
	if iCat < 0 || iPre < 0 || iCat > iPre {
		t.Fatalf("menu does not list active titles in order: %q", menu)
	}
	if strings.Contains(menu, "Endereço") {
		t.Fatalf("menu lists an inactive option: %q", menu)
	}
	for _, c := range h.tr.sends() {
		if c.To != "5511999990000@c.us" {
			t.Fatalf("sent to %q", c.To)
		}
	}

	snap := h.snapshot(t)
	if n := len(snap.MessageLog); n != 1 || snap.MessageLog[0].ContactID != "5511999990000" || snap.MessageLog[0].ContactName != "Ana" {
		t.Fatalf("message log = %+v", snap.MessageLog)
	}
	if h.events.count(EventMessage) != 1 {
		t.Fatalf("message event not published")
	}
	if got := testutil.ToFloat64(metrics.InboundMessages.WithLabelValues(outcomeResponded)); got != base+1 {
		t.Fatalf("responded counter = %v, want %v", got, base+1)
	}
}

func TestEngine_OptionDelivery(t *testing.T) {
	doc := models.DefaultDocument()
	opt := option("promo", "Promoção", "promo", "Olá {nome}, confira!")
	opt.Media.Image = "promo.png"
	opt.TypingIndicator = true
	opt.PreDelayMs = 500
	opt.Link = "https://example.com/promo"
	doc.MenuOptions = []models.MenuOption{opt}
	h := newHarness(t, doc)

	var slept []time.Duration
	h.engine.dispatcher.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := h.send(t, transport.Inbound{Name: "Ana", Text: "PROMO"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	calls := h.tr.all()
	var ops []string
	for _, c := range calls {
		op := c.Op
		if op == "presence" {
			op += ":" + string(c.Presence)
		}
		ops = append(ops, op)
	}
	if got := strings.Join(ops, ","); got != "presence:typing,media,text,presence:none" {
		t.Fatalf("calls = %s", got)
	}
	if calls[1].Media.Caption != "Olá Ana, confira!" || calls[1].Media.Kind != transport.MediaImage {
		t.Fatalf("media part = %+v", calls[1].Media)
	}
	if calls[2].Text != "https://example.com/promo" {
		t.Fatalf("link part = %q", calls[2].Text)
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != PresenceHold {
		t.Fatalf("sleeps = %v", slept)
	}

	snap := h.snapshot(t)
	if snap.ResponseHistory["5511999990000"] != "Olá Ana, confira!" {
		t.Fatalf("response history = %v", snap.ResponseHistory)
	}
}

func TestEngine_OptionSideEffects(t *testing.T) {
	doc := models.DefaultDocument()
	stop := option("stop", "Encerrar atendimento", "parar", "Até logo")
	stop.BotStatusDirective = models.DirectivePauseAll
	quiet := option("quiet", "Pausar conversa", "silencio", "Volto já")
	quiet.UserPauseMinutes = 30
	doc.MenuOptions = []models.MenuOption{stop, quiet}

	t.Run("user pause", func(t *testing.T) {
		h := newHarness(t, doc)
		if err := h.send(t, transport.Inbound{Text: "silencio"}); err != nil {
			t.Fatalf("process: %v", err)
		}
		snap := h.snapshot(t)
		exp, ok := snap.PauseRegistry["5511999990000"]
		if !ok {
			t.Fatalf("contact not paused")
		}
		if d := time.Until(time.UnixMilli(exp)); d < 29*time.Minute || d > 31*time.Minute {
			t.Fatalf("pause window = %v", d)
		}
		if h.events.count(EventPause) != 1 {
			t.Fatalf("pause event not published")
		}

		h.tr.reset()
		if err := h.send(t, transport.Inbound{Text: "parar"}); err != nil {
			t.Fatalf("process: %v", err)
		}
		if sends := h.tr.sends(); len(sends) != 0 {
			t.Fatalf("paused contact got replies: %+v", sends)
		}
		if n := len(h.snapshot(t).MessageLog); n != 2 {
			t.Fatalf("log entries = %d, want 2 (log is not gated by pause)", n)
		}
	})

	t.Run("pause all", func(t *testing.T) {
		h := newHarness(t, doc)
		if err := h.send(t, transport.Inbound{Text: "parar"}); err != nil {
			t.Fatalf("process: %v", err)
		}
		if !h.snapshot(t).GlobalPause {
			t.Fatalf("global pause not set")
		}
		h.tr.reset()
		if err := h.send(t, transport.Inbound{From: "5521888880000@c.us", Text: "oi"}); err != nil {
			t.Fatalf("process: %v", err)
		}
		if sends := h.tr.sends(); len(sends) != 0 {
			t.Fatalf("globally paused bot replied: %+v", sends)
		}
	})
}

func TestEngine_HandoffAndReactivation(t *testing.T) {
	h := newHarness(t, menuDoc())

	if err := h.send(t, transport.Inbound{Text: "4"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	texts := h.tr.texts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "💬 *Falar com Atendente*") || !strings.Contains(texts[0], "1 hora") {
		t.Fatalf("handoff texts = %q", texts)
	}
	if _, ok := h.snapshot(t).PauseRegistry["5511999990000"]; !ok {
		t.Fatalf("handoff did not pause the contact")
	}

	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "4"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sends := h.tr.sends(); len(sends) != 0 {
		t.Fatalf("second handoff while paused replied: %+v", sends)
	}

	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "Oi"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != ReactivatedText {
		t.Fatalf("reactivation texts = %q", texts)
	}
	if _, ok := h.snapshot(t).PauseRegistry["5511999990000"]; ok {
		t.Fatalf("pause not cleared")
	}

	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "oi"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 2 {
		t.Fatalf("menu not shown after reactivation: %q", texts)
	}
}

func TestEngine_HandoffDisabled(t *testing.T) {
	doc := menuDoc()
	doc.Settings.HandoffKeyword = ""
	h := newHarness(t, doc)

	if err := h.send(t, transport.Inbound{Text: "4"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != models.DefaultMessage {
		t.Fatalf("texts = %q, want default message", texts)
	}
}

func TestEngine_Filters(t *testing.T) {
	tests := []struct {
		name   string
		groups bool
		in     transport.Inbound
		sends  int
		logged int
	}{
		{name: "own message", in: transport.Inbound{Text: "oi", FromMe: true}},
		{name: "status", in: transport.Inbound{Text: "oi", IsStatus: true}},
		{name: "empty", in: transport.Inbound{Text: "  "}, logged: 1},
		{name: "group disabled", in: transport.Inbound{Text: "oi", IsGroup: true}, logged: 1},
		{name: "group enabled", groups: true, in: transport.Inbound{Text: "oi", IsGroup: true}, sends: 2, logged: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := menuDoc()
			doc.Settings.GroupMessages = tt.groups
			h := newHarness(t, doc)
			if err := h.send(t, tt.in); err != nil {
				t.Fatalf("process: %v", err)
			}
			if n := len(h.tr.sends()); n != tt.sends {
				t.Fatalf("sends = %d, want %d", n, tt.sends)
			}
			if n := len(h.snapshot(t).MessageLog); n != tt.logged {
				t.Fatalf("log entries = %d, want %d", n, tt.logged)
			}
		})
	}
}

func TestEngine_Fallbacks(t *testing.T) {
	doc := menuDoc()
	doc.DefaultMessage = "Não entendi."
	doc.GlobalMedia = models.GlobalMedia{PDF: "catalogo.pdf", Audio: "tema.mp3"}
	h := newHarness(t, doc)

	if err := h.send(t, transport.Inbound{Text: "Sim"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := h.send(t, transport.Inbound{Text: "não"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if v := h.snapshot(t).Votes; v.Yes != 1 || v.No != 1 {
		t.Fatalf("votes = %+v", v)
	}
	if texts := h.tr.texts(); len(texts) != 2 || texts[0] != voteYesText || texts[1] != voteNoText {
		t.Fatalf("vote replies = %q", texts)
	}

	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "PDF"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	sends := h.tr.sends()
	if len(sends) != 1 || sends[0].Media.Kind != transport.MediaPDF || sends[0].Media.Caption != globalMediaCaptions["pdf"] {
		t.Fatalf("pdf keyword sent %+v", sends)
	}

	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "audio"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	sends = h.tr.sends()
	if len(sends) != 2 || sends[0].Text != globalMediaCaptions["audio"] || sends[1].Media.Kind != transport.MediaAudio {
		t.Fatalf("audio keyword sent %+v", sends)
	}

	// no gif configured: falls through to the default message
	h.tr.reset()
	if err := h.send(t, transport.Inbound{Text: "gif"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != "Não entendi." {
		t.Fatalf("default reply = %q", texts)
	}
}

func TestEngine_StructuredReplyCountsVote(t *testing.T) {
	h := newHarness(t, menuDoc())
	in := transport.Inbound{Reply: transport.Reply{Kind: transport.ButtonSelection, ID: "option_yes"}}
	if err := h.send(t, in); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != confirmedText {
		t.Fatalf("texts = %q", texts)
	}
	if v := h.snapshot(t).Votes; v.Yes != 1 {
		t.Fatalf("votes = %+v", v)
	}
}

func imageOptionDoc() models.Document {
	doc := models.DefaultDocument()
	opt := option("img", "Foto", "ver foto", "Veja")
	opt.Media.Image = "foto.png"
	doc.MenuOptions = []models.MenuOption{opt}
	return doc
}

func TestEngine_DispatchFailureSendsApology(t *testing.T) {
	h := newHarness(t, imageOptionDoc())
	h.tr.fail["media"] = errBoom

	err := h.send(t, transport.Inbound{Text: "ver foto"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != ApologyText {
		t.Fatalf("texts = %q, want one apology", texts)
	}
	// side effects still apply
	if h.snapshot(t).ResponseHistory["5511999990000"] != "Veja" {
		t.Fatalf("response not recorded")
	}
}

func TestEngine_ApologyFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, menuDoc())
	h.tr.fail["text"] = errBoom

	if err := h.send(t, transport.Inbound{Text: "oi"}); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
	// welcome, menu and the apology were all attempted
	if n := len(h.tr.sends()); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
}

func TestEngine_MissingMediaSendsCaption(t *testing.T) {
	h := newHarness(t, imageOptionDoc())
	h.tr.fail["media"] = transport.ErrMediaUnavailable

	if err := h.send(t, transport.Inbound{Text: "ver foto"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if texts := h.tr.texts(); len(texts) != 1 || texts[0] != "Veja" {
		t.Fatalf("texts = %q, want caption only", texts)
	}
}

type panickyTransport struct {
	*recorder
}

func (p panickyTransport) SendMedia(context.Context, string, transport.MediaMessage) error {
	panic("media exploded")
}

func TestEngine_RecoversPanic(t *testing.T) {
	st := openStore(t, imageOptionDoc())
	tr := newRecorder()
	e := NewEngine(st, panickyTransport{tr}, NewComposer(t.TempDir()), nil, zerolog.Nop())
	e.dispatcher.sleep = noSleep

	err := e.ProcessIncomingMessage(context.Background(), transport.Inbound{From: "5511", Text: "ver foto"})
	if err == nil || !strings.Contains(err.Error(), "media exploded") {
		t.Fatalf("err = %v", err)
	}
	if texts := tr.texts(); len(texts) != 1 || texts[0] != ApologyText {
		t.Fatalf("texts = %q, want apology", texts)
	}

	// the engine keeps working afterwards
	tr.reset()
	if err := e.ProcessIncomingMessage(context.Background(), transport.Inbound{From: "5511", Text: "xyz"}); err != nil {
		t.Fatalf("process after panic: %v", err)
	}
}

func TestEngine_Send(t *testing.T) {
	h := newHarness(t, models.DefaultDocument())
	ctx := context.Background()

	if err := h.engine.Send(ctx, "5511988887777@c.us", models.Content{TextBody: "Olá {nome}, seu pedido saiu."}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sends := h.tr.sends()
	if len(sends) != 1 || sends[0].To != "5511988887777@c.us" || sends[0].Text != "Olá 5511988887777, seu pedido saiu." {
		t.Fatalf("sends = %+v", sends)
	}

	if err := h.engine.Send(ctx, "5511", models.Content{}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty content err = %v", err)
	}
}
