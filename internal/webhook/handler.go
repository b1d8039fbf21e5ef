package webhook

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"whatsapp-autoresponder/internal/transport"
	"whatsapp-autoresponder/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// processTimeout bounds one asynchronous run of the engine.
const processTimeout = 2 * time.Minute

const statusBroadcast = "status@broadcast"

// MessageProcessor consumes converted inbound messages.
type MessageProcessor interface {
	ProcessIncomingMessage(ctx context.Context, in transport.Inbound) error
}

type Handler struct {
	verifyToken string
	processor   MessageProcessor
	logger      zerolog.Logger
	base        context.Context
	wg          sync.WaitGroup
}

// NewHandler hands messages to processor in background goroutines derived
// from ctx, so the HTTP response never waits for the reply to be sent.
func NewHandler(ctx context.Context, verifyToken string, processor MessageProcessor, logger zerolog.Logger) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		processor:   processor,
		logger:      logger.With().Str("component", "webhook").Logger(),
		base:        ctx,
	}
}

// Wait blocks until every in-flight message has been processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn().Str("mode", mode).Msg("webhook verification rejected")
		c.Status(http.StatusForbidden)
		return
	}
	h.logger.Info().Msg("webhook verified successfully")
	c.String(http.StatusOK, challenge)
}

// HandleMessage accepts the Cloud API notification. Status callbacks are
// acknowledged and dropped.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("error binding webhook JSON")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				in := InboundFromCloud(msg, contactName(change.Value, msg.From))
				h.logger.Debug().Str("from", in.From).Str("type", msg.Type).Msg("cloud message received")
				h.dispatch(in)
			}
		}
	}
	c.Status(http.StatusOK)
}

// HandleGeneric accepts one loosely shaped message from a bridge client.
func (h *Handler) HandleGeneric(c *gin.Context) {
	var msg models.GenericMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(msg.From) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from is required"})
		return
	}
	h.dispatch(InboundFromGeneric(msg))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) dispatch(in transport.Inbound) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(h.base), processTimeout)
		defer cancel()
		if err := h.processor.ProcessIncomingMessage(ctx, in); err != nil {
			h.logger.Error().Err(err).Str("from", in.From).Msg("process message")
		}
	}()
}

func contactName(v models.CloudValue, waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}

// InboundFromCloud converts one Cloud API message. Interactive replies keep
// their title as the visible text and their id as the structured reply.
func InboundFromCloud(msg models.CloudMessage, name string) transport.Inbound {
	in := transport.Inbound{From: msg.From, Name: name}
	probe := transport.Probe{}

	switch {
	case msg.Text != nil:
		in.Text = msg.Text.Body
	case msg.Interactive != nil && msg.Interactive.ListReply != nil:
		lr := msg.Interactive.ListReply
		in.Text = lr.Title
		probe.ListResponse = &transport.ListResponse{SingleSelectReply: &transport.SingleSelectReply{SelectedRowID: lr.ID}}
	case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
		br := msg.Interactive.ButtonReply
		in.Text = br.Title
		probe.SelectedID, probe.SelectedDisplayText = br.ID, br.Title
	case msg.Button != nil:
		in.Text = msg.Button.Text
		probe.SelectedID, probe.SelectedDisplayText = msg.Button.Payload, msg.Button.Text
	default:
		for _, m := range []*models.MediaMessage{msg.Image, msg.Video, msg.Document} {
			if m != nil && m.Caption != "" {
				in.Text = m.Caption
				break
			}
		}
	}
	probe.Text = in.Text
	in.Reply = transport.DetectReply(probe)
	return in
}

// InboundFromGeneric converts a bridge payload, probing every known
// selection shape.
func InboundFromGeneric(msg models.GenericMessage) transport.Inbound {
	in := transport.Inbound{
		From:     strings.TrimSpace(msg.From),
		Text:     msg.Body.Text,
		IsGroup:  msg.IsGroupMsg || strings.HasSuffix(msg.From, "@g.us"),
		FromMe:   msg.FromMe,
		IsStatus: msg.IsStatus || msg.From == statusBroadcast,
	}
	if in.Text == "" {
		in.Text = msg.Caption
	}
	if s := msg.Sender; s != nil {
		in.Name = s.Pushname
		if in.Name == "" {
			in.Name = s.NotifyName
		}
	}
	if in.Name == "" {
		in.Name = msg.NotifyName
	}

	probe := transport.Probe{
		Text:                in.Text,
		SelectedID:          msg.SelectedID,
		SelectedDisplayText: msg.SelectedDisplayText,
		BodyListResponse:    msg.Body.ListResponse,
	}
	probe.ListResponse = listResponse(msg.ListResponse)
	if msg.List != nil {
		probe.List = &transport.ListEnvelope{ListResponse: listResponse(msg.List.ListResponse)}
	}
	in.Reply = transport.DetectReply(probe)
	return in
}

func listResponse(lr *models.GenericListResponse) *transport.ListResponse {
	if lr == nil {
		return nil
	}
	out := &transport.ListResponse{RowID: lr.RowID}
	if lr.SingleSelectReply != nil {
		out.SingleSelectReply = &transport.SingleSelectReply{SelectedRowID: lr.SingleSelectReply.SelectedRowID}
	}
	return out
}
