package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Live event names published by the session.
const (
	EventStatus = "status"
	EventQR     = "qr"
)

// Notifier receives pairing and connection events.
type Notifier interface {
	Notify(event string, payload any)
}

// StatusEvent reports the connection state of the session.
type StatusEvent struct {
	State string `json:"state"`
	JID   string `json:"jid,omitempty"`
}

// Session is a multi-device WhatsApp session backed by whatsmeow. It
// implements transport.Transport.
type Session struct {
	client   *whatsmeow.Client
	media    *MediaLoader
	notifier Notifier
	logger   zerolog.Logger
	handler  func(context.Context, transport.Inbound)
	ctx      context.Context
}

// NewSession opens the device store at dbPath and prepares a client. Call
// OnMessage and then Connect.
func NewSession(ctx context.Context, dbPath string, notifier Notifier, logger zerolog.Logger) (*Session, error) {
	logger = logger.With().Str("component", "session").Logger()
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+dbPath+"?_foreign_keys=on", waLog.Zerolog(logger.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	s := &Session{
		client:   whatsmeow.NewClient(device, waLog.Zerolog(logger.With().Str("module", "client").Logger())),
		media:    NewMediaLoader(nil),
		notifier: notifier,
		logger:   logger,
		ctx:      ctx,
	}
	s.client.AddEventHandler(s.handleEvent)
	return s, nil
}

// OnMessage registers the inbound callback. Each message is handled on its
// own goroutine so a slow response never blocks the event stream.
func (s *Session) OnMessage(h func(context.Context, transport.Inbound)) {
	s.handler = h
}

// Connect logs in, printing a QR code and publishing it when the device is
// not yet paired.
func (s *Session) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		return s.client.Connect()
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("qr channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return err
	}
	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				s.notify(EventQR, evt.Code)
				s.logger.Info().Msg("scan the QR code to pair")
			default:
				s.logger.Info().Str("event", evt.Event).Msg("pairing")
			}
		}
	}()
	return nil
}

func (s *Session) Close() {
	s.client.Disconnect()
}

func (s *Session) notify(event string, payload any) {
	if s.notifier != nil {
		s.notifier.Notify(event, payload)
	}
}

func (s *Session) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		in := InboundFromEvent(v)
		if s.handler != nil {
			go s.handler(s.ctx, in)
		}
	case *events.Connected:
		jid := ""
		if s.client.Store.ID != nil {
			jid = s.client.Store.ID.String()
		}
		s.logger.Info().Str("jid", jid).Msg("connected")
		s.notify(EventStatus, StatusEvent{State: "connected", JID: jid})
	case *events.Disconnected:
		s.logger.Warn().Msg("disconnected")
		s.notify(EventStatus, StatusEvent{State: "disconnected"})
	case *events.LoggedOut:
		s.logger.Warn().Msg("logged out, delete the session store to pair again")
		s.notify(EventStatus, StatusEvent{State: "logged_out"})
	}
}

// InboundFromEvent reduces a whatsmeow message event to an Inbound.
func InboundFromEvent(v *events.Message) transport.Inbound {
	msg := v.Message
	probe := transport.Probe{Text: msg.GetConversation()}
	if probe.Text == "" {
		probe.Text = msg.GetExtendedTextMessage().GetText()
	}
	if lr := msg.GetListResponseMessage(); lr != nil {
		probe.ListResponse = &transport.ListResponse{
			SingleSelectReply: &transport.SingleSelectReply{SelectedRowID: lr.GetSingleSelectReply().GetSelectedRowID()},
		}
		if probe.Text == "" {
			probe.Text = lr.GetTitle()
		}
	}
	if br := msg.GetButtonsResponseMessage(); br != nil {
		probe.SelectedID = br.GetSelectedButtonID()
		probe.SelectedDisplayText = br.GetSelectedDisplayText()
		if probe.Text == "" {
			probe.Text = br.GetSelectedDisplayText()
		}
	}
	if tb := msg.GetTemplateButtonReplyMessage(); tb != nil {
		probe.SelectedID = tb.GetSelectedID()
		probe.SelectedDisplayText = tb.GetSelectedDisplayText()
		if probe.Text == "" {
			probe.Text = tb.GetSelectedDisplayText()
		}
	}
	if probe.Text == "" {
		probe.Text = firstCaption(msg)
	}

	return transport.Inbound{
		From:     v.Info.Chat.String(),
		Name:     v.Info.PushName,
		Text:     probe.Text,
		IsGroup:  v.Info.IsGroup,
		FromMe:   v.Info.IsFromMe,
		IsStatus: v.Info.Chat == types.StatusBroadcastJID,
		Reply:    transport.DetectReply(probe),
	}
}

func firstCaption(msg *waE2E.Message) string {
	for _, c := range []string{
		msg.GetImageMessage().GetCaption(),
		msg.GetVideoMessage().GetCaption(),
		msg.GetDocumentMessage().GetCaption(),
	} {
		if c != "" {
			return c
		}
	}
	return ""
}

// ParseRecipient accepts a bare number, a "+" prefixed number or any JID,
// including the legacy "@c.us" form.
func ParseRecipient(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if strings.Contains(to, "@") {
		return types.ParseJID(strings.Replace(to, "@c.us", "@"+types.DefaultUserServer, 1))
	}
	user := transport.NormalizeRecipient(to)
	if user == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}

func (s *Session) send(ctx context.Context, to string, msg *waE2E.Message) error {
	jid, err := ParseRecipient(to)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", to, err)
	}
	resp, err := s.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return fmt.Errorf("send to %s: %w", jid, err)
	}
	s.logger.Debug().Str("to", jid.String()).Str("id", resp.ID).Msg("message sent")
	return nil
}

func (s *Session) SendText(ctx context.Context, to, text string) error {
	return s.send(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (s *Session) SendMedia(ctx context.Context, to string, m transport.MediaMessage) error {
	media, err := s.media.Load(ctx, m.Ref)
	if err != nil {
		return err
	}
	mime := baseMIME(media.MIME)

	appInfo := whatsmeow.MediaDocument
	switch m.Kind {
	case transport.MediaImage, transport.MediaSticker:
		appInfo = whatsmeow.MediaImage
	case transport.MediaGIF:
		appInfo = whatsmeow.MediaImage
		if strings.HasPrefix(mime, "video/") {
			appInfo = whatsmeow.MediaVideo
		}
	case transport.MediaVideo:
		appInfo = whatsmeow.MediaVideo
	case transport.MediaAudio:
		appInfo = whatsmeow.MediaAudio
	}

	up, err := s.client.Upload(ctx, media.Data, appInfo)
	if err != nil {
		return fmt.Errorf("upload %s: %w", media.Filename, err)
	}
	size := uint64(len(media.Data))
	caption := proto.String(m.Caption)

	msg := &waE2E.Message{}
	switch {
	case m.Kind == transport.MediaSticker:
		msg.StickerMessage = &waE2E.StickerMessage{
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}
	case appInfo == whatsmeow.MediaImage:
		msg.ImageMessage = &waE2E.ImageMessage{
			Caption:       caption,
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}
	case appInfo == whatsmeow.MediaVideo:
		msg.VideoMessage = &waE2E.VideoMessage{
			Caption:       caption,
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			GifPlayback:   proto.Bool(m.Kind == transport.MediaGIF),
		}
	case appInfo == whatsmeow.MediaAudio:
		audio := &waE2E.AudioMessage{
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			PTT:           proto.Bool(m.Voice),
		}
		msg.AudioMessage = audio
		err := s.send(ctx, to, msg)
		if err == nil || !m.Voice {
			return err
		}
		s.logger.Warn().Err(err).Str("ref", m.Ref).Msg("voice note rejected, retrying as audio file")
		audio.PTT = proto.Bool(false)
		return s.send(ctx, to, msg)
	default:
		msg.DocumentMessage = &waE2E.DocumentMessage{
			Caption:       caption,
			Title:         proto.String(media.Filename),
			FileName:      proto.String(media.Filename),
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
		}
	}
	return s.send(ctx, to, msg)
}

func (s *Session) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return s.send(ctx, to, &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
		DegreesLatitude:  proto.Float64(loc.Latitude),
		DegreesLongitude: proto.Float64(loc.Longitude),
		Name:             proto.String(loc.Description),
	}})
}

// SendInteractiveList renders the list as numbered text; multi-device
// sessions cannot send native list messages reliably.
func (s *Session) SendInteractiveList(ctx context.Context, to string, list models.InteractiveList) error {
	return s.SendText(ctx, to, ListText(list))
}

func (s *Session) SendButtons(ctx context.Context, to, text string, buttons []models.Button) error {
	return s.SendText(ctx, to, NumberedText(text, buttons))
}

func (s *Session) SetPresence(ctx context.Context, to string, p transport.Presence) error {
	jid, err := ParseRecipient(to)
	if err != nil {
		return err
	}
	state, media := types.ChatPresencePaused, types.ChatPresenceMediaText
	switch p {
	case transport.PresenceTyping:
		state = types.ChatPresenceComposing
	case transport.PresenceRecording:
		state, media = types.ChatPresenceComposing, types.ChatPresenceMediaAudio
	}
	return s.client.SendChatPresence(ctx, jid, state, media)
}

// ListText renders an interactive list as plain text.
func ListText(list models.InteractiveList) string {
	var b strings.Builder
	line := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	if list.Title != "" {
		line("*" + list.Title + "*")
	}
	line(list.Description)
	n := 0
	for _, sec := range list.Sections {
		if sec.Title != "" {
			line("\n_" + sec.Title + "_")
		}
		for _, r := range sec.Rows {
			n++
			row := fmt.Sprintf("%d. %s", n, r.Title)
			if r.Description != "" {
				row += " - " + r.Description
			}
			line(row)
		}
	}
	return b.String()
}
