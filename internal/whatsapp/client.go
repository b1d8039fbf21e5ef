package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"

	"github.com/rs/zerolog"
)

// Cloud API limits for interactive messages.
const (
	maxListRows       = 10
	maxButtons        = 3
	maxButtonTitle    = 20
	maxRowTitle       = 24
	maxRowDescription = 72
)

// Client talks to the WhatsApp Cloud API.
type Client struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	HTTP          *http.Client
	media         *MediaLoader
	logger        zerolog.Logger
}

func NewClient(baseURL, token, phoneNumberID string, logger zerolog.Logger) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Token:         token,
		PhoneNumberID: phoneNumberID,
		HTTP:          httpClient,
		media:         NewMediaLoader(httpClient),
		logger:        logger.With().Str("component", "cloud").Logger(),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Audio            *MediaObj       `json:"audio,omitempty"`
	Document         *MediaObj       `json:"document,omitempty"`
	Sticker          *MediaObj       `json:"sticker,omitempty"`
	Location         *LocationObj    `json:"location,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // documents only
}

type LocationObj struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type InteractiveObj struct {
	Type   string     `json:"type"`
	Header *HeaderObj `json:"header,omitempty"`
	Body   BodyObj    `json:"body"`
	Footer *FooterObj `json:"footer,omitempty"`
	Action ActionObj  `json:"action"`
}

type HeaderObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type FooterObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Button   string       `json:"button,omitempty"`
	Buttons  []ButtonObj  `json:"buttons,omitempty"`
	Sections []SectionObj `json:"sections,omitempty"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type SectionObj struct {
	Title string   `json:"title,omitempty"`
	Rows  []RowObj `json:"rows,omitempty"`
}

type RowObj struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// --- Messaging Methods ---

func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) error {
	msg.MessagingProduct = "whatsapp"
	msg.To = transport.NormalizeRecipient(msg.To)
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	if _, err := c.sendRequest(ctx, http.MethodPost, url, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Type, msg.To, err)
	}
	c.logger.Debug().Str("to", msg.To).Str("type", msg.Type).Msg("message sent")
	return nil
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "text",
		Text: &TextObj{Body: text, PreviewUrl: strings.Contains(text, "http")},
	})
}

// SendMedia sends URLs by link and uploads local files first.
func (c *Client) SendMedia(ctx context.Context, to string, m transport.MediaMessage) error {
	obj := &MediaObj{Caption: m.Caption}
	if isURL(m.Ref) {
		obj.Link = m.Ref
	} else {
		media, err := c.media.Load(ctx, m.Ref)
		if err != nil {
			return err
		}
		up, err := c.UploadMedia(ctx, media.Data, baseMIME(media.MIME), media.Filename)
		if err != nil {
			return err
		}
		obj.ID = up.ID
	}

	msg := GenericMessage{To: to}
	switch m.Kind {
	case transport.MediaImage, transport.MediaGIF:
		msg.Type, msg.Image = "image", obj
	case transport.MediaVideo:
		msg.Type, msg.Video = "video", obj
	case transport.MediaAudio:
		obj.Caption = ""
		msg.Type, msg.Audio = "audio", obj
	case transport.MediaSticker:
		obj.Caption = ""
		msg.Type, msg.Sticker = "sticker", obj
	default:
		obj.Filename = m.Filename
		msg.Type, msg.Document = "document", obj
	}
	return c.SendRawMessage(ctx, msg)
}

func (c *Client) SendLocation(ctx context.Context, to string, loc models.Location) error {
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "location",
		Location: &LocationObj{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Name:      loc.Description,
		},
	})
}

// SendInteractiveList sends a list message. Rows beyond the Cloud API limit
// are dropped.
func (c *Client) SendInteractiveList(ctx context.Context, to string, list models.InteractiveList) error {
	body := list.Description
	if body == "" {
		body = "Selecione uma opção"
	}
	button := list.ButtonText
	if button == "" {
		button = "Ver opções"
	}

	var sections []SectionObj
	rows := 0
	for _, s := range list.Sections {
		sec := SectionObj{Title: truncate(s.Title, maxRowTitle)}
		for _, r := range s.Rows {
			if rows == maxListRows {
				break
			}
			sec.Rows = append(sec.Rows, RowObj{
				ID:          r.RowID,
				Title:       truncate(r.Title, maxRowTitle),
				Description: truncate(r.Description, maxRowDescription),
			})
			rows++
		}
		if len(sec.Rows) > 0 {
			sections = append(sections, sec)
		}
	}
	if rows < countRows(list) {
		c.logger.Warn().Int("rows", countRows(list)).Int("sent", rows).Msg("interactive list truncated")
	}

	interactive := &InteractiveObj{
		Type:   "list",
		Body:   BodyObj{Text: body},
		Action: ActionObj{Button: truncate(button, maxButtonTitle), Sections: sections},
	}
	if list.Title != "" {
		interactive.Header = &HeaderObj{Type: "text", Text: list.Title}
	}
	return c.SendRawMessage(ctx, GenericMessage{To: to, Type: "interactive", Interactive: interactive})
}

func countRows(list models.InteractiveList) int {
	n := 0
	for _, s := range list.Sections {
		n += len(s.Rows)
	}
	return n
}

// SendButtons sends reply buttons, or a numbered text when there are more
// buttons than the Cloud API allows.
func (c *Client) SendButtons(ctx context.Context, to, text string, buttons []models.Button) error {
	if len(buttons) > maxButtons {
		return c.SendText(ctx, to, NumberedText(text, buttons))
	}
	var objs []ButtonObj
	for _, b := range buttons {
		id := b.Value
		if id == "" {
			id = b.Label
		}
		objs = append(objs, ButtonObj{Type: "reply", Reply: ReplyObj{ID: id, Title: truncate(b.Label, maxButtonTitle)}})
	}
	return c.SendRawMessage(ctx, GenericMessage{
		To:   to,
		Type: "interactive",
		Interactive: &InteractiveObj{
			Type:   "button",
			Body:   BodyObj{Text: text},
			Action: ActionObj{Buttons: objs},
		},
	})
}

// SetPresence is a no-op: the Cloud API has no typing indicator for
// outbound sends.
func (c *Client) SetPresence(ctx context.Context, to string, p transport.Presence) error {
	c.logger.Debug().Str("to", to).Str("presence", string(p)).Msg("presence not supported by cloud api")
	return nil
}

// --- Media Methods ---

type MediaResponse struct {
	ID string `json:"id"`
}

func (c *Client) UploadMedia(ctx context.Context, fileData []byte, mimeType, filename string) (*MediaResponse, error) {
	url := fmt.Sprintf("%s/%s/media", c.BaseURL, c.PhoneNumberID)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return nil, err
	}
	if err := writer.WriteField("type", mimeType); err != nil {
		return nil, err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(fileData); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	var mediaResp MediaResponse
	if err := json.Unmarshal(respBody, &mediaResp); err != nil {
		return nil, err
	}
	return &mediaResp, nil
}

// NumberedText renders buttons as a numbered list under text, for transports
// without native buttons.
func NumberedText(text string, buttons []models.Button) string {
	var b strings.Builder
	b.WriteString(text)
	for i, btn := range buttons {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, btn.Label)
	}
	return b.String()
}
