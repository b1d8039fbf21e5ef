package models

import (
	"bytes"
	"encoding/json"
)

// WebhookPayload represents the incoming JSON payload from the WhatsApp Cloud API
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value CloudValue `json:"value"`
			Field string     `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

type CloudValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts,omitempty"`
	Messages []CloudMessage `json:"messages,omitempty"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientId string `json:"recipient_id"`
	} `json:"statuses,omitempty"`
}

type CloudMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image       *MediaMessage       `json:"image,omitempty"`
	Video       *MediaMessage       `json:"video,omitempty"`
	Audio       *MediaMessage       `json:"audio,omitempty"`
	Document    *MediaMessage       `json:"document,omitempty"`
	Sticker     *MediaMessage       `json:"sticker,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Button      *TemplateButton     `json:"button,omitempty"`
}

// MediaMessage represents a media attachment in a WhatsApp message
type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InteractiveMessage represents an interactive message response (buttons, lists)
type InteractiveMessage struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// TemplateButton is a quick-reply tap on a template message.
type TemplateButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// GenericMessage is the loose payload accepted from bridge clients. It
// carries every list and button encoding those clients are known to emit.
type GenericMessage struct {
	From   string `json:"from"`
	Sender *struct {
		Pushname   string `json:"pushname"`
		NotifyName string `json:"notifyName"`
	} `json:"sender,omitempty"`
	NotifyName string      `json:"notifyName,omitempty"`
	Body       GenericBody `json:"body"`
	Caption    string      `json:"caption,omitempty"`
	IsGroupMsg bool        `json:"isGroupMsg"`
	FromMe     bool        `json:"fromMe"`
	IsStatus   bool        `json:"isStatus"`

	ListResponse        *GenericListResponse `json:"listResponse,omitempty"`
	SelectedID          string               `json:"selectedId,omitempty"`
	SelectedDisplayText string               `json:"selectedDisplayText,omitempty"`
	List                *struct {
		ListResponse *GenericListResponse `json:"listResponse,omitempty"`
	} `json:"list,omitempty"`
}

type GenericListResponse struct {
	SingleSelectReply *struct {
		SelectedRowID string `json:"selectedRowId"`
	} `json:"singleSelectReply,omitempty"`
	RowID string `json:"rowId,omitempty"`
}

// GenericBody is either the message text or an object carrying a list
// selection as {"listResponse": "<rowId>"}.
type GenericBody struct {
	Text         string
	ListResponse string
}

func (b *GenericBody) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &b.Text)
	}
	var obj struct {
		Text         string `json:"text"`
		ListResponse string `json:"listResponse"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	b.Text, b.ListResponse = obj.Text, obj.ListResponse
	return nil
}

func (b GenericBody) MarshalJSON() ([]byte, error) {
	if b.ListResponse == "" {
		return json.Marshal(b.Text)
	}
	return json.Marshal(map[string]string{"text": b.Text, "listResponse": b.ListResponse})
}
