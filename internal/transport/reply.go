package transport

import "strings"

// ReplyKind tags what kind of structured selection, if any, a message carries.
type ReplyKind int

const (
	NoReply ReplyKind = iota
	RowSelection
	ButtonSelection
	PlainTextSentinel
)

func (k ReplyKind) String() string {
	switch k {
	case RowSelection:
		return "row"
	case ButtonSelection:
		return "button"
	case PlainTextSentinel:
		return "sentinel"
	}
	return "none"
}

// Reply is the normalized structured reply. ID is lowercased.
type Reply struct {
	Kind ReplyKind
	ID   string
}

func (r Reply) Present() bool {
	return r.Kind != NoReply && r.ID != ""
}

type SingleSelectReply struct {
	SelectedRowID string `json:"selectedRowId,omitempty"`
}

type ListResponse struct {
	SingleSelectReply *SingleSelectReply `json:"singleSelectReply,omitempty"`
	RowID             string             `json:"rowId,omitempty"`
}

type ListEnvelope struct {
	ListResponse *ListResponse `json:"listResponse,omitempty"`
}

// Probe carries every loosely-typed field a transport may use to encode a
// list or button selection. Adapters fill what they have and call
// DetectReply once.
type Probe struct {
	Text                string
	ListResponse        *ListResponse
	SelectedID          string
	SelectedDisplayText string
	List                *ListEnvelope
	BodyListResponse    string
}

// DetectReply tries the known selection encodings in order and returns the
// first one that yields an identifier.
func DetectReply(p Probe) Reply {
	if lr := p.ListResponse; lr != nil {
		if lr.SingleSelectReply != nil && lr.SingleSelectReply.SelectedRowID != "" {
			return row(lr.SingleSelectReply.SelectedRowID)
		}
		if lr.RowID != "" {
			return row(lr.RowID)
		}
	}
	if p.SelectedID != "" || p.SelectedDisplayText != "" {
		id := p.SelectedID
		if id == "" {
			id = p.SelectedDisplayText
		}
		return Reply{Kind: ButtonSelection, ID: strings.ToLower(id)}
	}
	if p.List != nil && p.List.ListResponse != nil {
		if ssr := p.List.ListResponse.SingleSelectReply; ssr != nil && ssr.SelectedRowID != "" {
			return row(ssr.SelectedRowID)
		}
	}
	if p.BodyListResponse != "" {
		return row(p.BodyListResponse)
	}

	text := strings.ToLower(strings.TrimSpace(p.Text))
	switch {
	case strings.HasPrefix(text, "option_"), text == "sim", text == "nao", text == "talvez":
		return Reply{Kind: PlainTextSentinel, ID: text}
	case text == "não":
		return Reply{Kind: PlainTextSentinel, ID: "nao"}
	}

	if p.ListResponse == nil && p.List == nil {
		return Reply{}
	}
	switch {
	case strings.Contains(text, "sim"), strings.Contains(text, "confirmar"):
		return Reply{Kind: RowSelection, ID: "sim"}
	case strings.Contains(text, "não"), strings.Contains(text, "nao"), strings.Contains(text, "cancelar"):
		return Reply{Kind: RowSelection, ID: "nao"}
	case strings.Contains(text, "talvez"), strings.Contains(text, "depois"):
		return Reply{Kind: RowSelection, ID: "talvez"}
	}
	return Reply{}
}

func row(id string) Reply {
	return Reply{Kind: RowSelection, ID: strings.ToLower(strings.TrimSpace(id))}
}
