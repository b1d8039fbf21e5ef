package automation

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/textnorm"
	"whatsapp-autoresponder/internal/transport"
)

type MatchKind int

const (
	MatchNone MatchKind = iota
	// MatchStructured answers a list or button selection with Text.
	MatchStructured
	// MatchMenu shows the welcome text and the menu.
	MatchMenu
	// MatchOption fires Option.
	MatchOption
)

func (k MatchKind) String() string {
	switch k {
	case MatchStructured:
		return "structured"
	case MatchMenu:
		return "menu"
	case MatchOption:
		return "option"
	}
	return "none"
}

type Match struct {
	Kind   MatchKind
	Option models.MenuOption
	// Index is the option's position in the menu, 0-based.
	Index int
	Text  string
	Vote  Vote
	// By names the step that matched, for logs and metrics.
	By string
}

// Resolve maps an inbound message onto the configured menu. Steps are tried
// in order and the first hit wins; ties go to the earliest declared option.
func Resolve(doc models.Document, in transport.Inbound) Match {
	if in.Reply.Present() {
		return resolveSelection(doc, in.Reply.ID)
	}

	norm := textnorm.Normalize(in.Text)
	if norm == "" {
		return Match{Kind: MatchNone}
	}

	if IsGreeting(norm) {
		return Match{Kind: MatchMenu, By: "greeting"}
	}
	for _, o := range doc.MenuOptions {
		if o.Title != "" && textnorm.Normalize(o.Title) == norm {
			return Match{Kind: MatchMenu, By: "title"}
		}
	}

	for i, o := range doc.MenuOptions {
		if !o.Active || o.Trigger == "" {
			continue
		}
		if textnorm.Normalize(o.Trigger) == norm {
			return Match{Kind: MatchOption, Option: o.Clone(), Index: i, By: "trigger"}
		}
	}

	if n, err := strconv.Atoi(norm); err == nil && n > 0 && n <= len(doc.MenuOptions) {
		return Match{Kind: MatchOption, Option: doc.MenuOptions[n-1].Clone(), Index: n - 1, By: "position"}
	}
	return Match{Kind: MatchNone}
}

// resolveSelection answers a structured reply. It always produces a text.
func resolveSelection(doc models.Document, id string) Match {
	candidate := strings.ToLower(strings.TrimSpace(id))
	if candidate == "não" {
		candidate = "nao"
	}
	base := strings.TrimPrefix(candidate, "option_")

	for i, o := range doc.MenuOptions {
		list := o.InteractiveList
		if list == nil {
			continue
		}
		if text, by, ok := lookupListReply(list, candidate, base); ok {
			return Match{Kind: MatchStructured, Option: o.Clone(), Index: i, Text: text, By: by}
		}
	}

	for _, key := range []string{candidate, base} {
		if text, vote, ok := structuredFallback(key); ok {
			return Match{Kind: MatchStructured, Index: -1, Text: text, Vote: vote, By: "vocabulary"}
		}
	}
	return Match{Kind: MatchStructured, Index: -1, Text: "Seleção recebida: " + candidate, By: "echo"}
}

func lookupListReply(list *models.InteractiveList, candidate, base string) (string, string, bool) {
	if r := list.Replies[candidate]; r != "" {
		return r, "reply", true
	}
	if base != candidate {
		if r := list.Replies[base]; r != "" {
			return r, "reply-base", true
		}
	}

	for _, s := range list.Sections {
		for _, row := range s.Rows {
			if !strings.EqualFold(row.RowID, candidate) && !strings.EqualFold(row.RowID, base) {
				continue
			}
			if r := list.Replies[strings.ToLower(row.RowID)]; r != "" {
				return r, "row", true
			}
			if r := list.Replies[row.RowID]; r != "" {
				return r, "row", true
			}
			return "Você selecionou: " + row.Title, "row-title", true
		}
	}

	nc, nb := textnorm.Normalize(candidate), textnorm.Normalize(base)
	for _, key := range slices.Sorted(maps.Keys(list.Replies)) {
		nk := textnorm.Normalize(key)
		if (nk == nc || nk == nb) && list.Replies[key] != "" {
			return list.Replies[key], "reply-normalized", true
		}
	}
	return "", "", false
}
