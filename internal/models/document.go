package models

import (
	"maps"
	"slices"
)

// MaxLogEntries caps the message log ring.
const MaxLogEntries = 200

const (
	DefaultMessage        = "❓ Não entendi sua mensagem. Como posso ajudar?"
	DefaultHandoffKeyword = "4"
	DefaultHandoffMinutes = 60
)

// Document is the whole persisted configuration: menu, schedules, pause
// registry, audit log and global flags.
type Document struct {
	MenuOptions       []MenuOption       `json:"menuOptions"`
	ScheduledMessages []ScheduledMessage `json:"scheduledMessages"`
	PauseRegistry     map[string]int64   `json:"pauseRegistry"`
	GlobalPause       bool               `json:"globalPause"`
	MessageLog        []MessageLogEntry  `json:"messageLog"`
	DefaultMessage    string             `json:"defaultMessage"`
	Settings          Settings           `json:"settings"`
	ResponseHistory   map[string]string  `json:"responseHistory,omitempty"`
	Votes             Votes              `json:"votes"`
	GlobalMedia       GlobalMedia        `json:"globalMedia"`
}

// DefaultDocument is substituted whenever the stored document cannot be read.
func DefaultDocument() Document {
	return Document{
		MenuOptions:       []MenuOption{},
		ScheduledMessages: []ScheduledMessage{},
		PauseRegistry:     map[string]int64{},
		MessageLog:        []MessageLogEntry{},
		DefaultMessage:    DefaultMessage,
		Settings: Settings{
			HandoffKeyword: DefaultHandoffKeyword,
			HandoffMinutes: DefaultHandoffMinutes,
		},
		ResponseHistory: map[string]string{},
	}
}

// Normalize fills nil collections and zero-valued defaults so callers never
// have to nil-check.
func (d *Document) Normalize() {
	if d.MenuOptions == nil {
		d.MenuOptions = []MenuOption{}
	}
	if d.ScheduledMessages == nil {
		d.ScheduledMessages = []ScheduledMessage{}
	}
	if d.PauseRegistry == nil {
		d.PauseRegistry = map[string]int64{}
	}
	if d.MessageLog == nil {
		d.MessageLog = []MessageLogEntry{}
	}
	if d.ResponseHistory == nil {
		d.ResponseHistory = map[string]string{}
	}
	if d.DefaultMessage == "" {
		d.DefaultMessage = DefaultMessage
	}
	if d.Settings.HandoffMinutes <= 0 {
		d.Settings.HandoffMinutes = DefaultHandoffMinutes
	}
	for i := range d.MenuOptions {
		if d.MenuOptions[i].ResponseMode == "" {
			d.MenuOptions[i].ResponseMode = ResponseSingle
		}
	}
	for i := range d.ScheduledMessages {
		m := &d.ScheduledMessages[i]
		if m.ResponseMode == "" {
			m.ResponseMode = ResponseSingle
		}
		if m.Recurrence == "" {
			m.Recurrence = RecurrenceNone
		}
		if m.Status == "" {
			m.Status = StatusPending
		}
	}
	if len(d.MessageLog) > MaxLogEntries {
		d.MessageLog = slices.Clone(d.MessageLog[len(d.MessageLog)-MaxLogEntries:])
	}
}

// Clone returns a deep copy that shares no mutable state with d.
func (d Document) Clone() Document {
	out := d
	out.MenuOptions = make([]MenuOption, len(d.MenuOptions))
	for i, o := range d.MenuOptions {
		out.MenuOptions[i] = o.Clone()
	}
	out.ScheduledMessages = slices.Clone(d.ScheduledMessages)
	out.PauseRegistry = maps.Clone(d.PauseRegistry)
	out.MessageLog = slices.Clone(d.MessageLog)
	out.ResponseHistory = maps.Clone(d.ResponseHistory)
	return out
}

// Clone returns a deep copy of the option.
func (o MenuOption) Clone() MenuOption {
	out := o
	if o.Location != nil {
		loc := *o.Location
		out.Location = &loc
	}
	if o.InteractiveList != nil {
		l := *o.InteractiveList
		l.Sections = make([]ListSection, len(o.InteractiveList.Sections))
		for i, s := range o.InteractiveList.Sections {
			l.Sections[i] = ListSection{Title: s.Title, Rows: slices.Clone(s.Rows)}
		}
		l.Replies = maps.Clone(o.InteractiveList.Replies)
		out.InteractiveList = &l
	}
	out.Buttons = slices.Clone(o.Buttons)
	return out
}

// OptionIndex returns the position of the option with id, or -1.
func (d *Document) OptionIndex(id string) int {
	return slices.IndexFunc(d.MenuOptions, func(o MenuOption) bool { return o.ID == id })
}

// ScheduledIndex returns the position of the scheduled message with id, or -1.
func (d *Document) ScheduledIndex(id string) int {
	return slices.IndexFunc(d.ScheduledMessages, func(m ScheduledMessage) bool { return m.ID == id })
}

// AppendLog adds e to the log ring, evicting the oldest entries beyond MaxLogEntries.
func (d *Document) AppendLog(e MessageLogEntry) {
	d.MessageLog = append(d.MessageLog, e)
	if over := len(d.MessageLog) - MaxLogEntries; over > 0 {
		d.MessageLog = slices.Delete(d.MessageLog, 0, over)
	}
}
