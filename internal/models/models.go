package models

import (
	"time"
)

// ResponseMode selects how a piece of content is split into outbound parts.
type ResponseMode string

const (
	ResponseSingle ResponseMode = "single"
	ResponseMulti  ResponseMode = "multi"
)

// BotDirective toggles the global pause when an option fires.
type BotDirective string

const (
	DirectiveNone       BotDirective = ""
	DirectivePauseAll   BotDirective = "pause-all"
	DirectiveUnpauseAll BotDirective = "unpause-all"
)

// Recurrence is the rule used to derive a scheduled message's next send time.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceHourly  Recurrence = "hourly"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ScheduleStatus tracks whether a scheduled message still has to go out.
type ScheduleStatus string

const (
	StatusPending ScheduleStatus = "pending"
	StatusSent    ScheduleStatus = "sent"
)

// MediaRefs holds one path-or-URL per media kind. Empty means absent.
type MediaRefs struct {
	Image   string `json:"image,omitempty"`
	GIF     string `json:"gif,omitempty"`
	PDF     string `json:"pdf,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Sticker string `json:"sticker,omitempty"`
	Video   string `json:"video,omitempty"`
}

// Content is the response payload shared by menu options and scheduled messages.
type Content struct {
	ResponseMode ResponseMode `gorm:"type:varchar(10);default:'single'" json:"responseMode"`
	TextBody     string       `gorm:"type:text" json:"textBody,omitempty"`
	Media        MediaRefs    `gorm:"type:text;serializer:json" json:"media"`
}

// Location is a map pin attached to an option.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
}

type ListRow struct {
	RowID       string `json:"rowId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// InteractiveList is a selectable list sent with an option, plus the replies
// keyed by row identifier that answer a selection.
type InteractiveList struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	ButtonText  string            `json:"buttonText,omitempty"`
	Sections    []ListSection     `json:"sections"`
	Replies     map[string]string `json:"replies,omitempty"`
}

type Button struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// MenuOption represents a configured conversational rule
type MenuOption struct {
	ID       string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Position int    `gorm:"index" json:"-"`
	Title    string `gorm:"type:varchar(255)" json:"title"`
	Trigger  string `gorm:"type:varchar(255)" json:"trigger,omitempty"`
	Content
	Location           *Location        `gorm:"type:text;serializer:json" json:"location,omitempty"`
	InteractiveList    *InteractiveList `gorm:"type:text;serializer:json" json:"interactiveList,omitempty"`
	Buttons            []Button         `gorm:"type:text;serializer:json" json:"buttons,omitempty"`
	Link               string           `gorm:"type:text" json:"link,omitempty"`
	TypingIndicator    bool             `json:"typingIndicator"`
	RecordingIndicator bool             `json:"recordingIndicator"`
	PreDelayMs         int              `json:"preDelayMs"`
	BotStatusDirective BotDirective     `gorm:"type:varchar(20)" json:"botStatusDirective,omitempty"`
	UserPauseMinutes   int              `json:"userPauseMinutes"`
	Active             bool             `gorm:"not null" json:"active"`
}

func (MenuOption) TableName() string {
	return "menu_options"
}

// ScheduledMessage represents a message to be sent at a future time
type ScheduledMessage struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Position   int            `gorm:"index" json:"-"`
	Name       string         `gorm:"type:varchar(255)" json:"name"`
	Recipient  string         `gorm:"type:varchar(50);not null" json:"recipient"`
	SendAt     time.Time      `gorm:"not null" json:"sendAt"`
	Recurrence Recurrence     `gorm:"type:varchar(20);default:'none'" json:"recurrence"`
	Status     ScheduleStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Content
}

func (ScheduledMessage) TableName() string {
	return "scheduled_messages"
}

// MessageLogEntry is one line of the audit ring.
type MessageLogEntry struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	ContactName string    `gorm:"type:varchar(255)" json:"contactName"`
	ContactID   string    `gorm:"type:varchar(64)" json:"contactId"`
	Text        string    `gorm:"type:text" json:"text"`
}

func (MessageLogEntry) TableName() string {
	return "message_logs"
}

// PauseEntry is a per-contact suppression window.
type PauseEntry struct {
	ContactID string `gorm:"primaryKey;type:varchar(64)"`
	ExpiresAt int64  `gorm:"not null"` // epoch milliseconds
}

func (PauseEntry) TableName() string {
	return "pause_entries"
}

// ResponseHistory keeps the last text body answered to each contact.
type ResponseHistory struct {
	ContactID string    `gorm:"primaryKey;type:varchar(64)"`
	Response  string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ResponseHistory) TableName() string {
	return "response_history"
}

// SystemSetting stores document-level scalars as key/value rows.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// Votes counts yes/no answers to the built-in poll.
type Votes struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// GlobalMedia is sent when a contact types one of the media keywords.
type GlobalMedia struct {
	PDF   string `json:"pdf,omitempty"`
	Audio string `json:"audio,omitempty"`
	GIF   string `json:"gif,omitempty"`
	Image string `json:"image,omitempty"`
}

// Settings groups the document-level knobs that are not collections.
type Settings struct {
	WelcomeMessage string `json:"welcomeMessage,omitempty"`
	GroupMessages  bool   `json:"groupMessages"`
	HandoffKeyword string `json:"handoffKeyword"`
	HandoffMinutes int    `json:"handoffMinutes"`
}
