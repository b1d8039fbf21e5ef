package automation

import (
	"fmt"
	"path/filepath"
	"strings"

	"whatsapp-autoresponder/internal/models"
	"whatsapp-autoresponder/internal/transport"
)

type PartKind int

const (
	PartText PartKind = iota
	PartMedia
	PartLocation
	PartList
	PartButtons
)

// Part is one outbound unit of a response.
type Part struct {
	Kind     PartKind
	Text     string
	Media    transport.MediaMessage
	Location models.Location
	List     *models.InteractiveList
	Buttons  []models.Button
}

func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

type mediaSlot struct {
	kind transport.MediaKind
	ref  func(models.MediaRefs) string
}

// Media kinds sent with the text as caption, in priority order.
var captionedTier = []mediaSlot{
	{transport.MediaImage, func(m models.MediaRefs) string { return m.Image }},
	{transport.MediaGIF, func(m models.MediaRefs) string { return m.GIF }},
	{transport.MediaPDF, func(m models.MediaRefs) string { return m.PDF }},
	{transport.MediaVideo, func(m models.MediaRefs) string { return m.Video }},
}

// Media kinds that cannot carry a caption; the text goes out just before them.
var trailingTier = []mediaSlot{
	{transport.MediaAudio, func(m models.MediaRefs) string { return m.Audio }},
	{transport.MediaSticker, func(m models.MediaRefs) string { return m.Sticker }},
}

// Composer turns stored content into outbound parts.
type Composer struct {
	mediaRoot string
}

// NewComposer resolves relative media references against mediaRoot.
func NewComposer(mediaRoot string) *Composer {
	if abs, err := filepath.Abs(mediaRoot); err == nil {
		mediaRoot = abs
	}
	return &Composer{mediaRoot: mediaRoot}
}

// Compose builds the parts for content under mode. In single mode at most one
// media item goes out; in multi mode every present item does.
func (c *Composer) Compose(content models.Content, mode models.ResponseMode) []Part {
	text := content.TextBody
	var parts []Part

	if mode == models.ResponseMulti {
		if text != "" {
			parts = append(parts, TextPart(text))
		}
		for _, slot := range captionedTier {
			if ref := slot.ref(content.Media); ref != "" {
				parts = append(parts, c.mediaPart(slot.kind, ref, text))
			}
		}
		for _, slot := range trailingTier {
			if ref := slot.ref(content.Media); ref != "" {
				if text != "" {
					parts = append(parts, TextPart(text))
				}
				parts = append(parts, c.mediaPart(slot.kind, ref, ""))
			}
		}
		return parts
	}

	for _, slot := range captionedTier {
		if ref := slot.ref(content.Media); ref != "" {
			return []Part{c.mediaPart(slot.kind, ref, text)}
		}
	}
	for _, slot := range trailingTier {
		if ref := slot.ref(content.Media); ref != "" {
			if text != "" {
				parts = append(parts, TextPart(text))
			}
			return append(parts, c.mediaPart(slot.kind, ref, ""))
		}
	}
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	return parts
}

// MediaPart builds a single captioned media part, as used for the global
// media keywords.
func (c *Composer) MediaPart(kind transport.MediaKind, ref, caption string) Part {
	return c.mediaPart(kind, ref, caption)
}

func (c *Composer) mediaPart(kind transport.MediaKind, ref, caption string) Part {
	resolved := c.Resolve(ref)
	return Part{Kind: PartMedia, Media: transport.MediaMessage{
		Kind:     kind,
		Ref:      resolved,
		Filename: filepath.Base(resolved),
		Caption:  caption,
		Voice:    kind == transport.MediaAudio,
	}}
}

// Resolve turns a stored media reference into an absolute path. URLs are
// returned unchanged.
func (c *Composer) Resolve(ref string) string {
	if isURL(ref) || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(c.mediaRoot, filepath.FromSlash(ref))
}

func isURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Extras are the parts an option sends after its content: location, link,
// interactive list and buttons, in that order.
func (c *Composer) Extras(opt models.MenuOption, text string) []Part {
	var parts []Part
	if opt.Location != nil {
		parts = append(parts, Part{Kind: PartLocation, Location: *opt.Location})
	}
	if opt.Link != "" {
		parts = append(parts, TextPart(opt.Link))
	}
	if opt.InteractiveList != nil && len(opt.InteractiveList.Sections) > 0 {
		list := opt.Clone().InteractiveList
		if list.Description == "" {
			list.Description = text
		}
		parts = append(parts, Part{Kind: PartList, List: list})
	}
	if len(opt.Buttons) > 0 {
		label := text
		if label == "" {
			label = opt.Title
		}
		parts = append(parts, Part{Kind: PartButtons, Text: label, Buttons: opt.Buttons})
	}
	return parts
}

// MenuText enumerates the active options, numbered by their position in the
// menu so the number typed back selects the same option.
func MenuText(doc models.Document) Part {
	var b strings.Builder
	b.WriteString(menuHeader)
	b.WriteString("\n\n")
	first := true
	for i, o := range doc.MenuOptions {
		if !o.Active {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		fmt.Fprintf(&b, "%d\uFE0F\u20E3 - %s", i+1, o.Title)
	}
	b.WriteString("\n\n")
	b.WriteString(menuFooter)
	return TextPart(b.String())
}

// WelcomeText is the greeting sent ahead of the menu.
func WelcomeText(doc models.Document) Part {
	if w := strings.TrimSpace(doc.Settings.WelcomeMessage); w != "" {
		return TextPart(w)
	}
	return TextPart(DefaultWelcome)
}

// Interpolate fills the contact placeholders in text.
func Interpolate(text, name, phone string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	if name == "" {
		name = phone
	}
	return strings.NewReplacer(
		"{nome}", name,
		"{name}", name,
		"{telefone}", phone,
		"{phone}", phone,
	).Replace(text)
}
