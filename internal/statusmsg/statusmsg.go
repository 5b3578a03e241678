// Package statusmsg renders status messages (color, nickname and membership
// changes) into display text. Every surface that shows a status message goes
// through here.
package statusmsg

import (
	"html/template"
	"regexp"
	"strings"

	"chatline/internal/models"
)

const fallback = "Status changed"

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether s is a #RRGGBB color.
func ValidColor(s string) bool {
	return hexColor.MatchString(s)
}

type segment struct {
	text     string
	strong   bool
	swatched bool
}

func build(statusType models.StatusType, content, actor string) []segment {
	switch statusType {
	case models.StatusBubbleColor:
		return []segment{
			{text: actor, strong: true},
			{text: " is looking kinda "},
			{text: content, strong: true, swatched: true},
			{text: "!"},
		}
	case models.StatusNickname:
		return []segment{
			{text: actor, strong: true},
			{text: " is now known as "},
			{text: content, strong: true},
			{text: "!"},
		}
	case models.StatusMembersAdded:
		names := strings.Split(content, "|")
		var out []segment
		for i, name := range names {
			switch {
			case i == 0:
			case i == len(names)-1:
				out = append(out, segment{text: " and "})
			default:
				out = append(out, segment{text: ", "})
			}
			out = append(out, segment{text: name, strong: true})
		}
		return append(out, segment{text: " have joined the chat!"})
	}
	return []segment{{text: fallback}}
}

// Render returns the plain-text sentence for a status message.
func Render(statusType models.StatusType, content, actor string) string {
	var b strings.Builder
	for _, s := range build(statusType, content, actor) {
		b.WriteString(s.text)
	}
	return b.String()
}

// RenderHTML returns the same sentence as an escaped HTML fragment with the
// interpolated values emphasized. A valid bubble color doubles as its swatch.
func RenderHTML(statusType models.StatusType, content, actor string) template.HTML {
	var b strings.Builder
	for _, s := range build(statusType, content, actor) {
		text := template.HTMLEscapeString(s.text)
		switch {
		case s.swatched && ValidColor(s.text):
			b.WriteString(`<strong style="color: ` + s.text + `;">` + text + `</strong>`)
		case s.strong:
			b.WriteString("<strong>" + text + "</strong>")
		default:
			b.WriteString(text)
		}
	}
	return template.HTML(b.String())
}

// ForMessage renders m with actor as the acting member's display name.
// Content messages render to empty strings.
func ForMessage(m models.Message, actor string) (string, template.HTML) {
	if m.Kind != models.KindStatus {
		return "", ""
	}
	var st models.StatusType
	if m.StatusType != nil {
		st = *m.StatusType
	}
	return Render(st, m.Content, actor), RenderHTML(st, m.Content, actor)
}

// JoinNames encodes display names as members_added content.
func JoinNames(names []string) string {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		clean = append(clean, strings.ReplaceAll(n, "|", " "))
	}
	return strings.Join(clean, "|")
}
