package rikka

import (
	"strings"

	"rikkaport/internal/ir"
)

// DeriveConversationTitle picks the stored title when present, otherwise the
// first usable text from the conversation, preferring user messages, and
// finally a fixed label. Titles collapse to single-spaced text capped at 80
// runes with an ellipsis.
func DeriveConversationTitle(conv ir.IRConversation) string {
	if title := normalizeTitleText(conv.Title); title != "" {
		return title
	}
	if title := titleFromMessages(conv.Messages, true); title != "" {
		return title
	}
	if title := titleFromMessages(conv.Messages, false); title != "" {
		return title
	}
	return "Imported Conversation"
}

func titleFromMessages(messages []ir.IRMessage, preferUser bool) string {
	for _, m := range messages {
		if preferUser && !strings.EqualFold(strings.TrimSpace(m.Role), "user") {
			continue
		}
		for _, p := range m.Parts {
			switch p.Type {
			case "text", "reasoning":
				if title := normalizeTitleText(p.Content); title != "" {
					return title
				}
			case "tool":
				if title := normalizeTitleText(p.Name); title != "" {
					return title
				}
				if title := normalizeTitleText(p.Content); title != "" {
					return title
				}
			case "document", "image", "video", "audio":
				if title := normalizeTitleText(p.Name); title != "" {
					return title
				}
			}
		}
	}
	return ""
}

func normalizeTitleText(input string) string {
	s := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if s == "" {
		return ""
	}
	const maxRunes = 80
	if runes := []rune(s); len(runes) > maxRunes {
		s = strings.TrimSpace(string(runes[:maxRunes])) + "…"
	}
	return s
}
