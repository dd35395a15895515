package rikka

import (
	"strings"
	"testing"

	"rikkaport/internal/ir"
)

func TestDeriveConversationTitle_UsesExistingTitle(t *testing.T) {
	conv := ir.IRConversation{
		Title: "  My Topic  ",
		Messages: []ir.IRMessage{
			{Role: "user", Parts: []ir.IRPart{{Type: "text", Content: "hello"}}},
		},
	}
	if got := DeriveConversationTitle(conv); got != "My Topic" {
		t.Fatalf("expected existing title, got=%q", got)
	}
}

func TestDeriveConversationTitle_PrefersUserText(t *testing.T) {
	conv := ir.IRConversation{
		Messages: []ir.IRMessage{
			{Role: "assistant", Parts: []ir.IRPart{{Type: "text", Content: "assistant hello"}}},
			{Role: "user", Parts: []ir.IRPart{{Type: "text", Content: "  用户想问：如何安装ollama  "}}},
		},
	}
	if got := DeriveConversationTitle(conv); got != "用户想问：如何安装ollama" {
		t.Fatalf("expected derived user title, got=%q", got)
	}
}

func TestDeriveConversationTitle_FallsBackToAnyText(t *testing.T) {
	conv := ir.IRConversation{
		Messages: []ir.IRMessage{
			{Role: "assistant", Parts: []ir.IRPart{{Type: "text", Content: "only assistant text"}}},
		},
	}
	if got := DeriveConversationTitle(conv); got != "only assistant text" {
		t.Fatalf("expected assistant text fallback, got=%q", got)
	}
}

func TestDeriveConversationTitle_FallbackImported(t *testing.T) {
	conv := ir.IRConversation{
		Messages: []ir.IRMessage{{Role: "assistant", Parts: []ir.IRPart{{Type: "tool"}}}},
	}
	if got := DeriveConversationTitle(conv); got != "Imported Conversation" {
		t.Fatalf("expected fallback title, got=%q", got)
	}
}

func TestNormalizeTitleText_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", 120)
	got := normalizeTitleText(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got=%q", got)
	}
	if len([]rune(got)) > 81 {
		t.Fatalf("expected <= 81 runes, got=%d", len([]rune(got)))
	}
}

func TestNormalizeTitleText_CollapsesWhitespace(t *testing.T) {
	if got := normalizeTitleText("  a\n b\t c  "); got != "a b c" {
		t.Fatalf("expected collapsed whitespace, got=%q", got)
	}
}
