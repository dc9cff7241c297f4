package services

import (
	"strings"
	"testing"
)

func TestPlaylistName(t *testing.T) {
	t.Run("passes short prompts through", func(t *testing.T) {
		if got := PlaylistName("late night drive"); got != "late night drive" {
			t.Errorf("expected unchanged name, got %q", got)
		}
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		if got := PlaylistName("  late   night\tdrive "); got != "late night drive" {
			t.Errorf("expected collapsed whitespace, got %q", got)
		}
	})

	t.Run("empty prompt gets the default", func(t *testing.T) {
		if got := PlaylistName("   "); got != defaultPlaylistName {
			t.Errorf("expected default name, got %q", got)
		}
	})

	t.Run("truncates long prompts at a word boundary", func(t *testing.T) {
		prompt := strings.Repeat("melancholy ", 20)
		got := PlaylistName(prompt)

		if len([]rune(got)) > maxPlaylistNameLen {
			t.Errorf("name exceeds limit: %d runes", len([]rune(got)))
		}
		if strings.HasSuffix(got, " ") {
			t.Errorf("name has trailing space: %q", got)
		}
		for _, word := range strings.Fields(got) {
			if word != "melancholy" {
				t.Errorf("truncation split a word: %q", word)
			}
		}
	})

	t.Run("hard cuts an unbroken run", func(t *testing.T) {
		got := PlaylistName(strings.Repeat("a", 150))
		if len([]rune(got)) != maxPlaylistNameLen {
			t.Errorf("expected hard cut to %d runes, got %d", maxPlaylistNameLen, len([]rune(got)))
		}
	})
}

func TestPlaylistDescription(t *testing.T) {
	t.Run("prefixes the prompt", func(t *testing.T) {
		if got := PlaylistDescription("rainy sunday"); got != "Generated from: rainy sunday" {
			t.Errorf("unexpected description: %q", got)
		}
	})

	t.Run("empty prompt yields empty description", func(t *testing.T) {
		if got := PlaylistDescription(""); got != "" {
			t.Errorf("expected empty description, got %q", got)
		}
	})

	t.Run("stays within the limit", func(t *testing.T) {
		got := PlaylistDescription(strings.Repeat("synthwave ", 50))
		if len([]rune(got)) > maxDescriptionLen {
			t.Errorf("description exceeds limit: %d runes", len([]rune(got)))
		}
	})
}
