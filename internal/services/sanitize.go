package services

import "strings"

const (
	maxPlaylistNameLen = 100
	maxDescriptionLen  = 300

	defaultPlaylistName = "Mixbot Mix"
)

// PlaylistName derives a playlist title from the user's prompt, collapsing
// whitespace and truncating at a word boundary within the provider limit.
func PlaylistName(prompt string) string {
	name := strings.Join(strings.Fields(prompt), " ")
	if name == "" {
		return defaultPlaylistName
	}
	return truncateAtWord(name, maxPlaylistNameLen)
}

// PlaylistDescription derives the playlist description from the prompt.
func PlaylistDescription(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if prompt == "" {
		return ""
	}
	return truncateAtWord("Generated from: "+prompt, maxDescriptionLen)
}

// truncateAtWord shortens s to at most max runes, cutting at the last space
// before the limit when one exists.
func truncateAtWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ")
}
