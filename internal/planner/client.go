package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

const (
	defaultMessagesURL = "https://api.anthropic.com/v1/messages"
	defaultModel       = "claude-sonnet-4-20250514"
	anthropicVersion   = "2023-06-01"
	maxResponseTokens  = 2048
)

const systemPrompt = `You are a music curator. Given a listening prompt and
optional listener history, respond with a JSON object of the form
{"tracks": [{"title": "...", "artist": "..."}]} and nothing else.
Prefer real, well-known recordings. Do not invent tracks.`

const findSystemPrompt = `You identify songs. Given a description, a lyric
fragment, or a vibe, respond with the single best matching real recording as
one line of the form "Artist - Title" and nothing else. Do not invent
tracks.`

// ClientConfig configures the Anthropic messages endpoint and HTTP behavior.
type ClientConfig struct {
	APIKey      string
	Model       string
	MessagesURL string
	HTTPClient  *http.Client
}

// Client implements [Planner] against the Anthropic Messages API.
type Client struct {
	cfg ClientConfig
}

// NewClient builds a planning client. The API key is required; everything
// else has a default.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("planner: %w: api key", shared.ErrMissingCredentials)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.MessagesURL) == "" {
		cfg.MessagesURL = defaultMessagesURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg}, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// PlanPlaylist asks the model for a track list matching the prompt and
// normalizes the result through [ValidatePlan].
func (c *Client) PlanPlaylist(ctx context.Context, prompt string, listener ListenerContext) (*models.PlaylistPlan, error) {
	text, err := c.complete(ctx, systemPrompt, buildUserPrompt(prompt, listener))
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(text)
	if err != nil {
		return nil, err
	}

	return ValidatePlan(plan)
}

// FindTrack asks the model to name the one recording matching a free-text
// description.
func (c *Client) FindTrack(ctx context.Context, description string) (*models.PlannedTrack, error) {
	text, err := c.complete(ctx, findSystemPrompt, fmt.Sprintf("Description: %s", strings.TrimSpace(description)))
	if err != nil {
		return nil, err
	}

	plan, err := parsePlan(text)
	if err != nil {
		return nil, err
	}

	plan, err = ValidatePlan(plan)
	if err != nil {
		return nil, err
	}
	return &plan.Tracks[0], nil
}

// complete performs one messages call and returns the concatenated text
// content.
func (c *Client) complete(ctx context.Context, system, userPrompt string) (string, error) {
	payload := messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxResponseTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("planner: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.MessagesURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("planner: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("planner: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("planner: read response: %w", err)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("planner: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return "", fmt.Errorf("planner: %s: %s", decoded.Error.Type, decoded.Error.Message)
		}
		return "", fmt.Errorf("planner: unexpected status %d", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", shared.ErrEmptyPlan
	}

	return text.String(), nil
}

// buildUserPrompt renders the listening prompt with whatever history is
// available.
func buildUserPrompt(prompt string, listener ListenerContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listening prompt: %s\n", strings.TrimSpace(prompt))
	fmt.Fprintf(&b, "Target length: %d tracks\n", defaultTrackCount)

	if len(listener.TopArtists) > 0 {
		fmt.Fprintf(&b, "Listener's top artists: %s\n", strings.Join(listener.TopArtists, ", "))
	}
	if len(listener.TopTracks) > 0 {
		fmt.Fprintf(&b, "Listener's top tracks: %s\n", strings.Join(listener.TopTracks, ", "))
	}
	if len(listener.RecentTracks) > 0 {
		fmt.Fprintf(&b, "Recently played: %s\n", strings.Join(listener.RecentTracks, ", "))
	}

	return b.String()
}

// parsePlan extracts a plan from model output. JSON is preferred, including
// JSON inside a fenced code block; plain "Artist - Title" lines are the
// fallback.
func parsePlan(text string) (*models.PlaylistPlan, error) {
	candidate := stripFence(strings.TrimSpace(text))

	if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			var plan models.PlaylistPlan
			if err := json.Unmarshal([]byte(candidate[start:end+1]), &plan); err == nil && len(plan.Tracks) > 0 {
				return &plan, nil
			}
		}
	}

	var tracks []models.PlannedTrack
	for _, line := range strings.Split(candidate, "\n") {
		line = stripListPrefix(strings.TrimSpace(line))
		artist, title, found := strings.Cut(line, " - ")
		if !found {
			continue
		}
		tracks = append(tracks, models.PlannedTrack{
			Artist: strings.TrimSpace(artist),
			Title:  strings.TrimSpace(title),
		})
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no parseable tracks in model output", shared.ErrInvalidPlan)
	}

	return &models.PlaylistPlan{Tracks: tracks}, nil
}

// stripListPrefix drops a leading "12." or "3)" ordinal or a bullet dash so
// numbered model output parses the same as bare lines.
func stripListPrefix(line string) string {
	if rest, ok := strings.CutPrefix(line, "- "); ok {
		return strings.TrimSpace(rest)
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// stripFence removes a surrounding markdown code fence when present.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:] // drop the language hint line
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
