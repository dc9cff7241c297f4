package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

// ClientError describes a request the provider rejected. Err carries the
// condition sentinel when the rejection maps to one (restricted device, no
// controllable device), or [shared.ErrAPIRequest] otherwise.
type ClientError struct {
	Status  int
	Message string
	Reason  string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("spotify api: status %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("spotify api: status %d: %s", e.Status, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// TokenStore is the persistence surface the client needs for credentials.
// *repositories.TokenRepository satisfies it.
type TokenStore interface {
	Load(userID string) (*models.SpotifyTokens, error)
	Save(tokens *models.SpotifyTokens) error
	Delete(userID string) error
}

// TokenCache is a process-local cache of live token records keyed by user id.
// Implementations must be safe for concurrent use.
type TokenCache interface {
	Get(userID string) (*models.SpotifyTokens, bool)
	Put(tokens *models.SpotifyTokens)
	Invalidate(userID string)
}

// MemoryTokenCache implements [TokenCache] with a mutex-guarded map.
type MemoryTokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*models.SpotifyTokens
}

// NewMemoryTokenCache creates an empty [MemoryTokenCache].
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]*models.SpotifyTokens)}
}

func (c *MemoryTokenCache) Get(userID string) (*models.SpotifyTokens, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens, ok := c.tokens[userID]
	return tokens, ok
}

func (c *MemoryTokenCache) Put(tokens *models.SpotifyTokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[tokens.UserID] = tokens
}

func (c *MemoryTokenCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, userID)
}

// SpotifyClient performs authenticated Web API requests on behalf of a linked
// user, refreshing credentials transparently.
type SpotifyClient struct {
	auth       *Authenticator
	store      TokenStore
	cache      TokenCache
	httpClient *http.Client
	baseURL    string

	// transferSettle is how long TransferPlayback waits before verifying
	// that the target device became active.
	transferSettle time.Duration
	now            func() time.Time
}

// NewSpotifyClient creates a [SpotifyClient] over the given authenticator,
// token store, and cache.
func NewSpotifyClient(auth *Authenticator, store TokenStore, cache TokenCache) *SpotifyClient {
	return &SpotifyClient{
		auth:           auth,
		store:          store,
		cache:          cache,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		baseURL:        spotifyBaseURL,
		transferSettle: 800 * time.Millisecond,
		now:            time.Now,
	}
}

// EnsureFresh returns a usable token record for the user, refreshing when the
// access token is expired or close to it. Revoked grants purge stored
// credentials before the error is returned.
func (c *SpotifyClient) EnsureFresh(ctx context.Context, userID string) (*models.SpotifyTokens, error) {
	tokens, ok := c.cache.Get(userID)
	if !ok {
		var err error
		tokens, err = c.store.Load(userID)
		if err != nil {
			return nil, err
		}
		c.cache.Put(tokens)
	}

	if !ShouldRefresh(tokens, c.now()) {
		return tokens, nil
	}

	return c.refresh(ctx, userID, tokens)
}

// refresh exchanges the refresh token, persists the result, and updates the
// cache. On revocation the stored record and cache entry are removed.
func (c *SpotifyClient) refresh(ctx context.Context, userID string, tokens *models.SpotifyTokens) (*models.SpotifyTokens, error) {
	refreshed, err := c.auth.Refresh(ctx, tokens)
	if err != nil {
		if errors.Is(err, shared.ErrTokenRevoked) {
			c.cache.Invalidate(userID)
			if delErr := c.store.Delete(userID); delErr != nil {
				return nil, errors.Join(err, delErr)
			}
		}
		return nil, err
	}

	if err := c.store.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	c.cache.Put(refreshed)

	return refreshed, nil
}

// request performs one API call with at most one retry. A 401 response
// invalidates the cached token, forces a refresh, and replays the request
// once; a second 401 propagates as a [ClientError].
func (c *SpotifyClient) request(ctx context.Context, userID, method, endpoint string, query url.Values, body, result any, expected int) error {
	tokens, err := c.EnsureFresh(ctx, userID)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		status, payload, err := c.do(ctx, tokens, method, endpoint, query, body)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && attempt == 0 {
			c.cache.Invalidate(userID)
			stored, loadErr := c.store.Load(userID)
			if loadErr != nil {
				return loadErr
			}
			tokens, err = c.refresh(ctx, userID, stored)
			if err != nil {
				return err
			}
			continue
		}

		if status != expected {
			return clientErrorFrom(status, payload)
		}

		if result != nil && len(payload) > 0 {
			if err := json.Unmarshal(payload, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}

// do executes a single HTTP round trip and returns the status with the raw
// body. Transport failures are the only errors.
func (c *SpotifyClient) do(ctx context.Context, tokens *models.SpotifyTokens, method, endpoint string, query url.Values, body any) (int, []byte, error) {
	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, payload, nil
}

// clientErrorFrom builds a [ClientError] from an error response body,
// tolerating bodies that are not the documented envelope.
func clientErrorFrom(status int, payload []byte) *ClientError {
	clientErr := &ClientError{Status: status, Message: http.StatusText(status), Err: shared.ErrAPIRequest}

	var envelope apiErrorBody
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		clientErr.Message = envelope.Error.Message
		clientErr.Reason = envelope.Error.Reason
	}

	return clientErr
}
