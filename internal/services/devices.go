package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

// preferredDeviceTypes orders inactive devices when choosing a transfer
// target. Interactive clients come before passive ones like speakers.
var preferredDeviceTypes = map[string]int{
	"Computer":   0,
	"Smartphone": 1,
}

// TransferConfirmError reports that playback requires waking an inactive
// device and the caller has not yet confirmed the transfer. Device is the
// candidate that would be activated.
type TransferConfirmError struct {
	Device models.Device
}

func (e *TransferConfirmError) Error() string {
	return fmt.Sprintf("transfer to %q (%s) requires confirmation", e.Device.Name, e.Device.Type)
}

func (e *TransferConfirmError) Unwrap() error {
	return shared.ErrDeviceConfirmRequired
}

// Devices lists the user's registered playback devices.
func (c *SpotifyClient) Devices(ctx context.Context, userID string) ([]models.Device, error) {
	var response devicesResponse
	if err := c.request(ctx, userID, http.MethodGet, "/me/player/devices", nil, nil, &response, http.StatusOK); err != nil {
		return nil, err
	}

	raw := decodeItems[SpotifyDevice](response.Devices)
	devices := make([]models.Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, models.Device{
			ID:           d.ID,
			Name:         d.Name,
			Type:         d.Type,
			IsActive:     d.IsActive,
			IsRestricted: d.IsRestricted,
		})
	}
	return devices, nil
}

// Player returns the user's current playback state, or nil when no session
// is active. A 204 response means no active player.
func (c *SpotifyClient) Player(ctx context.Context, userID string) (*models.Device, error) {
	var response playerStateResponse
	err := c.request(ctx, userID, http.MethodGet, "/me/player", nil, nil, &response, http.StatusOK)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.Status == http.StatusNoContent {
			return nil, nil
		}
		return nil, err
	}

	if response.Device == nil {
		return nil, nil
	}
	return &models.Device{
		ID:           response.Device.ID,
		Name:         response.Device.Name,
		Type:         response.Device.Type,
		IsActive:     response.Device.IsActive,
		IsRestricted: response.Device.IsRestricted,
	}, nil
}

// TransferPlayback moves playback to the given device without starting it.
func (c *SpotifyClient) TransferPlayback(ctx context.Context, userID, deviceID string) error {
	body := map[string]any{"device_ids": []string{deviceID}, "play": false}
	return c.request(ctx, userID, http.MethodPut, "/me/player", nil, body, nil, http.StatusNoContent)
}

// ensureControllableDevice finds a device that can accept playback commands.
//
// The current player's device wins when it is unrestricted, then any active
// unrestricted device from the list. Otherwise, including when the only
// active device is restricted, the best inactive candidate is selected
// (Computer, then Smartphone, then anything unrestricted); waking it is a
// visible side effect, so without allowTransfer the candidate is returned
// inside a [TransferConfirmError] instead.
func (c *SpotifyClient) ensureControllableDevice(ctx context.Context, userID string, allowTransfer bool) (*models.Device, error) {
	// an unavailable player state is not fatal, the device list decides then
	if current, err := c.Player(ctx, userID); err == nil && current != nil && current.ID != "" && !current.IsRestricted {
		return current, nil
	}

	devices, err := c.Devices(ctx, userID)
	if err != nil {
		return nil, err
	}

	var activeRestricted bool
	for _, d := range devices {
		if !d.IsActive {
			continue
		}
		if d.IsRestricted {
			activeRestricted = true
			continue
		}
		device := d
		return &device, nil
	}

	// a restricted active device cannot take commands directly; fall
	// through and wake another device instead
	candidate := pickTransferCandidate(devices)
	if candidate == nil {
		if activeRestricted {
			return nil, &ClientError{Status: http.StatusForbidden, Message: "active device cannot be controlled", Err: shared.ErrRestrictedDevice}
		}
		return nil, &ClientError{Status: http.StatusNotFound, Message: "no controllable device found", Err: shared.ErrNoControllableDevice}
	}

	if !allowTransfer {
		return nil, &TransferConfirmError{Device: *candidate}
	}

	if err := c.TransferPlayback(ctx, userID, candidate.ID); err != nil {
		return nil, err
	}

	// the provider acks the transfer before the device reports active, so
	// wait briefly and verify; an inconclusive check is treated as success
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.transferSettle):
	}

	// the provider may not reflect the transfer yet, so the candidate is
	// returned even when the re-read is inconclusive
	after, err := c.Devices(ctx, userID)
	if err != nil {
		return candidate, nil
	}
	for _, d := range after {
		if d.ID == candidate.ID && d.IsActive {
			device := d
			return &device, nil
		}
	}

	return candidate, nil
}

// pickTransferCandidate returns the best inactive unrestricted device, or nil.
func pickTransferCandidate(devices []models.Device) *models.Device {
	var best *models.Device
	bestRank := len(preferredDeviceTypes) + 1

	for _, d := range devices {
		if d.IsActive || d.IsRestricted || d.ID == "" {
			continue
		}
		rank, ok := preferredDeviceTypes[d.Type]
		if !ok {
			rank = len(preferredDeviceTypes)
		}
		if best == nil || rank < bestRank {
			device := d
			best = &device
			bestRank = rank
		}
	}

	return best
}

// Control dispatches a playback command, resolving a controllable device
// first. allowTransfer governs whether an inactive device may be woken.
func (c *SpotifyClient) Control(ctx context.Context, userID string, action models.PlaybackAction, allowTransfer bool) error {
	device, err := c.ensureControllableDevice(ctx, userID, allowTransfer)
	if err != nil {
		return err
	}

	var (
		method   string
		endpoint string
	)
	switch action {
	case models.ActionPlay:
		method, endpoint = http.MethodPut, "/me/player/play"
	case models.ActionPause:
		method, endpoint = http.MethodPut, "/me/player/pause"
	case models.ActionNext:
		method, endpoint = http.MethodPost, "/me/player/next"
	case models.ActionPrevious:
		method, endpoint = http.MethodPost, "/me/player/previous"
	default:
		return fmt.Errorf("%w: unknown playback action %q", shared.ErrInvalidInput, action)
	}

	query := map[string][]string{"device_id": {device.ID}}
	return c.request(ctx, userID, method, endpoint, query, nil, nil, http.StatusNoContent)
}
