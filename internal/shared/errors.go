package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization errors
	ErrNotAuthorized  = fmt.Errorf("spotify not authorized for this user")
	ErrNoRefreshToken = fmt.Errorf("no refresh token stored")
	ErrTokenRevoked   = fmt.Errorf("refresh token revoked")
	ErrReauthRequired = fmt.Errorf("reauthorization required")
	ErrStateNotFound  = fmt.Errorf("authorization session not found or expired")
	ErrStateCollision = fmt.Errorf("authorization state already exists")
	ErrStateUnbound   = fmt.Errorf("authorization state missing user binding")
	ErrExchangeFailed = fmt.Errorf("token exchange failed")

	// Playback and device errors
	ErrNoControllableDevice  = fmt.Errorf("no controllable device available")
	ErrRestrictedDevice      = fmt.Errorf("restricted device")
	ErrDeviceConfirmRequired = fmt.Errorf("device transfer confirmation required")

	// API and planner errors
	ErrAPIRequest  = fmt.Errorf("API request failed")
	ErrEmptyPlan   = fmt.Errorf("planner returned no tracks")
	ErrInvalidPlan = fmt.Errorf("planner returned an invalid plan")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
