// package services implements the Spotify integration: the OAuth code and
// token exchange, and an authenticated API client for playback, search, and
// playlist operations.
package services

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// refreshSkew is how long before nominal expiry a token is treated as
// expired, absorbing clock drift and request latency.
const refreshSkew = 90
