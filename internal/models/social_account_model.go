package models

import (
	"time"
)

const PlatformYoutube = "youtube"

// SocialAccount is the cached platform authorization kept in the token file.
// Tokens are AES-GCM sealed when Encrypted is set.
type SocialAccount struct {
	Platform       string    `json:"platform"`
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	TokenType      string    `json:"token_type"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	Encrypted      bool      `json:"encrypted"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token is expired or expires before now+d.
// A zero expiry never expires.
func (a *SocialAccount) ExpiresWithin(d time.Duration, now time.Time) bool {
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return !a.TokenExpiresAt.After(now.Add(d))
}
