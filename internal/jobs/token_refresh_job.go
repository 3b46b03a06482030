package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/reelsync/internal/service"
)

const tokenRefreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	sessions service.SessionService
	window   time.Duration
}

func NewTokenRefreshJob(sessions service.SessionService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sessions: sessions,
		window:   tokenRefreshWindow,
	}
}

// RefreshTokens refreshes the cached YouTube token when it expires within the window.
// Failures are logged; the session refreshes on demand as a fallback.
func (j *TokenRefreshJob) RefreshTokens(ctx context.Context) error {
	refreshed, err := j.sessions.RefreshIfExpiring(ctx, j.window)
	if err != nil {
		slog.Warn("unable to refresh YouTube token", "error", err)
		return err
	}
	if refreshed {
		slog.Info("YouTube token refreshed ahead of expiry", "window", j.window)
	}
	return nil
}
