package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maheshrc27/reelsync/internal/models"
	"github.com/maheshrc27/reelsync/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var ErrNoCachedToken = errors.New("no cached YouTube token, run `reelsync auth` first")

type SessionService interface {
	SessionSource
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) error
	// RefreshIfExpiring refreshes the cached token when it expires within d.
	RefreshIfExpiring(ctx context.Context, d time.Duration) (bool, error)
}

type sessionService struct {
	oauth     *oauth2.Config
	tokenFile string
	secretKey []byte
	now       func() time.Time

	mu       sync.Mutex
	platform VideoPlatform
}

func NewSessionService(clientSecretsFile, tokenFile, secretKey string) (SessionService, error) {
	if clientSecretsFile == "" {
		return nil, fmt.Errorf("%w: client secrets file not set", ErrMissingCredentials)
	}
	data, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("invalid client secrets: %w", err)
	}
	return newSessionService(conf, tokenFile, secretKey, time.Now), nil
}

func newSessionService(conf *oauth2.Config, tokenFile, secretKey string, now func() time.Time) *sessionService {
	return &sessionService{
		oauth:     conf,
		tokenFile: tokenFile,
		secretKey: []byte(secretKey),
		now:       now,
	}
}

func (s *sessionService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *sessionService) Exchange(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("authorization code is empty")
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return errors.New("refresh token is empty, revoke the app's access and authorize again")
	}

	if err := s.saveToken(token); err != nil {
		return err
	}
	slog.Info("YouTube authorization stored", "token_file", s.tokenFile)
	return nil
}

// Session builds the authenticated platform once and reuses it.
func (s *sessionService) Session(ctx context.Context) (VideoPlatform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.platform != nil {
		return s.platform, nil
	}

	token, err := s.loadToken()
	if err != nil {
		return nil, err
	}

	ts := &persistingTokenSource{
		base: oauth2.ReuseTokenSource(token, s.oauth.TokenSource(ctx, token)),
		save: s.saveToken,
		last: token.AccessToken,
	}
	yt, err := youtube.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube client: %w", err)
	}

	s.platform = NewYoutubePlatform(yt)
	return s.platform, nil
}

func (s *sessionService) RefreshIfExpiring(ctx context.Context, d time.Duration) (bool, error) {
	acc, err := s.loadAccount()
	if err != nil {
		return false, err
	}
	if !acc.ExpiresWithin(d, s.now()) {
		return false, nil
	}

	refreshToken, err := s.open(acc, acc.RefreshToken)
	if err != nil {
		return false, err
	}
	if refreshToken == "" {
		return false, errors.New("cached token has no refresh token")
	}

	token, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return false, fmt.Errorf("failed to refresh YouTube token: %w", err)
	}
	if err := s.saveToken(token); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.platform = nil
	s.mu.Unlock()
	return true, nil
}

func (s *sessionService) loadAccount() (*models.SocialAccount, error) {
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCachedToken
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var acc models.SocialAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("token file %s is corrupt: %w", s.tokenFile, err)
	}
	return &acc, nil
}

func (s *sessionService) loadToken() (*oauth2.Token, error) {
	acc, err := s.loadAccount()
	if err != nil {
		return nil, err
	}

	access, err := s.open(acc, acc.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.open(acc, acc.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    acc.TokenType,
		Expiry:       acc.TokenExpiresAt,
	}, nil
}

func (s *sessionService) open(acc *models.SocialAccount, value string) (string, error) {
	if !acc.Encrypted || value == "" {
		return value, nil
	}
	if len(s.secretKey) == 0 {
		return "", errors.New("token file is encrypted but SECRET_KEY is not set")
	}
	plain, err := utils.Decrypt(value, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt cached token: %w", err)
	}
	return plain, nil
}

func (s *sessionService) seal(value string) (string, error) {
	if len(s.secretKey) == 0 || value == "" {
		return value, nil
	}
	return utils.Encrypt([]byte(value), s.secretKey)
}

func (s *sessionService) saveToken(token *oauth2.Token) error {
	access, err := s.seal(token.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(token.RefreshToken)
	if err != nil {
		return err
	}

	acc := &models.SocialAccount{
		Platform:       models.PlatformYoutube,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenType:      token.TokenType,
		TokenExpiresAt: token.Expiry,
		Encrypted:      len(s.secretKey) > 0,
		UpdatedAt:      s.now().UTC(),
	}

	data, err := json.MarshalIndent(acc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if dir := filepath.Dir(s.tokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}
	if err := os.WriteFile(s.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// persistingTokenSource writes refreshed tokens back to the token file.
type persistingTokenSource struct {
	base oauth2.TokenSource
	save func(*oauth2.Token) error

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token.AccessToken != p.last {
		if err := p.save(token); err != nil {
			slog.Warn("failed to persist refreshed token", "error", err)
		} else {
			slog.Info("YouTube token refreshed")
		}
		p.last = token.AccessToken
	}
	return token, nil
}
