package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	config "github.com/maheshrc27/reelsync/configs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	for name, value := range flags {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	return cmd
}

func TestLoadRunConfig_Flags(t *testing.T) {
	cmd := newRunCommand(t, map[string]string{
		"usernames":        "nasa, natgeo",
		"upload-videos":    "true",
		"max-uploads":      "0",
		"upload-spacing":   "5s",
		"privacy-status":   "unlisted",
		"instaloader-args": "--login me",
		"log-level":        "debug",
	})

	cfg, err := loadRunConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, []string{"nasa", "natgeo"}, cfg.Usernames)
	assert.True(t, cfg.UploadVideos)
	assert.Equal(t, 0, cfg.MaxUploadsPerRun)
	assert.Equal(t, 5*time.Second, cfg.UploadSpacing)
	assert.Equal(t, "unlisted", cfg.PrivacyStatus)
	assert.Equal(t, []string{"--login", "me"}, cfg.InstaloaderArgs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "22", cfg.CategoryID)
	assert.True(t, cfg.WaitForHD)
}

func TestLoadRunConfig_EnvFallback(t *testing.T) {
	t.Setenv("USERNAMES", "nasa")
	t.Setenv("WATERMARK_POSITION", "top-left")

	cfg, err := loadRunConfig(newRunCommand(t, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"nasa"}, cfg.Usernames)
	assert.Equal(t, "top-left", cfg.Watermark.Position)
}

func TestLoadRunConfig_FlagBeatsEnv(t *testing.T) {
	t.Setenv("USERNAMES", "nasa")

	cfg, err := loadRunConfig(newRunCommand(t, map[string]string{"usernames": "natgeo"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"natgeo"}, cfg.Usernames)
}

func TestLoadRunConfig_RequiresUsernames(t *testing.T) {
	t.Setenv("USERNAMES", "")

	_, err := loadRunConfig(newRunCommand(t, nil))
	assert.Error(t, err)
}

func TestBindFlags_UnknownFlag(t *testing.T) {
	err := bindFlags(config.NewViper(), &cobra.Command{Use: "x"}, map[string]string{"missing": "missing"})
	assert.ErrorContains(t, err, `unknown flag "missing"`)
}

func TestSetupLogger_Levels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	setupLogger("warn")
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelWarn))

	setupLogger("nonsense")
	assert.True(t, slog.Default().Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, slog.Default().Enabled(t.Context(), slog.LevelDebug))
}

func writeClientSecrets(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	path := filepath.Join(dir, "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{"installed":{
		"client_id":"client","client_secret":"secret",
		"redirect_uris":["http://localhost"],
		"auth_uri":"https://accounts.example.com/auth","token_uri":%q}}`, tokenURL)), 0o600))
	return path
}

func TestBuildProfileJob_FailedTokenRefreshIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Usernames:         []string{"nasa"},
		OutputDir:         dir,
		UploadVideos:      true,
		ClientSecretsFile: writeClientSecrets(t, dir, "http://127.0.0.1:0/token"),
		TokenFile:         filepath.Join(dir, "missing_token.json"),
		CategoryID:        "22",
		PrivacyStatus:     "public",
		InstaloaderPath:   "instaloader",
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
	}

	profileJob, cleanup, err := buildProfileJob(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	assert.NotNil(t, profileJob)
}

func TestBuildProfileJob_MissingSecretsIsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Usernames:    []string{"nasa"},
		OutputDir:    dir,
		UploadVideos: true,
		TokenFile:    filepath.Join(dir, "token.json"),
	}

	_, cleanup, err := buildProfileJob(t.Context(), cfg, nil)
	t.Cleanup(cleanup)
	assert.Error(t, err)
}

func TestAuthCommand_ExchangesCode(t *testing.T) {
	t.Setenv("SECRET_KEY", "")

	var gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCode = r.FormValue("code")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	secrets := writeClientSecrets(t, dir, srv.URL)
	tokenFile := filepath.Join(dir, "token.json")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"auth", "--client-secrets", secrets, "--token-file", tokenFile, "--code", "the-code"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = authCommand.Flags().Set("client-secrets", "")
		authCode = ""
	})

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "the-code", gotCode)
	assert.Contains(t, out.String(), tokenFile)
	raw, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "refresh-1")
}

func TestAuthCommand_MissingSecrets(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_SECRETS", "")

	rootCmd.SetArgs([]string{"auth", "--token-file", filepath.Join(t.TempDir(), "t.json"), "--code", "x"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		authCode = ""
	})

	assert.Error(t, rootCmd.Execute())
}
