package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/shlex"
	"github.com/spf13/viper"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// Enabled reports whether metadata archiving to R2 is configured.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Watermark struct {
	Image    string
	Position string  `validate:"oneof=top-left top-right bottom-left bottom-right"`
	Opacity  float64 `validate:"gte=0,lte=1"`
	Scale    float64 `validate:"gt=0,lte=1"`
}

type Config struct {
	Usernames        []string `validate:"required,min=1,dive,required"`
	OutputDir        string   `validate:"required"`
	DownloadAll      bool
	UploadVideos     bool
	UseRemoteSummary bool
	PerPostSubdirs   bool
	TestMode         bool
	WaitForHD        bool

	ClientSecretsFile string
	TokenFile         string `validate:"required"`
	CategoryID        string `validate:"required,numeric"`
	PrivacyStatus     string `validate:"oneof=public unlisted private"`

	MaxUploadsPerRun int           `validate:"gte=0"`
	UploadSpacing    time.Duration `validate:"gte=0"`

	Watermark       Watermark
	InstaloaderArgs []string
	InstaloaderPath string `validate:"required"`
	FFmpegPath      string `validate:"required"`
	FFprobePath     string `validate:"required"`

	GeminiAPIKey string
	GeminiModel  string

	R2          R2
	SecretKey   string
	MetricsFile string
	LogLevel    string `validate:"oneof=debug info warn error"`
}

const (
	KeyUsernames         = "usernames"
	KeyOutputDir         = "output_dir"
	KeyDownloadAll       = "download_all"
	KeyUploadVideos      = "upload_videos"
	KeyUseRemoteSummary  = "use_remote_summary"
	KeyPerPostSubdirs    = "per_post_subdirs"
	KeyTestMode          = "test_mode"
	KeyWaitForHD         = "wait_for_hd"
	KeyClientSecrets     = "client_secrets"
	KeyTokenFile         = "token_file"
	KeyCategoryID        = "category_id"
	KeyPrivacyStatus     = "privacy_status"
	KeyMaxUploads        = "max_uploads"
	KeyUploadSpacing     = "upload_spacing"
	KeyWatermarkImage    = "watermark.image"
	KeyWatermarkPosition = "watermark.position"
	KeyWatermarkOpacity  = "watermark.opacity"
	KeyWatermarkScale    = "watermark.scale"
	KeyInstaloaderArgs   = "instaloader_args"
	KeyInstaloaderPath   = "instaloader_path"
	KeyFFmpegPath        = "ffmpeg_path"
	KeyFFprobePath       = "ffprobe_path"
	KeyGeminiAPIKey      = "gemini_api_key"
	KeyGeminiModel       = "gemini_model"
	KeyR2AccountID       = "r2.account_id"
	KeyR2AccessKey       = "r2.access_key"
	KeyR2SecretKey       = "r2.secret_key"
	KeyR2BucketName      = "r2.bucket_name"
	KeySecretKey         = "secret_key"
	KeyMetricsFile       = "metrics_file"
	KeyLogLevel          = "log_level"
)

// NewViper returns a viper instance with defaults set and environment lookup enabled.
// Nested keys map to upper snake case variables, e.g. r2.account_id -> R2_ACCOUNT_ID.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyOutputDir, "downloads")
	v.SetDefault(KeyTokenFile, "youtube_token.json")
	v.SetDefault(KeyCategoryID, "22")
	v.SetDefault(KeyPrivacyStatus, "public")
	v.SetDefault(KeyMaxUploads, 5)
	v.SetDefault(KeyUploadSpacing, time.Minute)
	v.SetDefault(KeyWaitForHD, true)
	v.SetDefault(KeyWatermarkPosition, "bottom-right")
	v.SetDefault(KeyWatermarkOpacity, 0.5)
	v.SetDefault(KeyWatermarkScale, 0.1)
	v.SetDefault(KeyInstaloaderPath, "instaloader")
	v.SetDefault(KeyFFmpegPath, "ffmpeg")
	v.SetDefault(KeyFFprobePath, "ffprobe")
	v.SetDefault(KeyGeminiModel, "gemini-2.5-flash-lite")
	v.SetDefault(KeyLogLevel, "info")

	_ = v.BindEnv(KeyClientSecrets, "GOOGLE_CLIENT_SECRETS")
	return v
}

func LoadConfig(v *viper.Viper) (*Config, error) {
	extra, err := shlex.Split(v.GetString(KeyInstaloaderArgs))
	if err != nil {
		return nil, fmt.Errorf("invalid instaloader args: %w", err)
	}

	cfg := &Config{
		Usernames:         splitUsernames(v.GetString(KeyUsernames)),
		OutputDir:         v.GetString(KeyOutputDir),
		DownloadAll:       v.GetBool(KeyDownloadAll),
		UploadVideos:      v.GetBool(KeyUploadVideos),
		UseRemoteSummary:  v.GetBool(KeyUseRemoteSummary),
		PerPostSubdirs:    v.GetBool(KeyPerPostSubdirs),
		TestMode:          v.GetBool(KeyTestMode),
		WaitForHD:         v.GetBool(KeyWaitForHD),
		ClientSecretsFile: v.GetString(KeyClientSecrets),
		TokenFile:         v.GetString(KeyTokenFile),
		CategoryID:        v.GetString(KeyCategoryID),
		PrivacyStatus:     v.GetString(KeyPrivacyStatus),
		MaxUploadsPerRun:  v.GetInt(KeyMaxUploads),
		UploadSpacing:     v.GetDuration(KeyUploadSpacing),
		Watermark: Watermark{
			Image:    v.GetString(KeyWatermarkImage),
			Position: v.GetString(KeyWatermarkPosition),
			Opacity:  v.GetFloat64(KeyWatermarkOpacity),
			Scale:    v.GetFloat64(KeyWatermarkScale),
		},
		InstaloaderArgs: extra,
		InstaloaderPath: v.GetString(KeyInstaloaderPath),
		FFmpegPath:      v.GetString(KeyFFmpegPath),
		FFprobePath:     v.GetString(KeyFFprobePath),
		GeminiAPIKey:    v.GetString(KeyGeminiAPIKey),
		GeminiModel:     v.GetString(KeyGeminiModel),
		R2: R2{
			AccountID:  v.GetString(KeyR2AccountID),
			AccessKey:  v.GetString(KeyR2AccessKey),
			SecretKey:  v.GetString(KeyR2SecretKey),
			BucketName: v.GetString(KeyR2BucketName),
		},
		SecretKey:   v.GetString(KeySecretKey),
		MetricsFile: v.GetString(KeyMetricsFile),
		LogLevel:    strings.ToLower(v.GetString(KeyLogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolveWatermarkImage()
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	switch len(c.SecretKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("config error: SECRET_KEY must be 16, 24 or 32 bytes")
	}
	return nil
}

// resolveWatermarkImage disables watermarking when the image does not exist, so the
// same error is not repeated for every video.
func (c *Config) resolveWatermarkImage() {
	if c.Watermark.Image == "" {
		return
	}
	if _, err := os.Stat(c.Watermark.Image); err != nil {
		slog.Warn("watermark image not found, watermarking disabled", "path", c.Watermark.Image)
		c.Watermark.Image = ""
	}
}

func splitUsernames(raw string) []string {
	var out []string
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimPrefix(strings.TrimSpace(u), "@")
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
