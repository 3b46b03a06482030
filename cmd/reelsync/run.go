package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/maheshrc27/reelsync/configs"
	job "github.com/maheshrc27/reelsync/internal/jobs"
	"github.com/maheshrc27/reelsync/internal/metrics"
	"github.com/maheshrc27/reelsync/internal/repository"
	"github.com/maheshrc27/reelsync/internal/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Fetch posts, generate metadata and upload videos",
	Long: `Processes each profile in --usernames in order: downloads new posts with instaloader,
writes a metadata file per post and, with --upload-videos, uploads the videos to YouTube.

Every flag can also be set through the environment, e.g. USERNAMES, UPLOAD_VIDEOS or WATERMARK_IMAGE.`,
	RunE: runCmd,
}

var runFlagKeys = map[string]string{
	"usernames":          config.KeyUsernames,
	"output-dir":         config.KeyOutputDir,
	"download-all":       config.KeyDownloadAll,
	"upload-videos":      config.KeyUploadVideos,
	"use-remote-summary": config.KeyUseRemoteSummary,
	"per-post-subdirs":   config.KeyPerPostSubdirs,
	"test-mode":          config.KeyTestMode,
	"wait-for-hd":        config.KeyWaitForHD,
	"client-secrets":     config.KeyClientSecrets,
	"token-file":         config.KeyTokenFile,
	"category-id":        config.KeyCategoryID,
	"privacy-status":     config.KeyPrivacyStatus,
	"max-uploads":        config.KeyMaxUploads,
	"upload-spacing":     config.KeyUploadSpacing,
	"watermark-image":    config.KeyWatermarkImage,
	"watermark-position": config.KeyWatermarkPosition,
	"watermark-opacity":  config.KeyWatermarkOpacity,
	"watermark-scale":    config.KeyWatermarkScale,
	"instaloader-args":   config.KeyInstaloaderArgs,
	"instaloader-path":   config.KeyInstaloaderPath,
	"ffmpeg-path":        config.KeyFFmpegPath,
	"ffprobe-path":       config.KeyFFprobePath,
	"gemini-model":       config.KeyGeminiModel,
	"metrics-file":       config.KeyMetricsFile,
	"log-level":          config.KeyLogLevel,
}

func init() {
	addRunFlags(runCommand)
	rootCmd.AddCommand(runCommand)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("usernames", "", "Comma separated Instagram profiles to process")
	f.String("output-dir", "downloads", "Directory downloads and metadata are stored in")
	f.Bool("download-all", false, "Fetch every post instead of stopping at the first known one")
	f.Bool("upload-videos", false, "Upload videos to YouTube")
	f.Bool("use-remote-summary", false, "Generate titles with Gemini (needs GEMINI_API_KEY)")
	f.Bool("per-post-subdirs", false, "Move each post into its own directory")
	f.Bool("test-mode", false, "Validate uploads without sending them")
	f.Bool("wait-for-hd", true, "Wait for YouTube to finish HD processing after each upload")
	f.String("client-secrets", "", "OAuth client secrets JSON (or GOOGLE_CLIENT_SECRETS)")
	f.String("token-file", "youtube_token.json", "Where the YouTube token is cached")
	f.String("category-id", "22", "YouTube category id")
	f.String("privacy-status", "public", "public, unlisted or private")
	f.Int("max-uploads", 5, "Maximum uploads per run, 0 for no limit")
	f.Duration("upload-spacing", time.Minute, "Pause between uploads")
	f.String("watermark-image", "", "PNG overlaid on every video")
	f.String("watermark-position", "bottom-right", "top-left, top-right, bottom-left or bottom-right")
	f.Float64("watermark-opacity", 0.5, "Watermark opacity between 0 and 1")
	f.Float64("watermark-scale", 0.1, "Watermark width relative to the video width")
	f.String("instaloader-args", "", `Extra instaloader arguments, e.g. "--login me --sessionfile s"`)
	f.String("instaloader-path", "instaloader", "instaloader executable")
	f.String("ffmpeg-path", "ffmpeg", "ffmpeg executable")
	f.String("ffprobe-path", "ffprobe", "ffprobe executable")
	f.String("gemini-model", "gemini-2.5-flash-lite", "Gemini model used for remote summaries")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.String("log-level", "info", "debug, info, warn or error")
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd, runFlagKeys); err != nil {
		return nil, err
	}
	return config.LoadConfig(v)
}

func runCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	runID, err := gonanoid.New(10)
	if err != nil {
		return fmt.Errorf("failed to create run id: %w", err)
	}
	setupLogger(cfg.LogLevel, "run_id", runID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	profileJob, cleanup, err := buildProfileJob(ctx, cfg, rec)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	slog.Info("run started", "profiles", cfg.Usernames, "upload", cfg.UploadVideos, "test_mode", cfg.TestMode)
	_, runErr := profileJob.Run(ctx, cfg.Usernames)

	rec.RunFinished(time.Now(), time.Since(start))
	if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
		slog.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", err)
	}
	return runErr
}

func buildProfileJob(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*job.ProfileJob, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	repo := repository.NewMetadataRepository(cfg.PerPostSubdirs)
	fetcher := service.NewFetchService(service.FetchConfig{
		Instaloader:    cfg.InstaloaderPath,
		OutputDir:      cfg.OutputDir,
		ExtraArgs:      cfg.InstaloaderArgs,
		PerPostSubdirs: cfg.PerPostSubdirs,
	}, nil)

	var generator service.TextGenerator
	if cfg.UseRemoteSummary {
		gemini, err := service.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("remote summary unavailable, using heuristic", "error", err)
		} else {
			generator = gemini
			closers = append(closers, gemini.Close)
		}
	}

	var sessions service.SessionSource
	if cfg.UploadVideos && !cfg.TestMode {
		s, err := service.NewSessionService(cfg.ClientSecretsFile, cfg.TokenFile, cfg.SecretKey)
		if err != nil {
			return nil, cleanup, err
		}
		if err := job.NewTokenRefreshJob(s).RefreshTokens(ctx); err != nil {
			slog.Debug("continuing with the cached token", "error", err)
		}
		sessions = s
	}

	var archive service.ArchiveService
	if cfg.R2.Enabled() {
		r2, err := service.NewR2Service(ctx, cfg.R2)
		if err != nil {
			slog.Warn("metadata archive disabled", "error", err)
		} else {
			archive = r2
		}
	}

	profileJob := job.NewProfileJob(job.NewProfileJobConfig(cfg), job.ProfileJobDeps{
		Fetcher:    fetcher,
		Repo:       repo,
		Guard:      service.NewGuardService(repo),
		Summarizer: service.NewSummarizerService(generator),
		Uploader:   service.NewYoutubeService(sessions, service.DefaultUploadPolicy(), nil),
		Watermark:  service.NewWatermarkService(cfg.FFmpegPath, cfg.FFprobePath, nil, nil),
		Archive:    archive,
		Metrics:    rec,
	})
	return profileJob, cleanup, nil
}
