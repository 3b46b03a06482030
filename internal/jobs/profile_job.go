package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	config "github.com/maheshrc27/reelsync/configs"
	"github.com/maheshrc27/reelsync/internal/metrics"
	"github.com/maheshrc27/reelsync/internal/models"
	"github.com/maheshrc27/reelsync/internal/repository"
	"github.com/maheshrc27/reelsync/internal/service"
	"github.com/maheshrc27/reelsync/pkg/utils"
)

type ProfileJobConfig struct {
	DownloadAll   bool
	UploadVideos  bool
	TestMode      bool
	WaitForHD     bool
	CategoryID    string
	PrivacyStatus string
	// MaxUploadsPerRun of 0 means no cap.
	MaxUploadsPerRun int
	UploadSpacing    time.Duration
	Watermark        config.Watermark
}

func NewProfileJobConfig(cfg *config.Config) ProfileJobConfig {
	return ProfileJobConfig{
		DownloadAll:      cfg.DownloadAll,
		UploadVideos:     cfg.UploadVideos,
		TestMode:         cfg.TestMode,
		WaitForHD:        cfg.WaitForHD,
		CategoryID:       cfg.CategoryID,
		PrivacyStatus:    cfg.PrivacyStatus,
		MaxUploadsPerRun: cfg.MaxUploadsPerRun,
		UploadSpacing:    cfg.UploadSpacing,
		Watermark:        cfg.Watermark,
	}
}

type ProfileJobDeps struct {
	Fetcher    service.FetchService
	Repo       repository.MetadataRepository
	Guard      service.GuardService
	Summarizer service.SummarizerService
	Uploader   service.YoutubeService
	Watermark  service.WatermarkService
	Archive    service.ArchiveService
	Metrics    *metrics.Recorder
	Sleep      service.SleepFunc
	Now        func() time.Time
}

type ProfileJob struct {
	cfg  ProfileJobConfig
	deps ProfileJobDeps
}

func NewProfileJob(cfg ProfileJobConfig, deps ProfileJobDeps) *ProfileJob {
	if deps.Sleep == nil {
		deps.Sleep = service.SleepContext
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Guard == nil {
		deps.Guard = service.NewGuardService(deps.Repo)
	}
	return &ProfileJob{cfg: cfg, deps: deps}
}

// Run processes every profile in order with one shared run state. Only
// configuration errors and cancellation stop the run.
func (j *ProfileJob) Run(ctx context.Context, profiles []string) (*models.RunState, error) {
	state := &models.RunState{}
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if err := j.ProcessProfile(ctx, profile, state); err != nil {
			return state, fmt.Errorf("profile %s: %w", profile, err)
		}
	}
	slog.Info("run finished", "uploads", state.Uploads, "quota_exceeded", state.QuotaExceeded)
	return state, nil
}

func (j *ProfileJob) ProcessProfile(ctx context.Context, profile string, state *models.RunState) error {
	log := slog.With("profile", profile)

	res := j.deps.Fetcher.Fetch(ctx, profile, j.cfg.DownloadAll)
	if res.Err != nil {
		log.Warn("fetch incomplete", "error", res.Err)
	}
	log.Info("posts collected", "count", len(res.Posts))

	profileDir := j.deps.Fetcher.ProfileDir(profile)
	for _, post := range res.Posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.processPost(ctx, log.With("post", post.BaseName), profile, profileDir, post, state); err != nil {
			return err
		}
	}
	return nil
}

func (j *ProfileJob) processPost(ctx context.Context, log *slog.Logger, profile, profileDir string, post *models.PostRecord, state *models.RunState) error {
	metaPath := j.deps.Repo.Path(profileDir, post.BaseName)
	title, description := j.summary(ctx, log, metaPath, post.Caption)

	guard, err := j.deps.Guard.Check(profileDir, metaPath, title, description)
	if err != nil {
		log.Warn("guard check failed, processing post", "error", err)
		guard = &models.GuardResult{Decision: models.DecisionProcess}
	}
	j.deps.Metrics.ObservePost(guard.Decision)

	if guard.Decision == models.DecisionSkip {
		log.Info("skipping post", "reason", guard.Reason)
		return nil
	}
	if guard.Decision == models.DecisionResume {
		log.Info("resuming post", "reason", guard.Reason)
	}

	meta := models.NewPostMetadata(post.Caption, title, description, utils.ExtractHashtags(post.Caption), j.deps.Now().UTC())
	meta.Merge(guard.Existing)

	if j.canUpload(state) {
		if err := j.uploadMedia(ctx, log, post, meta, metaPath, state); err != nil {
			return err
		}
	}

	meta.MarkUploaded()
	if err := j.deps.Repo.Save(metaPath, meta); err != nil {
		log.Error("failed to save metadata", "path", metaPath, "error", err)
		return nil
	}
	if j.deps.Archive != nil {
		if err := j.deps.Archive.ArchiveMetadata(ctx, profile, post.BaseName, meta); err != nil {
			log.Warn("failed to archive metadata", "error", err)
		}
	}
	return nil
}

// summary reuses the stored title and description of a known post so that
// remote summaries are generated once per post.
func (j *ProfileJob) summary(ctx context.Context, log *slog.Logger, metaPath, caption string) (string, string) {
	existing, err := j.deps.Repo.Load(metaPath)
	if err == nil && existing.Title != "" {
		return existing.Title, existing.Description
	}
	if err != nil && !errors.Is(err, repository.ErrMetadataNotFound) {
		log.Warn("ignoring unreadable metadata", "path", metaPath, "error", err)
	}
	return j.deps.Summarizer.Summarize(ctx, caption)
}

func (j *ProfileJob) canUpload(state *models.RunState) bool {
	return j.cfg.UploadVideos && !state.QuotaExceeded && !j.capReached(state)
}

func (j *ProfileJob) capReached(state *models.RunState) bool {
	return j.cfg.MaxUploadsPerRun > 0 && state.Uploads >= j.cfg.MaxUploadsPerRun
}

func (j *ProfileJob) uploadMedia(ctx context.Context, log *slog.Logger, post *models.PostRecord, meta *models.PostMetadata, metaPath string, state *models.RunState) error {
	title := meta.Title
	if title == "" {
		title = post.BaseName
	}

	for _, media := range post.MediaFiles {
		if !models.IsVideoFile(media) {
			continue
		}
		name := filepath.Base(media)
		if meta.HasUpload(name) {
			log.Info("file already uploaded", "file", name)
			continue
		}
		if !j.canUpload(state) {
			log.Info("upload limit reached, remaining files left for a later run", "uploads", state.Uploads)
			return nil
		}

		res, err := j.deps.Uploader.Upload(ctx, service.UploadRequest{
			MediaPath:         j.watermark(ctx, log, media),
			Title:             title,
			Description:       meta.Description,
			Tags:              meta.Tags,
			CategoryID:        j.cfg.CategoryID,
			PrivacyStatus:     j.cfg.PrivacyStatus,
			WaitForProcessing: j.cfg.WaitForHD,
			DryRun:            j.cfg.TestMode,
		})
		if err != nil {
			return err
		}
		j.deps.Metrics.ObserveUpload(res)

		switch {
		case res.QuotaExceeded:
			state.QuotaExceeded = true
			log.Warn("upload quota exceeded, skipping uploads for the rest of the run", "file", name)
			return nil
		case !res.Success:
			log.Error("upload failed", "file", name, "retries", res.Retries, "error", res.Error)
			continue
		case res.TestOnly:
			log.Info("dry run passed", "file", name, "size", res.FileSize, "mime", res.MimeType)
			continue
		}

		meta.RecordUpload(name, res, j.deps.Now().UTC())
		meta.MarkUploaded()
		if err := j.deps.Repo.Save(metaPath, meta); err != nil {
			log.Error("failed to save metadata after upload", "path", metaPath, "error", err)
		}
		state.Uploads++
		log.Info("upload recorded", "file", name, "video_id", res.VideoID, "hd_ready", res.HDReady, "uploads", state.Uploads)

		if j.capReached(state) {
			log.Info("reached max uploads for this run", "max", j.cfg.MaxUploadsPerRun)
			return nil
		}
		if err := j.deps.Sleep(ctx, j.cfg.UploadSpacing); err != nil {
			return err
		}
	}
	return nil
}

// watermark returns the path to upload: the watermarked copy, or media itself
// when watermarking is off or fails.
func (j *ProfileJob) watermark(ctx context.Context, log *slog.Logger, media string) string {
	wm := j.cfg.Watermark
	if wm.Image == "" || j.deps.Watermark == nil {
		return media
	}

	out := service.WatermarkOutputPath(media)
	err := j.deps.Watermark.Apply(ctx, service.WatermarkRequest{
		VideoPath:  media,
		ImagePath:  wm.Image,
		OutputPath: out,
		Position:   wm.Position,
		Opacity:    wm.Opacity,
		Scale:      wm.Scale,
		Margin:     service.DefaultWatermarkMargin,
	})
	if err != nil {
		log.Warn("watermark failed, uploading original", "file", filepath.Base(media), "error", err)
		return media
	}
	return out
}
