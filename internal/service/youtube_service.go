package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/reelsync/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"
)

var (
	ErrMissingCredentials = errors.New("no YouTube session and no credential source configured")
	errMissingVideoID     = errors.New("upload response did not contain a video id")
)

// VideoPlatform is the slice of the YouTube Data API the uploader depends on.
type VideoPlatform interface {
	InsertVideo(ctx context.Context, video *youtube.Video, media io.Reader, opts InsertOptions) (*youtube.Video, error)
	// GetVideo returns nil without error when the video does not exist.
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
}

type InsertOptions struct {
	ChunkSize   int
	ContentType string
	Progress    func(current, total int64)
}

// SessionSource hands out an authenticated platform session.
type SessionSource interface {
	Session(ctx context.Context) (VideoPlatform, error)
}

type UploadRequest struct {
	MediaPath         string
	Title             string
	Description       string
	Tags              []string
	CategoryID        string
	PrivacyStatus     string
	Session           VideoPlatform
	WaitForProcessing bool
	DryRun            bool
}

type UploadPolicy struct {
	MaxAttempts  int
	Backoff      []time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	ChunkSize    int
}

func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxAttempts:  3,
		Backoff:      []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		PollInterval: 30 * time.Second,
		PollTimeout:  time.Hour,
		ChunkSize:    googleapi.DefaultUploadChunkSize,
	}
}

// backoffAfter returns the pause that follows failed attempt n (1-based).
func (p UploadPolicy) backoffAfter(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}

type YoutubeService interface {
	// Upload returns an error only for configuration problems; every upload
	// failure is reported through the result.
	Upload(ctx context.Context, req UploadRequest) (*models.UploadResult, error)
}

type youtubeService struct {
	sessions SessionSource
	policy   UploadPolicy
	sleep    SleepFunc
}

func NewYoutubeService(sessions SessionSource, policy UploadPolicy, sleep SleepFunc) YoutubeService {
	if sleep == nil {
		sleep = SleepContext
	}
	return &youtubeService{
		sessions: sessions,
		policy:   policy,
		sleep:    sleep,
	}
}

type failureClass int

const (
	classTransient failureClass = iota
	classQuota
	classMalformed
	classMissingID
	classLocal
	classCanceled
)

func (c failureClass) String() string {
	switch c {
	case classTransient:
		return "transient"
	case classQuota:
		return "quota"
	case classMalformed:
		return "malformed"
	case classMissingID:
		return "missing_id"
	case classLocal:
		return "local"
	case classCanceled:
		return "canceled"
	}
	return "unknown"
}

func (c failureClass) retryable() bool {
	return c == classTransient
}

var quotaReasons = map[string]struct{}{
	"uploadLimitExceeded": {},
	"quotaExceeded":       {},
}

// classifyUploadError is the single place that decides how an upload failure is handled.
func classifyUploadError(err error) failureClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classCanceled
	}
	if errors.Is(err, errMissingVideoID) {
		return classMissingID
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return classLocal
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return classTransient
	}
	for _, item := range gerr.Errors {
		if _, ok := quotaReasons[item.Reason]; ok {
			return classQuota
		}
	}
	for reason := range quotaReasons {
		if strings.Contains(gerr.Body, reason) || strings.Contains(gerr.Message, reason) {
			return classQuota
		}
	}
	switch {
	case gerr.Code >= 500, gerr.Code == 408, gerr.Code == 429:
		return classTransient
	case gerr.Code >= 400:
		return classMalformed
	}
	return classTransient
}

func (s *youtubeService) Upload(ctx context.Context, req UploadRequest) (*models.UploadResult, error) {
	video := buildVideo(req)
	if req.DryRun {
		return dryRun(req.MediaPath, video), nil
	}

	session := req.Session
	if session == nil {
		if s.sessions == nil {
			return nil, ErrMissingCredentials
		}
		var err error
		session, err = s.sessions.Session(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open YouTube session: %w", err)
		}
	}

	name := filepath.Base(req.MediaPath)
	res := &models.UploadResult{}

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		res.Retries = attempt - 1

		id, err := s.insertOnce(ctx, session, video, req.MediaPath)
		if err == nil {
			res.Success = true
			res.VideoID = id
			res.Error = ""
			break
		}

		class := classifyUploadError(err)
		res.Error = err.Error()
		slog.Warn("upload attempt failed",
			"file", name,
			"attempt", attempt,
			"max_attempts", s.policy.MaxAttempts,
			"class", class.String(),
			"error", err,
		)

		if class == classQuota {
			res.QuotaExceeded = true
			return res, nil
		}
		if !class.retryable() || attempt == s.policy.MaxAttempts {
			return res, nil
		}

		wait := s.policy.backoffAfter(attempt)
		slog.Info("retrying upload", "file", name, "in", wait)
		if err := s.sleep(ctx, wait); err != nil {
			res.Error = fmt.Sprintf("upload canceled during backoff: %v", err)
			return res, nil
		}
	}

	if !res.Success {
		return res, nil
	}

	slog.Info("video uploaded", "file", name, "video_id", res.VideoID, "url", "https://youtu.be/"+res.VideoID, "retries", res.Retries)

	if req.WaitForProcessing {
		res.HDReady = s.waitForProcessing(ctx, session, res.VideoID)
	}
	return res, nil
}

func (s *youtubeService) insertOnce(ctx context.Context, session VideoPlatform, video *youtube.Video, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}

	name := filepath.Base(path)
	lastLogged := -10
	progress := func(current, total int64) {
		if total <= 0 {
			total = size
		}
		if total <= 0 {
			return
		}
		pct := int(float64(current) / float64(total) * 100)
		if pct/10 != lastLogged/10 {
			lastLogged = pct
			slog.Info("upload progress", "file", name, "percent", pct)
		}
	}

	resp, err := session.InsertVideo(ctx, video, file, InsertOptions{
		ChunkSize:   s.policy.ChunkSize,
		ContentType: sniffMIME(path),
		Progress:    progress,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Id == "" {
		return "", errMissingVideoID
	}
	return resp.Id, nil
}

var definitionRank = map[string]int{
	"sd": 0,
	"hd": 1,
}

// waitForProcessing polls until HD is available, the video disappears, processing
// fails or the timeout elapses. Poll errors never end the wait.
func (s *youtubeService) waitForProcessing(ctx context.Context, session VideoPlatform, id string) bool {
	for waited := time.Duration(0); waited < s.policy.PollTimeout; waited += s.policy.PollInterval {
		if err := s.sleep(ctx, s.policy.PollInterval); err != nil {
			slog.Warn("processing wait canceled", "video_id", id, "error", err)
			return false
		}

		v, err := session.GetVideo(ctx, id)
		if err != nil {
			slog.Warn("processing status check failed", "video_id", id, "error", err)
			continue
		}
		if v == nil {
			slog.Warn("video not found while waiting for processing", "video_id", id)
			return false
		}

		status, definition := processingStatus(v), videoDefinition(v)
		slog.Info("processing status", "video_id", id, "status", status, "definition", definition)

		switch status {
		case "failed", "terminated":
			return false
		case "succeeded":
			if rank, ok := definitionRank[definition]; ok && rank >= definitionRank["hd"] {
				return true
			}
		}
		if v.Status != nil {
			switch v.Status.UploadStatus {
			case "failed", "rejected", "deleted":
				slog.Warn("video rejected during processing", "video_id", id, "upload_status", v.Status.UploadStatus)
				return false
			}
		}
	}

	slog.Warn("timed out waiting for HD processing", "video_id", id, "timeout", s.policy.PollTimeout)
	return false
}

func processingStatus(v *youtube.Video) string {
	if v.ProcessingDetails == nil {
		return ""
	}
	return v.ProcessingDetails.ProcessingStatus
}

func videoDefinition(v *youtube.Video) string {
	if v.ContentDetails == nil {
		return ""
	}
	return v.ContentDetails.Definition
}

func buildVideo(req UploadRequest) *youtube.Video {
	category := req.CategoryID
	if category == "" {
		category = models.DefaultCategoryID
	}
	privacy := req.PrivacyStatus
	if privacy == "" {
		privacy = models.PrivacyPublic
	}
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        tags,
			CategoryId:  category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: privacy,
		},
	}
}

// dryRun checks the file and logs the request that would have been sent.
func dryRun(path string, video *youtube.Video) *models.UploadResult {
	res := &models.UploadResult{TestOnly: true}

	file, err := os.Open(path)
	if err != nil {
		res.Error = fmt.Sprintf("cannot open video: %v", err)
		return res
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		res.Error = fmt.Sprintf("cannot stat video: %v", err)
		return res
	}
	if info.IsDir() {
		res.Error = "video path is a directory"
		return res
	}

	res.Success = true
	res.FileSize = info.Size()
	res.MimeType = sniffMIME(path)

	body, _ := video.MarshalJSON()
	slog.Info("dry run: upload validated",
		"file", filepath.Base(path),
		"size", res.FileSize,
		"mime", res.MimeType,
		"body", string(body),
	)
	return res
}

func sniffMIME(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	head := make([]byte, 261)
	n, _ := io.ReadFull(file, head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

type youtubePlatform struct {
	svc *youtube.Service
}

func NewYoutubePlatform(svc *youtube.Service) VideoPlatform {
	return &youtubePlatform{svc: svc}
}

func (p *youtubePlatform) InsertVideo(ctx context.Context, video *youtube.Video, media io.Reader, opts InsertOptions) (*youtube.Video, error) {
	mediaOpts := []googleapi.MediaOption{googleapi.ChunkSize(opts.ChunkSize)}
	if opts.ContentType != "" {
		mediaOpts = append(mediaOpts, googleapi.ContentType(opts.ContentType))
	}

	call := p.svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, mediaOpts...).
		Context(ctx)
	if opts.Progress != nil {
		call = call.ProgressUpdater(opts.Progress)
	}
	return call.Do()
}

func (p *youtubePlatform) GetVideo(ctx context.Context, id string) (*youtube.Video, error) {
	resp, err := p.svc.Videos.List([]string{"status", "processingDetails", "contentDetails"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return resp.Items[0], nil
}
