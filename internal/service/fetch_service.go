package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/maheshrc27/reelsync/internal/models"
)

const postTimestampLayout = "2006-01-02_15-04-05_UTC"

var nonMediaExtensions = map[string]struct{}{
	".txt": {}, ".json": {}, ".xz": {}, ".zip": {},
}

// FetchResult carries the posts found on disk even when the downloader failed.
type FetchResult struct {
	Posts []*models.PostRecord
	Err   error
}

// CommandRunner runs an external program to completion.
type CommandRunner func(ctx context.Context, name string, args ...string) error

type FetchConfig struct {
	Instaloader    string
	OutputDir      string
	ExtraArgs      []string
	PerPostSubdirs bool
}

type FetchService interface {
	Fetch(ctx context.Context, profile string, full bool) *FetchResult
	ProfileDir(profile string) string
}

type fetchService struct {
	cfg FetchConfig
	run CommandRunner
}

func NewFetchService(cfg FetchConfig, run CommandRunner) FetchService {
	if cfg.Instaloader == "" {
		cfg.Instaloader = "instaloader"
	}
	if run == nil {
		run = ExecCommand
	}
	return &fetchService{cfg: cfg, run: run}
}

func (f *fetchService) ProfileDir(profile string) string {
	return filepath.Join(f.cfg.OutputDir, profile)
}

func (f *fetchService) Fetch(ctx context.Context, profile string, full bool) *FetchResult {
	res := &FetchResult{}
	target := f.ProfileDir(profile)

	if err := os.MkdirAll(f.cfg.OutputDir, 0o755); err != nil {
		res.Err = fmt.Errorf("failed to create output directory: %w", err)
		return res
	}

	slog.Info("fetching posts", "profile", profile, "full", full)
	if err := f.run(ctx, f.cfg.Instaloader, f.buildArgs(profile, full)...); err != nil {
		slog.Warn("instaloader did not finish cleanly, collecting downloaded posts", "profile", profile, "error", err)
		res.Err = err
	}

	posts, err := CollectPosts(target)
	if err != nil {
		res.Err = errors.Join(res.Err, err)
		return res
	}
	if f.cfg.PerPostSubdirs {
		posts = groupIntoSubdirs(target, posts)
	}
	res.Posts = posts
	return res
}

func (f *fetchService) buildArgs(profile string, full bool) []string {
	var args []string
	if !full {
		args = append(args, "--fast-update")
	}
	args = append(args,
		"--dirname-pattern", f.ProfileDir(profile),
		"--filename-pattern", "{date_utc}_UTC",
		"--post-metadata-txt", "{caption}",
		"--no-compress-json",
	)
	args = append(args, f.cfg.ExtraArgs...)
	return append(args, profile)
}

// CollectPosts groups every caption file below dir with the media sharing its name prefix.
// Posts are ordered by timestamp; posts without one come last.
func CollectPosts(dir string) ([]*models.PostRecord, error) {
	var captions []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".txt") {
			captions = append(captions, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(captions)

	posts := make([]*models.PostRecord, 0, len(captions))
	for _, captionPath := range captions {
		post, err := collectPost(captionPath)
		if err != nil {
			slog.Warn("skipping unreadable post", "caption", captionPath, "error", err)
			continue
		}
		posts = append(posts, post)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].Timestamp, posts[j].Timestamp
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return posts, nil
}

func collectPost(captionPath string) (*models.PostRecord, error) {
	raw, err := os.ReadFile(captionPath)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(captionPath), filepath.Ext(captionPath))
	dir := filepath.Dir(captionPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var media []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if _, skip := nonMediaExtensions[ext]; skip {
			continue
		}
		if IsWatermarkOutput(name) {
			continue
		}
		media = append(media, filepath.Join(dir, name))
	}
	sort.Strings(media)

	return &models.PostRecord{
		BaseName:   base,
		MediaFiles: media,
		Caption:    strings.TrimSpace(strings.ToValidUTF8(string(raw), "")),
		Timestamp:  parsePostTimestamp(base),
	}, nil
}

func parsePostTimestamp(base string) *time.Time {
	ts, err := time.Parse(postTimestampLayout, base)
	if err != nil {
		return nil
	}
	return &ts
}

// groupIntoSubdirs moves each post's caption and media into <profile>/<base>/.
// A file that cannot be moved keeps its original path.
func groupIntoSubdirs(profileDir string, posts []*models.PostRecord) []*models.PostRecord {
	out := make([]*models.PostRecord, 0, len(posts))
	for _, post := range posts {
		postDir := filepath.Join(profileDir, post.BaseName)
		if err := os.MkdirAll(postDir, 0o755); err != nil {
			slog.Warn("failed to create post directory", "dir", postDir, "error", err)
			out = append(out, post)
			continue
		}

		media := make([]string, 0, len(post.MediaFiles))
		for _, src := range post.MediaFiles {
			media = append(media, moveInto(postDir, src))
		}
		slices.Sort(media)

		captionSrc := filepath.Join(profileDir, post.BaseName+".txt")
		captionDst := filepath.Join(postDir, post.BaseName+".txt")
		if _, err := os.Stat(captionSrc); err == nil {
			if _, err := os.Stat(captionDst); errors.Is(err, fs.ErrNotExist) {
				if err := os.Rename(captionSrc, captionDst); err != nil {
					slog.Warn("failed to move caption", "file", captionSrc, "error", err)
				}
			}
		}

		out = append(out, &models.PostRecord{
			BaseName:   post.BaseName,
			MediaFiles: media,
			Caption:    post.Caption,
			Timestamp:  post.Timestamp,
		})
	}
	return out
}

func moveInto(dir, src string) string {
	if filepath.Clean(filepath.Dir(src)) == filepath.Clean(dir) {
		return src
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		slog.Warn("failed to move media into post directory", "file", src, "error", err)
		return src
	}
	return dst
}

// ExecCommand runs name with args and returns its output in the error on failure.
func ExecCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(out.String(), 2000))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
