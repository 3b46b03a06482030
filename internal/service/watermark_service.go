package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/maheshrc27/reelsync/internal/transfer"
	"golang.org/x/image/draw"

	_ "image/jpeg"

	_ "golang.org/x/image/webp"
)

const (
	DefaultWatermarkMargin = 10
	watermarkSuffix        = "_wm"
)

// CommandOutput runs an external program and returns its stdout.
type CommandOutput func(ctx context.Context, name string, args ...string) ([]byte, error)

type WatermarkRequest struct {
	VideoPath  string
	ImagePath  string
	OutputPath string
	Position   string
	Opacity    float64
	Scale      float64
	Margin     int
}

type WatermarkService interface {
	Apply(ctx context.Context, req WatermarkRequest) error
}

type watermarkService struct {
	ffmpeg  string
	ffprobe string
	run     CommandRunner
	output  CommandOutput
}

func NewWatermarkService(ffmpeg, ffprobe string, run CommandRunner, output CommandOutput) WatermarkService {
	if run == nil {
		run = ExecCommand
	}
	if output == nil {
		output = ExecOutput
	}
	return &watermarkService{
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		run:     run,
		output:  output,
	}
}

// PositionOffsets returns the top-left corner of the watermark. Unknown
// positions fall back to bottom-right.
func PositionOffsets(videoW, videoH, wmW, wmH int, position string, margin int) (int, int) {
	switch strings.ToLower(position) {
	case "top-left":
		return margin, margin
	case "top-right":
		return videoW - wmW - margin, margin
	case "bottom-left":
		return margin, videoH - wmH - margin
	default:
		return videoW - wmW - margin, videoH - wmH - margin
	}
}

// WatermarkOutputPath returns <stem>_wm<ext> next to path.
func WatermarkOutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + watermarkSuffix + ext
}

func IsWatermarkOutput(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), watermarkSuffix)
}

func (w *watermarkService) Apply(ctx context.Context, req WatermarkRequest) error {
	if _, err := os.Stat(req.VideoPath); err != nil {
		return fmt.Errorf("video file not found: %w", err)
	}
	if _, err := os.Stat(req.ImagePath); err != nil {
		return fmt.Errorf("watermark image not found: %w", err)
	}
	if req.Margin == 0 {
		req.Margin = DefaultWatermarkMargin
	}

	videoW, videoH, err := w.probe(ctx, req.VideoPath)
	if err != nil {
		return err
	}

	overlay, err := prepareOverlay(req.ImagePath, videoW, req.Scale, req.Opacity)
	if err != nil {
		return err
	}

	overlayFile, err := os.CreateTemp(filepath.Dir(req.OutputPath), ".wm-*.png")
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %w", err)
	}
	defer os.Remove(overlayFile.Name())

	if err := png.Encode(overlayFile, overlay); err != nil {
		overlayFile.Close()
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	if err := overlayFile.Close(); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}

	size := overlay.Bounds().Size()
	x, y := PositionOffsets(videoW, videoH, size.X, size.Y, req.Position, req.Margin)
	slog.Info("applying watermark",
		"video", filepath.Base(req.VideoPath),
		"size", fmt.Sprintf("%dx%d", size.X, size.Y),
		"x", x, "y", y,
		"opacity", req.Opacity,
	)

	args := []string{
		"-y", "-loglevel", "error",
		"-i", req.VideoPath,
		"-i", overlayFile.Name(),
		"-filter_complex", fmt.Sprintf("[0:v][1:v]overlay=%d:%d[v]", x, y),
		"-map", "[v]", "-map", "0:a?",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		req.OutputPath,
	}
	if err := w.run(ctx, w.ffmpeg, args...); err != nil {
		os.Remove(req.OutputPath)
		return fmt.Errorf("failed to render watermark: %w", err)
	}
	return nil
}

func (w *watermarkService) probe(ctx context.Context, path string) (int, int, error) {
	out, err := w.output(ctx, w.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to probe video: %w", err)
	}

	var resp transfer.FFprobeResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return 0, 0, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	if len(resp.Streams) == 0 || resp.Streams[0].Width <= 0 || resp.Streams[0].Height <= 0 {
		return 0, 0, fmt.Errorf("no video stream in %s", filepath.Base(path))
	}
	return resp.Streams[0].Width, resp.Streams[0].Height, nil
}

// prepareOverlay scales the watermark to scale*videoW wide, keeping its aspect
// ratio, and multiplies its alpha by opacity.
func prepareOverlay(imagePath string, videoW int, scale, opacity float64) (*image.RGBA, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("watermark image not found: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode watermark image: %w", err)
	}

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return nil, fmt.Errorf("watermark image is empty")
	}
	wmW := max(int(float64(videoW)*scale), 1)
	wmH := max(int(float64(sb.Dy())*float64(wmW)/float64(sb.Dx())), 1)

	scaled := image.NewRGBA(image.Rect(0, 0, wmW, wmH))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, draw.Over, nil)

	opacity = min(max(opacity, 0), 1)
	faded := image.NewRGBA(scaled.Bounds())
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(faded, faded.Bounds(), scaled, image.Point{}, mask, image.Point{}, draw.Over)
	return faded, nil
}

func ExecOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(string(exitErr.Stderr), 2000))
		}
		return nil, fmt.Errorf("%s failed: %w", filepath.Base(name), err)
	}
	return out, nil
}
