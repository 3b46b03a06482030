package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionOffsets(t *testing.T) {
	cases := map[string]struct {
		position string
		margin   int
		x, y     int
	}{
		"bottom-right": {"bottom-right", 10, 790, 390},
		"top-left":     {"top-left", 5, 5, 5},
		"top-right":    {"top-right", 10, 790, 10},
		"bottom-left":  {"bottom-left", 10, 10, 390},
		"upper case":   {"TOP-LEFT", 10, 10, 10},
		"unknown":      {"center", 10, 790, 390},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			x, y := PositionOffsets(1000, 500, 200, 100, tc.position, tc.margin)
			assert.Equal(t, tc.x, x)
			assert.Equal(t, tc.y, y)
		})
	}
}

func TestWatermarkOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("dir", "clip_wm.mp4"), WatermarkOutputPath(filepath.Join("dir", "clip.mp4")))
	assert.True(t, IsWatermarkOutput("clip_wm.mp4"))
	assert.False(t, IsWatermarkOutput("clip.mp4"))
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "logo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestPrepareOverlay_ScalesAndFades(t *testing.T) {
	path := writePNG(t, 40, 20)

	overlay, err := prepareOverlay(path, 1000, 0.1, 0.5)
	require.NoError(t, err)

	assert.Equal(t, image.Pt(100, 50), overlay.Bounds().Size())
	_, _, _, a := overlay.At(50, 25).RGBA()
	assert.InDelta(t, 0x8080, a, 0x200)
}

func probeJSON(w, h int) CommandOutput {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"streams":[{"width":%d,"height":%d}]}`, w, h)), nil
	}
}

func TestApply_RendersWithFFmpeg(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))
	logo := writePNG(t, 40, 20)

	var got []string
	run := func(ctx context.Context, name string, args ...string) error {
		assert.Equal(t, "ffmpeg", name)
		got = args
		return nil
	}

	svc := NewWatermarkService("ffmpeg", "ffprobe", run, probeJSON(1000, 500))
	err := svc.Apply(context.Background(), WatermarkRequest{
		VideoPath:  video,
		ImagePath:  logo,
		OutputPath: WatermarkOutputPath(video),
		Position:   "bottom-right",
		Opacity:    0.5,
		Scale:      0.2,
	})
	require.NoError(t, err)

	joined := strings.Join(got, " ")
	assert.Contains(t, joined, "[0:v][1:v]overlay=790:390[v]")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Equal(t, WatermarkOutputPath(video), got[len(got)-1])

	leftovers, err := filepath.Glob(filepath.Join(dir, ".wm-*.png"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestApply_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))

	svc := NewWatermarkService("ffmpeg", "ffprobe", nil, probeJSON(1000, 500))

	err := svc.Apply(context.Background(), WatermarkRequest{VideoPath: filepath.Join(dir, "none.mp4"), ImagePath: writePNG(t, 4, 4), OutputPath: filepath.Join(dir, "o.mp4")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = svc.Apply(context.Background(), WatermarkRequest{VideoPath: video, ImagePath: filepath.Join(dir, "none.png"), OutputPath: filepath.Join(dir, "o.mp4")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply_ProbeFailure(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))

	output := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("not a video")
	}
	svc := NewWatermarkService("ffmpeg", "ffprobe", nil, output)

	err := svc.Apply(context.Background(), WatermarkRequest{VideoPath: video, ImagePath: writePNG(t, 4, 4), OutputPath: filepath.Join(dir, "o.mp4")})
	assert.Error(t, err)
}
