package video

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

// FFmpegProducer samples frames by shelling out to ffmpeg. The binary
// must be on PATH; deployments without it supply their own FrameProducer.
type FFmpegProducer struct {
	BinaryPath string
	MaxFrames  int
}

// NewFFmpegProducer returns a producer with sane caps.
func NewFFmpegProducer() *FFmpegProducer {
	return &FFmpegProducer{BinaryPath: "ffmpeg", MaxFrames: 60}
}

// ExtractFrames samples one frame per interval into a temp dir and reads
// them back in order.
func (p *FFmpegProducer) ExtractFrames(ctx context.Context, sourceRef string, interval time.Duration) ([]Frame, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	dir, err := os.MkdirTemp("", "showrun-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	fps := 1.0 / interval.Seconds()
	cmd := exec.CommandContext(ctx, p.BinaryPath,
		"-y", "-i", sourceRef,
		"-vf", fmt.Sprintf("fps=%f", fps),
		"-q:v", "4",
		filepath.Join(dir, "frame-%05d.jpg"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, tail(string(out), 300))
	}

	names, err := filepath.Glob(filepath.Join(dir, "frame-*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	max := p.MaxFrames
	if max > 0 && len(names) > max {
		names = names[:max]
	}

	frames := make([]Frame, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		frames = append(frames, Frame{
			Image:     data,
			MIMEType:  "image/jpeg",
			Timestamp: time.Duration(i) * interval,
		})
	}
	return frames, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
