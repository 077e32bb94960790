package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mwlister/internal/xerrors"
)

// Transcoder converts a downloaded GIF into an upload-friendly video.
type Transcoder interface {
	GIFToMP4(ctx context.Context, src, dst string) error
}

// FFmpeg shells out to a local ffmpeg binary.
type FFmpeg struct {
	binaryPath string
	timeout    time.Duration
}

func NewFFmpeg(binaryPath string, timeout time.Duration) *FFmpeg {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &FFmpeg{binaryPath: binaryPath, timeout: timeout}
}

// GIFToMP4 re-encodes src as H.264 MP4. The scale filter forces even
// dimensions, which libx264 requires; faststart makes the file
// streamable, which the marketplace player expects.
func (f *FFmpeg) GIFToMP4(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binaryPath,
		"-y",
		"-i", src,
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		dst,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return xerrors.MediaConvert(
			fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, lastLine(stderr.String())), src)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
