package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec, folding stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// V4L2Config selects the device node and the requested frame size.
type V4L2Config struct {
	Device string // e.g. /dev/video0
	Width  int
	Height int
	Run    CommandRunner // nil means ExecRunner
}

// V4L2Device reads single frames from a V4L2 camera through ffmpeg.
// Requires v4l-utils and ffmpeg, and membership of the video group.
type V4L2Device struct {
	cfg  V4L2Config
	info map[string]string

	mu     sync.Mutex
	closed bool
}

var errDeviceClosed = errors.New("device closed")

// OpenV4L2 applies the requested resolution and checks that the device
// answers an info query.
func OpenV4L2(ctx context.Context, cfg V4L2Config) (*V4L2Device, error) {
	if cfg.Run == nil {
		cfg.Run = ExecRunner
	}
	d := &V4L2Device{cfg: cfg}

	fmtArg := fmt.Sprintf("--set-fmt-video=width=%d,height=%d", cfg.Width, cfg.Height)
	if _, err := cfg.Run(ctx, "v4l2-ctl", "--device", cfg.Device, fmtArg); err != nil {
		return nil, fmt.Errorf("set resolution on %s: %w", cfg.Device, err)
	}

	out, err := cfg.Run(ctx, "v4l2-ctl", "--device", cfg.Device, "--info")
	if err != nil {
		return nil, fmt.Errorf("device %s not ready: %w", cfg.Device, err)
	}
	d.info = parseInfo(out)
	return d, nil
}

// Info returns the key/value pairs reported by v4l2-ctl --info
// ("Driver name", "Card type", ...).
func (d *V4L2Device) Info() map[string]string { return d.info }

// Read grabs one MJPEG frame.
func (d *V4L2Device) Read(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errDeviceClosed
	}

	return d.cfg.Run(ctx,
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
		"-i", d.cfg.Device,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	)
}

// Close marks the device released; further reads fail.
func (d *V4L2Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func parseInfo(out []byte) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info
}
