package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// Timing used when Options leaves the corresponding field zero.
const (
	DefaultWarmupReads = 5
	DefaultWarmupDelay = 100 * time.Millisecond
	DefaultRetryDelay  = 500 * time.Millisecond
)

var errEmptyFrame = errors.New("empty frame")

// Device is a single opened camera. Read returns one encoded image
// (JPEG, PNG...) or an empty slice when the device had nothing to give.
type Device interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// DeviceOpener acquires a device, applies its format and checks it is ready.
type DeviceOpener func(ctx context.Context) (Device, error)

// Lamp is switched on while frames are read. gpio.Indicator implements it.
type Lamp interface {
	On() error
	Off() error
}

// Options configures a Source.
type Options struct {
	Retries     int           // read attempts per Capture, >= 1
	RetryDelay  time.Duration // pause between failed attempts
	WarmupReads int           // discarded reads at open (auto exposure / white balance)
	WarmupDelay time.Duration // pause between discarded reads
	MockPath    string        // non-empty: never touch a device, Capture returns this path
	Lamp        Lamp          // optional
	Log         *slog.Logger

	Sleep func(time.Duration) // nil means time.Sleep
	Now   func() time.Time    // nil means time.Now
}

func (o *Options) applyDefaults() {
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.WarmupReads <= 0 {
		o.WarmupReads = DefaultWarmupReads
	}
	if o.WarmupDelay <= 0 {
		o.WarmupDelay = DefaultWarmupDelay
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Log = logging.Component(o.Log, "camera")
}

// Source owns the camera for the lifetime of one process run.
type Source struct {
	dev  Device
	opts Options
	log  *slog.Logger

	closeOnce sync.Once
	closeErr  error
	released  bool
	mu        sync.Mutex
}

// Open acquires the camera through open and lets it settle with a few
// discarded reads. In mock mode open is never called. Any failure is a
// domain.KindDevice error.
func Open(ctx context.Context, opts Options, open DeviceOpener) (*Source, error) {
	opts.applyDefaults()
	s := &Source{opts: opts, log: opts.Log}

	if opts.MockPath != "" {
		s.log.Info("camera in mock mode", "file", opts.MockPath)
		return s, nil
	}
	if open == nil {
		return nil, domain.Errorf(domain.KindDevice, "open camera", "no device opener configured")
	}

	dev, err := open(ctx)
	if err != nil {
		s.log.Error("camera init failed", "err", err)
		return nil, domain.Wrap(domain.KindDevice, "open camera", err)
	}
	s.dev = dev

	// Results are ignored: the sensor only needs time and a few frames to settle.
	for i := 0; i < opts.WarmupReads; i++ {
		if _, err := dev.Read(ctx); err != nil {
			s.log.Debug("warm-up read failed", "read", i+1, "err", err)
		}
		opts.Sleep(opts.WarmupDelay)
	}

	s.log.Info("camera initialized")
	return s, nil
}

// Mock reports whether the source runs without a device.
func (s *Source) Mock() bool { return s.opts.MockPath != "" }

// Capture returns one frame. It tries up to Options.Retries reads and
// reports a single domain.KindCapture error wrapping domain.ErrNoFrame
// when none of them produced an image. In mock mode it returns the mock path.
func (s *Source) Capture(ctx context.Context) (domain.Shot, error) {
	if s.isReleased() {
		return domain.Shot{}, domain.Errorf(domain.KindCapture, "capture", "camera already released")
	}
	if s.Mock() {
		return domain.Shot{Path: s.opts.MockPath}, nil
	}

	s.lamp(true)
	defer s.lamp(false)

	var lastErr error
	for attempt := 1; attempt <= s.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Shot{}, domain.Wrap(domain.KindCapture, "capture", err)
		}

		frame, err := s.readFrame(ctx)
		if err == nil {
			s.log.Debug("frame acquired", "attempt", attempt, "width", frame.Width, "height", frame.Height)
			return domain.Shot{Frame: frame}, nil
		}
		lastErr = err
		s.log.Warn("capture attempt failed", "attempt", attempt, "of", s.opts.Retries, "err", err)

		if attempt < s.opts.Retries {
			s.opts.Sleep(s.opts.RetryDelay)
		}
	}

	return domain.Shot{}, &domain.Error{
		Kind: domain.KindCapture,
		Op:   "capture",
		Err:  fmt.Errorf("%w after %d attempts (last: %v)", domain.ErrNoFrame, s.opts.Retries, lastErr),
	}
}

func (s *Source) readFrame(ctx context.Context) (*domain.Frame, error) {
	data, err := s.dev.Read(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyFrame
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errEmptyFrame
	}
	return domain.NewFrame(img, s.opts.Now()), nil
}

func (s *Source) lamp(on bool) {
	if s.opts.Lamp == nil {
		return
	}
	var err error
	if on {
		err = s.opts.Lamp.On()
	} else {
		err = s.opts.Lamp.Off()
	}
	if err != nil {
		s.log.Warn("indicator lamp", "on", on, "err", err)
	}
}

// Close releases the device. Only the first call does anything; later
// calls return the same result. It is safe on a nil Source, so callers can
// defer it before knowing whether Open succeeded.
func (s *Source) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.lamp(false)
		if s.dev != nil {
			s.closeErr = s.dev.Close()
		}
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		s.log.Info("camera released")
	})
	return s.closeErr
}

// Released reports whether Close has run.
func (s *Source) Released() bool {
	if s == nil {
		return true
	}
	return s.isReleased()
}

func (s *Source) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
