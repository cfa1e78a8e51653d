package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// ImagesDirName is the subdirectory of the storage root holding images.
const ImagesDirName = "images"

// JPEGQuality is the encoder quality for persisted frames.
const JPEGQuality = 95

const fileNameLayout = "20060102_150405"

// EnsureLayout creates <root>/images. Called once at startup.
func EnsureLayout(root string) error {
	if root == "" {
		return domain.Errorf(domain.KindIO, "ensure layout", "empty storage root")
	}
	if err := os.MkdirAll(filepath.Join(root, ImagesDirName), 0o755); err != nil {
		return domain.Wrap(domain.KindIO, "ensure layout", err)
	}
	return nil
}

// Store writes frames into the images directory.
type Store struct {
	dir string
	ext string
	now func() time.Time
	log *slog.Logger
}

// Option tunes a Store.
type Option func(*Store)

// WithExtension changes the output format (jpg, png...). The encoder is
// chosen from the extension.
func WithExtension(ext string) Option {
	return func(s *Store) { s.ext = strings.TrimPrefix(ext, ".") }
}

// WithClock replaces time.Now for file naming.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store rooted at root. The layout must already exist.
func New(root string, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		dir: filepath.Join(root, ImagesDirName),
		ext: "jpg",
		now: time.Now,
		log: logging.Component(log, "storage"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dir returns the images directory.
func (s *Store) Dir() string { return s.dir }

// FileName returns the image name for t, e.g. timelapse_20240315_093000.jpg.
// Two captures in the same second share a name; the later one overwrites.
func (s *Store) FileName(t time.Time) string {
	return "timelapse_" + t.Format(fileNameLayout) + "." + s.ext
}

// Persist rotates frame 90 degrees counter-clockwise and writes it to the
// images directory. Failures are domain.KindIO errors.
func (s *Store) Persist(frame *domain.Frame) (domain.Artifact, error) {
	if frame == nil || frame.Image == nil {
		return domain.Artifact{}, domain.Errorf(domain.KindIO, "persist", "no frame to persist")
	}

	name := s.FileName(s.now())
	path, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return domain.Artifact{}, domain.Wrap(domain.KindIO, "persist", err)
	}

	rotated := imaging.Rotate90(frame.Image)
	if err := imaging.Save(rotated, path, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return domain.Artifact{}, domain.Wrap(domain.KindIO, "persist", fmt.Errorf("save %s: %w", path, err))
	}

	b := rotated.Bounds()
	s.log.Info("image saved", "path", path, "width", b.Dx(), "height", b.Dy())
	return domain.Artifact{Path: path, Filename: name}, nil
}

// Reference turns an existing file (the mock image) into an artifact
// without touching it.
func (s *Store) Reference(path string) (domain.Artifact, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Artifact{}, domain.Wrap(domain.KindIO, "reference", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Artifact{}, domain.Errorf(domain.KindIO, "reference", "mock image %s does not exist", abs)
		}
		return domain.Artifact{}, domain.Wrap(domain.KindIO, "reference", err)
	}
	if !info.Mode().IsRegular() {
		return domain.Artifact{}, domain.Errorf(domain.KindIO, "reference", "%s is not a regular file", abs)
	}
	s.log.Info("using mock image", "path", abs)
	return domain.Artifact{Path: abs, Filename: filepath.Base(abs)}, nil
}
