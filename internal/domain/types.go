package domain

import (
	"errors"
	"image"
	"time"
)

// Frame is one decoded image read from the camera.
type Frame struct {
	Image      image.Image
	Width      int
	Height     int
	CapturedAt time.Time
}

// NewFrame wraps img, filling in its dimensions.
func NewFrame(img image.Image, at time.Time) *Frame {
	b := img.Bounds()
	return &Frame{Image: img, Width: b.Dx(), Height: b.Dy(), CapturedAt: at}
}

// Shot is the result of a capture: a live frame, or in mock mode the path
// of a file that stands in for one.
type Shot struct {
	Frame *Frame
	Path  string
}

// IsMock reports whether the shot refers to a pre-existing file.
func (s Shot) IsMock() bool { return s.Frame == nil && s.Path != "" }

// Artifact is an image persisted on local disk.
type Artifact struct {
	Path     string // absolute
	Filename string
}

// UploadResult describes where an artifact ended up remotely.
type UploadResult struct {
	URL string
	Key string
}

// Outcome is the single result reported for a cycle.
type Outcome struct {
	Upload *UploadResult
	Err    error
}

// Success builds a successful outcome.
func Success(r UploadResult) Outcome { return Outcome{Upload: &r} }

// Failure builds a failed outcome. A nil err is replaced with a generic one
// so a failed outcome can never look successful.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("pipeline failed")
	}
	return Outcome{Err: err}
}

// Succeeded reports whether the cycle completed.
func (o Outcome) Succeeded() bool { return o.Err == nil && o.Upload != nil }

// Reason is the human-readable failure reason, empty on success.
func (o Outcome) Reason() string {
	if o.Succeeded() {
		return ""
	}
	return Describe(o.Err)
}

// Kind is the failure kind, empty on success.
func (o Outcome) Kind() Kind { return KindOf(o.Err) }
