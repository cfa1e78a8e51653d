package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the pipeline stage that produced it.
type Kind string

const (
	KindConfig  Kind = "config"
	KindDevice  Kind = "device"
	KindCapture Kind = "capture"
	KindIO      Kind = "io"
	KindUpload  Kind = "upload"
	KindNotify  Kind = "notify"
)

// ErrNoFrame is returned when every capture attempt came back empty.
var ErrNoFrame = errors.New("no frame acquired")

// Error wraps an underlying error with the operation and kind it belongs to.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap returns err tagged with kind and op. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error from a format string. %w is honoured.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var kindLabels = map[Kind]string{
	KindConfig:  "configuration error",
	KindDevice:  "camera unavailable",
	KindCapture: "capture failed",
	KindIO:      "could not save image",
	KindUpload:  "upload failed",
	KindNotify:  "notification failed",
}

// Describe renders err for operators: a short label for its kind followed
// by the underlying detail.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	label, ok := kindLabels[KindOf(err)]
	if !ok {
		return err.Error()
	}
	return label + ": " + err.Error()
}
