package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// Messages sent to the operator channel.
const (
	SuccessPrefix = "文件上传成功: "
	FailurePrefix = "执行失败: "
)

// Capturer produces one shot. *camera.Source implements it.
type Capturer interface {
	Capture(ctx context.Context) (domain.Shot, error)
}

// Persister stores frames locally. *storage.Store implements it.
type Persister interface {
	Persist(frame *domain.Frame) (domain.Artifact, error)
	Reference(path string) (domain.Artifact, error)
}

// Uploader sends an artifact to remote storage. *remote.Uploader implements it.
type Uploader interface {
	Upload(ctx context.Context, localPath, filename string) (domain.UploadResult, error)
}

// Notifier posts a status message. *notify.Feishu implements it.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// State is the position of a cycle in the pipeline.
type State int

const (
	Idle State = iota
	Capturing
	Persisting
	Uploading
	Notifying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Persisting:
		return "persisting"
	case Uploading:
		return "uploading"
	case Notifying:
		return "notifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner coordinates one capture, persist, upload and notify cycle. It is
// the only place stage errors are turned into an outcome.
type Runner struct {
	capturer Capturer
	store    Persister
	uploader Uploader
	notifier Notifier
	log      *slog.Logger

	mu      sync.Mutex
	state   State
	history []State
}

// NewRunner wires the stages together.
func NewRunner(c Capturer, p Persister, u Uploader, n Notifier, log *slog.Logger) *Runner {
	return &Runner{
		capturer: c,
		store:    p,
		uploader: u,
		notifier: n,
		log:      logging.Component(log, "pipeline"),
		state:    Idle,
		history:  []State{Idle},
	}
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns every state entered since the runner was created.
func (r *Runner) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.history...)
}

func (r *Runner) enter(s State) {
	r.mu.Lock()
	r.state = s
	r.history = append(r.history, s)
	r.mu.Unlock()
}

// Run executes one cycle and returns its outcome. Any stage error or panic
// ends in Failed. The notifier is called exactly once either way; its own
// error is logged and does not change the outcome.
func (r *Runner) Run(ctx context.Context) domain.Outcome {
	runID := uuid.NewString()
	log := r.log.With("run_id", runID)
	start := time.Now()
	log.Info("cycle started")

	out := r.stages(ctx, log)

	// A cancelled cycle is still reported; the HTTP client timeout bounds the call.
	r.enter(Notifying)
	msg := Message(out)
	if err := r.notify(context.WithoutCancel(ctx), msg); err != nil {
		log.Warn("notification failed", "err", err)
	}

	if out.Succeeded() {
		r.enter(Done)
		log.Info("cycle done", "url", out.Upload.URL, logging.Since(start))
	} else {
		r.enter(Failed)
		log.Error("cycle failed", "kind", string(out.Kind()), "err", out.Err, logging.Since(start))
	}
	return out
}

// Message renders the operator message for out.
func Message(out domain.Outcome) string {
	if out.Succeeded() {
		return SuccessPrefix + out.Upload.URL
	}
	return FailurePrefix + out.Reason()
}

func (r *Runner) stages(ctx context.Context, log *slog.Logger) (out domain.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("stage panicked", "state", r.State().String(), "panic", p)
			out = domain.Failure(fmt.Errorf("%s: panic: %v", r.State(), p))
		}
	}()

	r.enter(Capturing)
	shot, err := r.capturer.Capture(ctx)
	if err != nil {
		return domain.Failure(err)
	}

	r.enter(Persisting)
	var art domain.Artifact
	if shot.IsMock() {
		art, err = r.store.Reference(shot.Path)
	} else {
		art, err = r.store.Persist(shot.Frame)
	}
	if err != nil {
		return domain.Failure(err)
	}
	log.Debug("artifact ready", "path", art.Path)

	r.enter(Uploading)
	res, err := r.uploader.Upload(ctx, art.Path, art.Filename)
	if err != nil {
		return domain.Failure(err)
	}
	return domain.Success(res)
}

func (r *Runner) notify(ctx context.Context, msg string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.Errorf(domain.KindNotify, "notify", "panic: %v", p)
		}
	}()
	return r.notifier.Notify(ctx, msg)
}
