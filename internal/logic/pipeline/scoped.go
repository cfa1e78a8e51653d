package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/logging"
)

// Cycle runs once and reports an outcome. *Runner implements it.
type Cycle interface {
	Run(ctx context.Context) domain.Outcome
}

// Scoped runs c once and then closes camera, on every exit path including
// a panic escaping c. The camera is closed exactly once; a close error is
// logged and does not change the outcome.
func Scoped(ctx context.Context, c Cycle, camera io.Closer, log *slog.Logger) (out domain.Outcome) {
	log = logging.Component(log, "pipeline")
	defer func() {
		if p := recover(); p != nil {
			log.Error("cycle panicked", "panic", p)
			out = domain.Failure(fmt.Errorf("panic: %v", p))
		}
		if camera == nil {
			return
		}
		if err := camera.Close(); err != nil {
			log.Warn("camera close failed", "err", err)
		}
	}()
	return c.Run(ctx)
}
