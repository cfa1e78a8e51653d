package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cjeanneret/PiLapse/internal/config"
	"github.com/cjeanneret/PiLapse/internal/domain"
	"github.com/cjeanneret/PiLapse/internal/hw/camera"
	"github.com/cjeanneret/PiLapse/internal/hw/gpio"
	"github.com/cjeanneret/PiLapse/internal/logging"
	"github.com/cjeanneret/PiLapse/internal/logic/pipeline"
	"github.com/cjeanneret/PiLapse/internal/notify"
	"github.com/cjeanneret/PiLapse/internal/remote"
	"github.com/cjeanneret/PiLapse/internal/storage"
)

// app holds the constructors that touch real hardware or the network, so
// tests can swap them.
type app struct {
	stdout io.Writer
	stderr io.Writer

	newUploader func(cfg config.OSSConfig, log *slog.Logger) (pipeline.Uploader, error)
	newOpener   func(cfg *config.Config) camera.DeviceOpener
	newGPIO     func(mock bool, log *slog.Logger) (gpio.Driver, error)
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		newUploader: func(cfg config.OSSConfig, log *slog.Logger) (pipeline.Uploader, error) {
			return remote.NewOSS(cfg, log)
		},
		newOpener: v4l2Opener,
		newGPIO:   gpio.NewDriver,
	}
}

func v4l2Opener(cfg *config.Config) camera.DeviceOpener {
	return func(ctx context.Context) (camera.Device, error) {
		return camera.OpenV4L2(ctx, camera.V4L2Config{
			Device: cfg.DevicePath(),
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		})
	}
}

// setup loads config, creates the layout and starts logging. Nothing is
// written to disk when the config is invalid.
func (a *app) setup(flags rootFlags) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if flags.mock {
		cfg.Camera.Mock = true
	}
	if err := storage.EnsureLayout(cfg.Storage.BaseDir); err != nil {
		return nil, nil, nil, err
	}
	log, closeLog, err := logging.Setup(logging.Config{
		File:    cfg.LogFile(),
		Level:   cfg.Log.Level,
		Console: a.stdout,
	})
	if err != nil {
		return nil, nil, nil, domain.Wrap(domain.KindConfig, "setup logging", err)
	}
	return cfg, log, closeLog, nil
}

func (a *app) runCycle(ctx context.Context, flags rootFlags) error {
	cfg, log, closeLog, err := a.setup(flags)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("starting cycle",
		"version", version,
		"base_dir", cfg.Storage.BaseDir,
		"mock", cfg.Camera.Mock,
		"device", cfg.DevicePath(),
		"width", cfg.Camera.Width,
		"height", cfg.Camera.Height,
	)

	notifier := notify.NewFeishu(cfg.Notify.WebhookURL, log)
	abort := func(err error) error {
		log.Error("startup failed", "err", err)
		if nerr := notifier.Notify(context.WithoutCancel(ctx), pipeline.FailurePrefix+domain.Describe(err)); nerr != nil {
			log.Warn("notification failed", "err", nerr)
		}
		return errCycleFailed
	}

	uploader, err := a.newUploader(cfg.OSS, log)
	if err != nil {
		return abort(err)
	}

	opts := camera.Options{
		Retries: cfg.Camera.RetryCount,
		Log:     log,
	}
	if cfg.Camera.Mock {
		opts.MockPath = cfg.MockPath()
	}
	if cfg.Camera.IndicatorPin > 0 && !cfg.Camera.Mock {
		drv, ind := a.openIndicator(cfg, log)
		if drv != nil {
			defer func() {
				if err := drv.Close(); err != nil {
					log.Warn("closing GPIO driver failed", "err", err)
				}
			}()
		}
		if ind != nil {
			opts.Lamp = ind
		}
	}

	src, err := camera.Open(ctx, opts, a.newOpener(cfg))
	if err != nil {
		return abort(err)
	}

	store := storage.New(cfg.Storage.BaseDir, log)
	runner := pipeline.NewRunner(src, store, uploader, notifier, log)
	out := pipeline.Scoped(ctx, runner, src, log)

	if cfg.Storage.CleanupEnabled {
		sweep(cfg, log)
	}

	if !out.Succeeded() {
		return errCycleFailed
	}
	return nil
}

// openIndicator sets up the status lamp. Failures are logged and the cycle
// goes on without it.
func (a *app) openIndicator(cfg *config.Config, log *slog.Logger) (gpio.Driver, *gpio.Indicator) {
	drv, err := a.newGPIO(cfg.Camera.MockGPIO, log)
	if err != nil {
		log.Warn("GPIO unavailable, running without indicator", "err", err)
		return nil, nil
	}
	ind, err := gpio.NewIndicator(drv, cfg.Camera.IndicatorPin)
	if err != nil {
		log.Warn("indicator setup failed", "pin", cfg.Camera.IndicatorPin, "err", err)
		return drv, nil
	}
	log.Debug("indicator ready", "pin", ind.Pin(), "mock_gpio", cfg.Camera.MockGPIO)
	return drv, ind
}

func (a *app) runCleanup(out io.Writer, flags rootFlags) error {
	cfg, log, closeLog, err := a.setup(flags)
	if err != nil {
		return err
	}
	defer closeLog()

	res, err := sweep(cfg, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %d file(s), %d failure(s)\n", len(res.Deleted), res.Failed)
	return nil
}

func sweep(cfg *config.Config, log *slog.Logger) (storage.SweepResult, error) {
	sw := storage.NewRetentionSweeper(cfg.Storage.BaseDir, cfg.Retention(), log, cfg.Camera.MockFile)
	res, err := sw.Sweep()
	if err != nil {
		log.Warn("retention sweep failed", "err", err)
	}
	return res, err
}
