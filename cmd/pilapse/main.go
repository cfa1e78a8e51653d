// pilapse runs one timelapse cycle: capture a still from the camera, store it
// rotated under <base_dir>/images, upload it to OSS and report to Feishu.
// Schedule it with cron or a systemd timer.
//
// Usage:
//
//	pilapse [--config pilapse.yaml] [--env-file .env] [--mock]
//	pilapse cleanup [--config pilapse.yaml] [--env-file .env]
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newApp(), os.Args[1:])
	cancel()
	os.Exit(code)
}
