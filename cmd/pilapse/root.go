package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// errCycleFailed signals a failed cycle that was already logged and notified.
var errCycleFailed = errors.New("cycle failed")

const defaultEnvFile = ".env"

type rootFlags struct {
	configPath string
	envFile    string
	mock       bool
}

func newRootCmd(a *app) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "pilapse",
		Short: "Capture, store, upload and report one timelapse frame",
		Long: "pilapse grabs one frame from a V4L2 camera, saves it rotated under\n" +
			"<base_dir>/images, uploads it to Aliyun OSS and posts the result to a\n" +
			"Feishu webhook. Run it from cron or a systemd timer.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile, cmd.Flags().Changed("env-file"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCycle(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "optional YAML config file (environment variables win)")
	pf.StringVar(&flags.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	root.Flags().BoolVar(&flags.mock, "mock", false, "use the mock image instead of the camera")

	root.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete images older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCleanup(cmd.OutOrStdout(), flags)
		},
	})
	return root
}

// execute runs the CLI and maps the result to a process exit status.
func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errCycleFailed):
		return 1
	default:
		fmt.Fprintln(a.stderr, "pilapse:", err)
		return 1
	}
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
