package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/appconfig"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/workbench"
)

var errHostExited = errors.New("extension host exited")

func newServeCmd() *cobra.Command {
	var (
		extensionsDir string
		settingsPath  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the main thread and its extension host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, ctx, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			if extensionsDir != "" {
				cfg.ExtensionsDir = extensionsDir
			}
			if settingsPath != "" {
				cfg.SettingsPath = settingsPath
			}
			configPath, _ := cmd.Flags().GetString("config")
			return serve(ctx, cfg, configPath, logger)
		},
	}
	cmd.Flags().StringVar(&extensionsDir, "extensions", "", "extensions directory (default from config)")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "user settings file (default from config)")
	return cmd
}

func serve(ctx context.Context, cfg appconfig.Config, configPath string, logger pslog.Logger) error {
	wb, err := workbench.New(workbench.Options{
		SettingsPath:        cfg.SettingsPath,
		WatchSettings:       true,
		StatePath:           cfg.StatePath,
		Product:             cfg.Telemetry.Product,
		Version:             currentVersion(),
		TelemetryEnabled:    cfg.Telemetry.StoreLimit > 0 || cfg.Telemetry.Log,
		TelemetryStoreLimit: cfg.Telemetry.StoreLimit,
		TelemetryLog:        cfg.Telemetry.Log,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := wb.Close(); err != nil {
			logger.Warn("workbench close failed", "error", err)
		}
	}()

	child, err := hostCommand(cfg, configPath)
	if err != nil {
		return err
	}
	stdin, err := child.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return err
	}
	if err := child.Start(); err != nil {
		return fmt.Errorf("start extension host: %w", err)
	}
	logger.Info("extension host started", "pid", child.Process.Pid, "extensions", cfg.ExtensionsDir)

	session, err := wb.Connect(ctx, rpc.Stdio{In: stdout, Out: stdin})
	if err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wb.Run(gctx) })
	g.Go(func() error {
		select {
		case <-session.Done():
		case <-gctx.Done():
		}
		// Closing the connection closes the host's stdin, which ends it.
		_ = session.Close()
		waitErr := waitHost(child, cfg.Host.SettleTimeout)
		if gctx.Err() != nil {
			return nil
		}
		if waitErr != nil {
			return fmt.Errorf("%w: %w", errHostExited, waitErr)
		}
		return errHostExited
	})
	return g.Wait()
}

// hostCommand builds the extension host process. Without a configured
// command it re-executes this binary.
func hostCommand(cfg appconfig.Config, configPath string) (*exec.Cmd, error) {
	argv := cfg.Host.Command
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		argv = []string{exe, "exthost"}
	}
	args := append([]string{}, argv[1:]...)
	args = append(args, "--extensions", cfg.ExtensionsDir)
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	child := exec.Command(argv[0], args...)
	child.Stderr = os.Stderr
	return child, nil
}

// waitHost waits for the host to exit, killing it after settle.
func waitHost(child *exec.Cmd, settle time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- child.Wait() }()
	if settle <= 0 {
		settle = 5 * time.Second
	}
	select {
	case err := <-done:
		return err
	case <-time.After(settle):
		_ = child.Process.Kill()
		return <-done
	}
}
