package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/extbridge/internal/exthost"
	"github.com/dshills/extbridge/internal/rpc"
)

func newExthostCmd() *cobra.Command {
	var extensionsDir string
	cmd := &cobra.Command{
		Use:   "exthost",
		Short: "Run the extension host on stdin and stdout",
		Long: "Runs the Lua extension host. Stdin and stdout carry the JSON-RPC\n" +
			"connection to the main thread; logs go to stderr. Normally started by serve.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout is the wire, so the log is always structured.
			cfg, logger, ctx, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			if extensionsDir == "" {
				extensionsDir = cfg.ExtensionsDir
			}

			host := exthost.New(logger, exthost.Options{CallTimeout: cfg.Host.CallTimeout})
			router := rpc.NewRouter(logger)
			if err := router.Register(host); err != nil {
				return err
			}
			conn := rpc.NewConn(ctx, rpc.Stdio{In: os.Stdin, Out: os.Stdout}, router, logger)
			host.Bind(conn)
			defer func() {
				_ = host.Close()
				_ = conn.Close()
			}()

			switch err := host.LoadDir(ctx, extensionsDir); {
			case errors.Is(err, fs.ErrNotExist):
				logger.Info("no extensions directory", "dir", extensionsDir)
			case err != nil:
				logger.Warn("some extensions failed to load", "error", err)
			}
			logger.Info("extension host ready", "extensions", len(host.Extensions()))

			select {
			case <-conn.Done():
			case <-ctx.Done():
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&extensionsDir, "extensions", "", "extensions directory (default from config)")
	return cmd
}
