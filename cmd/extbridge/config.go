package main

import (
	"context"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/appconfig"
	"github.com/dshills/extbridge/internal/logx"
)

// loadConfig reads the --config file and replaces the context logger
// with one built from it.
func loadConfig(cmd *cobra.Command, structured bool) (appconfig.Config, pslog.Logger, context.Context, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := appconfig.Load(path)
	if err != nil {
		return appconfig.Config{}, nil, nil, err
	}
	logger := logx.New(logx.Config{
		Level:      cfg.LogLevel,
		Structured: structured || cfg.LogStructured,
	})
	return cfg, logger, logx.With(cmd.Context(), logger), nil
}
