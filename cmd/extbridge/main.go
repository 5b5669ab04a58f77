// Command extbridge runs the main-thread side of the extension host bridge
// and, as a child process, the extension host itself.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"pkt.systems/psi"

	"github.com/dshills/extbridge/internal/logx"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	ctx = logx.With(ctx, logx.New(logx.Config{Level: logx.LevelInfo}))

	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		logx.Ctx(ctx).Error("extbridge command failed", "error", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "extbridge",
		Short:         "Extension host bridge",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/extbridge/config.toml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newExthostCmd())
	root.AddCommand(newVersionCmd())
	return root
}
