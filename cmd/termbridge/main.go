package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("termbridge command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "termbridge",
		Short:         "Terminal session host with a resilient bridge protocol",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newHostCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())

	return root
}
