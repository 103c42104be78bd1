package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/internal/appconfig"
)

func newInitCmd() *cobra.Command {
	var cfgPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(cfgPath, force)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config written", "path", written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
