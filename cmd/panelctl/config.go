package main

import (
	"fmt"

	"github.com/danmuck/panelctl/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or check configuration files",
	}

	var demo, force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a commented config file holding the defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], demo, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&demo, "demo", true, "enable the demo pages in the template")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %s transport=%s listen=%s framing=%s\n",
				cfg.Name, cfg.Transport.Kind, cfg.Transport.ListenAddr, cfg.Transport.Framing)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
