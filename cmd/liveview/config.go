package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/liveview/internal/config"
	"github.com/vango-dev/liveview/internal/errors"
)

func configCmd(load func() (*config.Config, error), configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create liveview config files",
	}
	cmd.AddCommand(
		configValidateCmd(configPath),
		configInitCmd(),
		configShowCmd(load),
	)
	return cmd
}

func configValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a config file for errors",
		Long: `Parse and validate a config file without starting the server.

Unlike serve, validate fails when no config file exists.

Examples:
  liveview config validate
  liveview config validate -c deploy/liveview.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if *configPath != "" {
				cfg, err = config.LoadFile(*configPath)
			} else {
				cfg, err = config.Load(".")
			}
			if err != nil {
				return err
			}
			if _, err := cfg.ServerConfig(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			success(w, "%s is valid", cfg.Path())
			info(w, "address: %s", cfg.Server.Address)
			info(w, "store:   %s", cfg.Store.Driver)
			info(w, "log:     %s/%s", cfg.Log.Format, cfg.Log.Level)
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a config file with every default filled in",
		Long: `Write a config file with every default filled in.

The format follows the extension: .yaml, .yml or .json.

Examples:
  liveview config init
  liveview config init liveview.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileNames[0]
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New("E141").
					WithDetail(path + " already exists.").
					WithSuggestion("pass --force to overwrite it")
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return errors.New("E106").Wrap(err)
				}
			}
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

func configShowCmd(load func() (*config.Config, error)) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(w)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(cfg)
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			default:
				return errors.New("E141").
					WithDetail(fmt.Sprintf("--format is %q.", format)).
					WithSuggestion("use yaml or json")
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml or json")

	return cmd
}
