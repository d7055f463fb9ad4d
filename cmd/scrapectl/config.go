package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CharanSaiVaddi/scrapectl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change orchestrator settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		printf(cmd, "%s", b)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting in the config file",
	Long:  "Store a setting in the config file. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultFileName
		}
		if err := config.Set(path, args[0], args[1]); err != nil {
			return fmt.Errorf("config set: %w", err)
		}
		printf(cmd, "config saved to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
