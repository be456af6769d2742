package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/platyrender/internal/config"
	"github.com/audiolibrelab/platyrender/internal/ipc"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View Platyrender configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		if cfg.Profile != "" {
			fmt.Printf("# profile: %s\n", cfg.Profile)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file and socket paths in use",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultPath()
		}
		fmt.Printf("config: %s\n", configPath)

		socketPath, err := resolveSocketPath("")
		if err != nil {
			return err
		}
		fmt.Printf("socket: %s\n", socketPath)
		return nil
	},
}

// resolveSocketPath picks the flag value, then socket.path, then the
// platform default.
func resolveSocketPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg != nil && cfg.Socket.Path != "" {
		return cfg.Socket.Path, nil
	}
	path, err := ipc.DefaultSocketPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine socket path: %w", err)
	}
	return path, nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
