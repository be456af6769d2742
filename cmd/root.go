package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/platyrender/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "platyrender",
	Short: "Audio visualizer renderer controlled over a local socket",
	Long: `Platyrender is the rendering half of a music visualizer. It captures
system audio, draws presets, and takes its orders from a single controller
process connected over a Unix domain socket.

Commands are netstring-framed JSON objects. Diagnostics a controller needs
to react to are written to stderr as netstring-framed JSON events.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(os.Stderr, verboseLevel, "")

		var err error
		cfg, err = config.Load(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// -v wins over log.level from the config file
		if verboseLevel == 0 {
			setupLogging(os.Stderr, 0, cfg.Log.Level)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/platyrender.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().CountVarP(&verboseLevel, "verbose", "v", "verbose level: -v=debug, -vv=debug with PipeWire tracing")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog to write to w at the verbose level, or at a
// configured level name when verbose is 0 and name is set.
func setupLogging(w io.Writer, level int, name string) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
		if name != "" {
			// Already validated with the rest of the config
			slogLevel, _ = config.ParseLevel(name)
		}
	default:
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Set environment variables for capture tracing (level 2)
	if level >= 2 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}
