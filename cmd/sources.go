package cmd

import (
	"fmt"

	"github.com/audiolibrelab/platyrender/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long: `List the audio sources the configured capture backend can open. Any of
these can be sent as audio_source in CHANGE AUDIO SOURCE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := audio.NewBackend(cfg.Audio)
		if err != nil {
			return err
		}

		if check, _ := cmd.Flags().GetString("check"); check != "" {
			if err := backend.ValidateSource(check); err != nil {
				return err
			}
			fmt.Printf("%s: ok\n", check)
			return nil
		}

		return listAvailableSources(backend)
	},
}

// listAvailableSources prints what backend reports
func listAvailableSources(backend audio.Backend) error {
	sources, err := backend.ListSources()
	if err != nil {
		return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
	}

	fmt.Printf("Audio Sources (%s)\n", backend.GetType())
	fmt.Printf("═══════════════════════════════════════\n\n")

	fmt.Printf("  default: %s\n", audio.DefaultMonitorSource)
	for i, source := range sources {
		fmt.Printf("  %d. %s\n", i+1, source)
	}

	fmt.Printf("\nAvailable backends:")
	for _, b := range audio.GetAvailableBackends() {
		fmt.Printf(" %s", b)
	}
	fmt.Println()
	return nil
}

func init() {
	sourcesCmd.Flags().String("check", "", "validate a single source instead of listing")
}
