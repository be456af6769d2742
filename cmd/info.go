package cmd

import (
	"fmt"
	"time"

	"github.com/audiolibrelab/platyrender/internal/ipc"
	"github.com/audiolibrelab/platyrender/internal/protocol"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the resolved configuration, and a running renderer's status with --live",
	Long: `Display the resolved configuration. With --live, also connect to the
renderer on the socket and show its GET STATUS answer.

A live query is a controller session like any other: the renderer emits a
DISCONNECT event when it ends, and once the session is initialized the
renderer exits with it unless renderer.exit_on_disconnect is false. The
renderer accepts a single controller, so while another one is connected the
query is turned away and the renderer is reported as busy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		socketFlag, _ := cmd.Flags().GetString("socket")
		socketPath, err := resolveSocketPath(socketFlag)
		if err != nil {
			return err
		}

		fmt.Printf("=== RESOLVED CONFIGURATION ===\n")
		if cfg.Profile != "" {
			fmt.Printf("profile: %s\n", cfg.Profile)
		}
		fmt.Printf("\n[Socket]\n")
		fmt.Printf("path: %s\n", socketPath)
		fmt.Printf("poll_interval: %s\n", cfg.Socket.PollInterval)
		fmt.Printf("response_timeout: %s\n", cfg.Socket.ResponseTimeout)

		fmt.Printf("\n[Renderer]\n")
		fmt.Printf("frame_rate: %d\n", cfg.Renderer.FrameRate)
		fmt.Printf("size: %dx%d\n", cfg.Renderer.Width, cfg.Renderer.Height)
		fmt.Printf("exit_on_disconnect: %t\n", cfg.Renderer.ExitOnDisconnect)

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s\n", cfg.Audio.Backend)
		fmt.Printf("sample_rate: %d\n", cfg.Audio.SampleRate)
		fmt.Printf("channels: %d\n", cfg.Audio.Channels)

		if live, _ := cmd.Flags().GetBool("live"); !live {
			return nil
		}

		fmt.Printf("\n=== RENDERER STATUS ===\n")
		st, err := fetchStatus(socketPath, time.Second)
		if err != nil {
			fmt.Printf("unavailable: %v\n", err)
			return nil
		}
		fmt.Printf("audio_source: %s\n", orNone(st.AudioSource))
		fmt.Printf("audio_connected: %t\n", st.AudioConnected)
		fmt.Printf("preset_path: %s\n", orNone(st.PresetPath))
		fmt.Printf("visible: %t\n", st.Visible)
		fmt.Printf("fullscreen: %t\n", st.Fullscreen)
		return nil
	},
}

// fetchStatus asks the renderer at socketPath for GET STATUS.
func fetchStatus(socketPath string, timeout time.Duration) (protocol.StatusData, error) {
	client, err := ipc.Dial(socketPath, timeout)
	if err != nil {
		return protocol.StatusData{}, err
	}
	defer client.Close()

	payload, err := protocol.Command{Type: protocol.CommandGetStatus, ID: protocol.IDPtr(1)}.Encode()
	if err != nil {
		return protocol.StatusData{}, err
	}
	data, err := client.Request(payload)
	if err != nil {
		return protocol.StatusData{}, fmt.Errorf("renderer busy or not responding: %w", err)
	}
	resp, err := protocol.ParseResponse(data)
	if err != nil {
		return protocol.StatusData{}, err
	}
	return resp.Status()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	infoCmd.Flags().String("socket", "", "socket path (overrides socket.path)")
	infoCmd.Flags().Bool("live", false, "query the running renderer (counts as a controller connection)")
	rootCmd.AddCommand(infoCmd)
}
