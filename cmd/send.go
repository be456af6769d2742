package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/platyrender/internal/ipc"
	"github.com/audiolibrelab/platyrender/internal/protocol"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var sendCmd = &cobra.Command{
	Use:   "send JSON...",
	Short: "Send commands to a running renderer",
	Long: `Send each argument as one framed command and print each response.

Example:
  platyrender send '{"command":"CHANGE AUDIO SOURCE","id":1,"audio_source":"@DEFAULT_SINK@.monitor"}' \
                   '{"command":"INIT","id":2}' '{"command":"GET STATUS","id":3}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		socketFlag, _ := cmd.Flags().GetString("socket")
		socketPath, err := resolveSocketPath(socketFlag)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client, err := ipc.Dial(socketPath, timeout)
		if err != nil {
			return err
		}
		defer client.Close()

		for _, arg := range args {
			data, err := client.Request([]byte(arg))
			if err != nil {
				return err
			}
			printResponse(data)

			resp, err := protocol.ParseResponse(data)
			if err != nil {
				return err
			}
			if !resp.Success {
				slog.Debug("Command failed", "error", resp.Error)
			}
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().String("socket", "", "socket path (overrides socket.path)")
	sendCmd.Flags().Duration("timeout", 5*time.Second, "connect and per-command timeout")
}

// printResponse writes data as received, indented when stdout is a terminal.
func printResponse(data []byte) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err == nil {
			data = out.Bytes()
		}
	}
	fmt.Println(string(data))
}
