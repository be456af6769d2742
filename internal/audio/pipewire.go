package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
)

// DefaultMonitorSource captures whatever is playing on the default sink.
const DefaultMonitorSource = "@DEFAULT_SINK@.monitor"

const monitorSuffix = ".monitor"

// PipeWire manages PipeWire port queries
type PipeWire struct{}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{}
}

// ListPorts returns all output ports known to PipeWire
func (pw *PipeWire) ListPorts() ([]string, error) {
	cmd := exec.Command("pw-link", "-o")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePorts(string(output)), nil
}

func parsePorts(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ListNodes returns the distinct node names owning the output ports. These
// are the names pw-record accepts as a target.
func (pw *PipeWire) ListNodes() ([]string, error) {
	ports, err := pw.ListPorts()
	if err != nil {
		return nil, err
	}
	return nodesFromPorts(ports), nil
}

// nodesFromPorts strips the port part, splitting at the last colon since
// node names may contain colons themselves.
func nodesFromPorts(ports []string) []string {
	seen := make(map[string]bool)
	var nodes []string
	for _, port := range ports {
		idx := strings.LastIndex(port, ":")
		if idx <= 0 {
			continue
		}
		node := strings.TrimSpace(port[:idx])
		if node == "" || seen[node] {
			continue
		}
		seen[node] = true
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// ValidateNode checks that source names an existing node, or a sink monitor
// of one.
func (pw *PipeWire) ValidateNode(source string) error {
	if isDefaultSource(source) {
		return nil
	}
	nodes, err := pw.ListNodes()
	if err != nil {
		return err
	}
	return validateNodeInList(source, nodes)
}

func validateNodeInList(source string, nodes []string) error {
	if source == "" {
		return fmt.Errorf("audio source is empty")
	}
	if isDefaultSource(source) {
		return nil
	}
	target := strings.TrimSuffix(source, monitorSuffix)
	for _, node := range nodes {
		if node == target || node == source {
			return nil
		}
	}
	slog.Debug("Unknown PipeWire node", "source", source, "known", len(nodes))
	return fmt.Errorf("source not found: %s", source)
}

func isDefaultSource(source string) bool {
	return strings.HasPrefix(source, "@DEFAULT_")
}

// recordArgs builds the pw-record invocation for source. Sink monitors are
// recorded by capturing the sink itself.
func recordArgs(source string, sampleRate, channels int) []string {
	args := []string{
		"--raw",
		"--format", "f32",
		"--rate", fmt.Sprintf("%d", sampleRate),
		"--channels", fmt.Sprintf("%d", channels),
	}

	switch {
	case source == DefaultMonitorSource:
		args = append(args, "-P", "{ stream.capture.sink=true }")
	case strings.HasSuffix(source, monitorSuffix):
		args = append(args,
			"--target", strings.TrimSuffix(source, monitorSuffix),
			"-P", "{ stream.capture.sink=true }",
		)
	case isDefaultSource(source):
		// Default source: let the session manager pick.
	default:
		args = append(args, "--target", source)
	}

	return append(args, "-")
}
