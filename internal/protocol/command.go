// Package protocol defines the JSON commands a controller sends to the
// renderer and the responses it gets back.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CommandType identifies a command by its wire name.
type CommandType string

const (
	CommandChangeAudioSource CommandType = "CHANGE AUDIO SOURCE"
	CommandInit              CommandType = "INIT"
	CommandLoadPreset        CommandType = "LOAD PRESET"
	CommandShowWindow        CommandType = "SHOW WINDOW"
	CommandSetFullscreen     CommandType = "SET FULLSCREEN"
	CommandQuit              CommandType = "QUIT"
	CommandGetStatus         CommandType = "GET STATUS"
)

// IdlePreset is the pseudo-preset that renders nothing.
const IdlePreset = "idle://"

// Field names on the wire.
const (
	fieldCommand     = "command"
	fieldID          = "id"
	fieldAudioSource = "audio_source"
	fieldPath        = "path"
	fieldEnabled     = "enabled"
)

// allowedFields lists the fields a command may carry besides command and id.
var allowedFields = map[CommandType][]string{
	CommandChangeAudioSource: {fieldAudioSource},
	CommandInit:              nil,
	CommandLoadPreset:        {fieldPath},
	CommandShowWindow:        nil,
	CommandSetFullscreen:     {fieldEnabled},
	CommandQuit:              nil,
	CommandGetStatus:         nil,
}

// Valid reports whether t is a known command.
func (t CommandType) Valid() bool {
	_, ok := allowedFields[t]
	return ok
}

// Command is a decoded request.
type Command struct {
	Type CommandType
	// ID is nil only when decoding failed before an id could be read.
	ID *int64

	AudioSource string
	PresetPath  string
	Fullscreen  bool
}

// ParseCommand decodes one payload. On failure the returned Command carries
// the request id whenever the payload had a readable integer id, so the
// caller can still correlate the error response.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command

	dec := json.NewDecoder(bytes.NewReader(data))
	var top json.RawMessage
	if err := dec.Decode(&top); err != nil {
		return cmd, fmt.Errorf("JSON parse error: %v", err)
	}
	if dec.More() {
		return cmd, fmt.Errorf("JSON parse error: trailing data after value")
	}
	if top[0] != '{' {
		return cmd, fmt.Errorf("expected JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(top, &fields); err != nil {
		return cmd, fmt.Errorf("JSON parse error: %v", err)
	}

	if raw, ok := fields[fieldID]; ok {
		if id, err := parseID(raw); err == nil {
			cmd.ID = &id
		}
	}

	var name string
	if !decodeString(fields, fieldCommand, &name) {
		return cmd, fmt.Errorf("missing or invalid 'command' field")
	}
	t := CommandType(name)
	if !t.Valid() {
		return cmd, fmt.Errorf("unknown command: %s", name)
	}
	cmd.Type = t

	if _, ok := fields[fieldID]; !ok {
		return cmd, fmt.Errorf("missing 'id' field")
	}
	if cmd.ID == nil {
		return cmd, fmt.Errorf("'id' must be an integer")
	}

	if err := checkFields(t, fields); err != nil {
		return cmd, err
	}

	switch t {
	case CommandChangeAudioSource:
		if !decodeString(fields, fieldAudioSource, &cmd.AudioSource) {
			return cmd, fmt.Errorf("%s requires '%s' string", t, fieldAudioSource)
		}
	case CommandLoadPreset:
		if !decodeString(fields, fieldPath, &cmd.PresetPath) {
			return cmd, fmt.Errorf("%s requires '%s' string", t, fieldPath)
		}
	case CommandSetFullscreen:
		raw, ok := fields[fieldEnabled]
		if !ok || !isJSONBool(raw) {
			return cmd, fmt.Errorf("%s requires '%s' boolean", t, fieldEnabled)
		}
		if err := json.Unmarshal(raw, &cmd.Fullscreen); err != nil {
			return cmd, fmt.Errorf("%s requires '%s' boolean", t, fieldEnabled)
		}
	}

	return cmd, nil
}

// checkFields rejects anything outside the per-command allow-list. Keys are
// visited in sorted order so the reported field is deterministic.
func checkFields(t CommandType, fields map[string]json.RawMessage) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == fieldCommand || k == fieldID {
			continue
		}
		if !contains(allowedFields[t], k) {
			return fmt.Errorf("unexpected field: %s", k)
		}
	}
	return nil
}

func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return 0, fmt.Errorf("not a number")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n.Int64()
}

func decodeString(fields map[string]json.RawMessage, key string, dst *string) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func isJSONBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return bytes.Equal(raw, []byte("true")) || bytes.Equal(raw, []byte("false"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Encode renders cmd as a wire payload. It is the controller-side inverse of
// ParseCommand.
func (c Command) Encode() ([]byte, error) {
	if !c.Type.Valid() {
		return nil, fmt.Errorf("unknown command: %s", c.Type)
	}
	out := map[string]any{fieldCommand: string(c.Type)}
	if c.ID != nil {
		out[fieldID] = *c.ID
	}
	switch c.Type {
	case CommandChangeAudioSource:
		out[fieldAudioSource] = c.AudioSource
	case CommandLoadPreset:
		out[fieldPath] = c.PresetPath
	case CommandSetFullscreen:
		out[fieldEnabled] = c.Fullscreen
	}
	return json.Marshal(out)
}

// IDPtr is a convenience for building commands and responses.
func IDPtr(id int64) *int64 {
	return &id
}
