package protocol

import (
	"encoding/json"
	"fmt"
)

// Response answers exactly one Command.
type Response struct {
	// ID echoes the command id; nil is serialized as null.
	ID      *int64
	Success bool
	// Data is the success payload. A nil Data is sent as an empty object.
	Data  any
	Error string
}

// StatusData is the GET STATUS payload.
type StatusData struct {
	AudioSource    string `json:"audio_source" yaml:"audio_source"`
	AudioConnected bool   `json:"audio_connected" yaml:"audio_connected"`
	PresetPath     string `json:"preset_path" yaml:"preset_path"`
	Visible        bool   `json:"visible" yaml:"visible"`
	Fullscreen     bool   `json:"fullscreen" yaml:"fullscreen"`
}

// NewSuccess builds a success response for id.
func NewSuccess(id *int64, data any) Response {
	return Response{ID: id, Success: true, Data: data}
}

// NewFailure builds a failure response for id.
func NewFailure(id *int64, message string) Response {
	return Response{ID: id, Success: false, Error: message}
}

type successWire struct {
	ID      *int64 `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data"`
}

type failureWire struct {
	ID      *int64 `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON emits either data or error, never both.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Success {
		data := r.Data
		if data == nil {
			data = struct{}{}
		}
		return json.Marshal(successWire{ID: r.ID, Success: true, Data: data})
	}
	return json.Marshal(failureWire{ID: r.ID, Success: false, Error: r.Error})
}

// SerializeResponse renders r as a wire payload.
func SerializeResponse(r Response) ([]byte, error) {
	return json.Marshal(r)
}

// ParsedResponse is a response as seen by a controller.
type ParsedResponse struct {
	ID      *int64          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ParseResponse decodes a response payload.
func ParseResponse(data []byte) (ParsedResponse, error) {
	var resp ParsedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// Status decodes the data of a GET STATUS response.
func (r ParsedResponse) Status() (StatusData, error) {
	var st StatusData
	if !r.Success {
		return st, fmt.Errorf("status request failed: %s", r.Error)
	}
	if err := json.Unmarshal(r.Data, &st); err != nil {
		return st, fmt.Errorf("invalid status data: %w", err)
	}
	return st, nil
}
