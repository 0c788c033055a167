package rpc

import "encoding/json"

// FrameType enumerates bridge frame types.
type FrameType string

const (
	TypeRequest  FrameType = "request"
	TypeResponse FrameType = "response"
)

// Frame is the wire envelope for one RPC message. Requests carry method and
// positional params; responses echo the request ID with either a result or an
// error, never both.
type Frame struct {
	Type   FrameType       `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

// FrameError is the error member of a response frame.
type FrameError struct {
	Message string `json:"message"`
}
