package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType is the "type" field of a frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method names a request.
type Method string

const (
	// MethodSubscribe limits the event stream to the sessions named so far.
	MethodSubscribe Method = "subscribe"
	// MethodRun starts a run; its events stream while it executes and the
	// report arrives as the response.
	MethodRun Method = "run"
)

// EventRunAccepted is sent when a run frame has been given a session.
const EventRunAccepted = "run.accepted"

// ErrNotRequest is returned by DecodeRequest for frames a client must not send.
var ErrNotRequest = errors.New("not a request frame")

// Frame is the envelope of every message in both directions. Clients send
// requests; the gateway answers with responses and streams events.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// DecodeRequest parses a client frame. Only requests carrying an id and a
// method are accepted.
func DecodeRequest(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type != FrameTypeRequest {
		return f, fmt.Errorf("%w: %q", ErrNotRequest, f.Type)
	}
	if f.ID == "" || f.Method == "" {
		return f, fmt.Errorf("%w: id and method are required", ErrNotRequest)
	}
	return f, nil
}

// Bind decodes the request params into v. Missing params are an error.
func (f Frame) Bind(v any) error {
	if len(f.Params) == 0 {
		return errors.New("missing params")
	}
	return json.Unmarshal(f.Params, v)
}

// EncodeEvent returns the wire form of an event frame.
func EncodeEvent(event, sessionID string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{
		Type:      FrameTypeEvent,
		Event:     event,
		SessionID: sessionID,
		Payload:   data,
	})
}

// EncodeResponse returns the wire form of the answer to request id. A non-nil
// failure sets ok=false and the error text; payload is sent either way.
func EncodeResponse(id string, payload any, failure error) ([]byte, error) {
	ok := failure == nil
	f := Frame{Type: FrameTypeResponse, ID: id, OK: &ok}
	if failure != nil {
		f.Error = failure.Error()
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode response %s: %w", id, err)
		}
		f.Payload = data
	}
	return json.Marshal(f)
}
