// Package sse implements the generation event-stream wire protocol.
//
// Each frame is two text lines, an event name and a JSON payload, followed
// by a blank line:
//
//	event: <name>
//	data: <json>
//
// The event names and payload shapes are a fixed external contract.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Encoder writes protocol frames to an HTTP response, flushing after each
// frame. It holds no state beyond the writer: encoding is synchronous and
// buffers at most one event.
type Encoder struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEncoder prepares w for event streaming and returns an encoder over
// it. It fails if the underlying connection cannot be flushed per event.
func NewEncoder(w http.ResponseWriter) (*Encoder, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Encoder{w: w, flusher: flusher}, nil
}

// Event writes a single frame.
func (e *Encoder) Event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

type messageStartPayload struct {
	Type    string `json:"type"`
	Message struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"message"`
}

// MessageStart signals the beginning of an assistant message.
func (e *Encoder) MessageStart(messageID, model string) error {
	var p messageStartPayload
	p.Type = "message_start"
	p.Message.ID = messageID
	p.Message.Model = model
	return e.Event("message_start", p)
}

type contentBlockStartPayload struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content_block"`
}

// ContentBlockStart opens the text content block.
func (e *Encoder) ContentBlockStart() error {
	var p contentBlockStartPayload
	p.Type = "content_block_start"
	p.ContentBlock.Type = "text"
	return e.Event("content_block_start", p)
}

type contentBlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// ContentBlockDelta carries one text fragment.
func (e *Encoder) ContentBlockDelta(text string) error {
	var p contentBlockDeltaPayload
	p.Type = "content_block_delta"
	p.Delta.Type = "text_delta"
	p.Delta.Text = text
	return e.Event("content_block_delta", p)
}

type contentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// ContentBlockStop closes the text content block.
func (e *Encoder) ContentBlockStop() error {
	return e.Event("content_block_stop", contentBlockStopPayload{Type: "content_block_stop"})
}

type messageDeltaPayload struct {
	Type  string `json:"type"`
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// MessageDelta carries the finish reason and output token count.
func (e *Encoder) MessageDelta(stopReason string, outputTokens int) error {
	var p messageDeltaPayload
	p.Type = "message_delta"
	p.Delta.StopReason = stopReason
	p.Usage.OutputTokens = outputTokens
	return e.Event("message_delta", p)
}

type messageStopPayload struct {
	Type string `json:"type"`
}

// MessageStop terminates a successful sequence.
func (e *Encoder) MessageStop() error {
	return e.Event("message_stop", messageStopPayload{Type: "message_stop"})
}

type errorPayload struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Error terminates the sequence with an error event. No further events
// follow it.
func (e *Encoder) Error(errorType, message string) error {
	var p errorPayload
	p.Type = "error"
	p.Error.Type = errorType
	p.Error.Message = message
	return e.Event("error", p)
}
