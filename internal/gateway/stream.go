package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/core"
)

// doneSentinel terminates every stream. The framing must be reproduced
// exactly for client compatibility.
const doneSentinel = "data: [DONE]\n\n"

// streamConverter wraps a native event stream and converts it to
// line-delimited neutral chunks. Implements io.ReadCloser.
type streamConverter struct {
	reader       *bufio.Reader
	body         io.ReadCloser
	model        string
	msgID        string
	created      int64
	buffer       []byte
	sentTerminal bool
	sentDone     bool
	closed       bool
}

// NewStreamConverter returns a reader producing neutral chunks from the
// native stream. The model is echoed into every chunk as requested by
// the client.
func NewStreamConverter(body io.ReadCloser, model string) io.ReadCloser {
	return &streamConverter{
		reader:  bufio.NewReader(body),
		body:    body,
		model:   model,
		msgID:   newResponseID(),
		created: time.Now().Unix(),
		buffer:  make([]byte, 0, 1024),
	}
}

func (sc *streamConverter) Read(p []byte) (n int, err error) {
	if len(sc.buffer) > 0 {
		return sc.drain(p), nil
	}
	if sc.closed {
		return 0, io.EOF
	}

	for {
		line, readErr := sc.reader.ReadBytes('\n')
		// A final line without a trailing newline arrives together
		// with io.EOF and still carries an event.
		if chunk := sc.convertLine(line); chunk != "" {
			sc.buffer = append(sc.buffer, []byte(chunk)...)
		}

		if readErr != nil {
			if readErr == io.EOF {
				sc.buffer = append(sc.buffer, sc.finish()...)
			} else {
				// Partial output may already be out; terminate the
				// stream with an error chunk instead of retrying.
				sc.buffer = append(sc.buffer, sc.errorChunk(readErr)...)
			}
			sc.closed = true
			_ = sc.body.Close() //nolint:errcheck
			return sc.drain(p), nil
		}

		if len(sc.buffer) > 0 {
			return sc.drain(p), nil
		}
	}
}

// convertLine parses one native SSE line and returns the converted
// frame, or "" when the line carries nothing to forward.
func (sc *streamConverter) convertLine(line []byte) string {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
		return ""
	}

	data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	var event bedrock.StreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ""
	}
	return sc.convertEvent(&event)
}

// drain copies buffered output into p.
func (sc *streamConverter) drain(p []byte) int {
	n := copy(p, sc.buffer)
	sc.buffer = sc.buffer[n:]
	return n
}

func (sc *streamConverter) Close() error {
	sc.closed = true
	return sc.body.Close()
}

// finish emits whatever closing frames are still owed: the terminal
// chunk and the sentinel.
func (sc *streamConverter) finish() []byte {
	var out []byte
	if !sc.sentTerminal {
		out = append(out, []byte(sc.terminalChunk(FinishStop))...)
		sc.sentTerminal = true
	}
	if !sc.sentDone {
		out = append(out, []byte(doneSentinel)...)
		sc.sentDone = true
	}
	return out
}

func (sc *streamConverter) convertEvent(event *bedrock.StreamEvent) string {
	switch event.Type {
	case "message_start":
		if event.Message != nil && event.Message.ID != "" {
			sc.msgID = event.Message.ID
		}
		return ""

	case "content_block_delta":
		if event.Delta == nil || event.Delta.Text == "" {
			return ""
		}
		return sc.frame(core.ChunkChoice{
			Index:        0,
			Delta:        core.ChunkDelta{Content: event.Delta.Text},
			FinishReason: nil,
		})

	case "message_delta":
		if event.Delta == nil || event.Delta.StopReason == "" || sc.sentTerminal {
			return ""
		}
		sc.sentTerminal = true
		return sc.terminalChunk(MapStopReason(event.Delta.StopReason))

	default:
		return ""
	}
}

func (sc *streamConverter) terminalChunk(finishReason string) string {
	return sc.frame(core.ChunkChoice{
		Index:        0,
		Delta:        core.ChunkDelta{},
		FinishReason: &finishReason,
	})
}

func (sc *streamConverter) frame(choice core.ChunkChoice) string {
	chunk := core.ChunkResponse{
		ID:      sc.msgID,
		Object:  "chat.completion.chunk",
		Model:   sc.model,
		Created: sc.created,
		Choices: []core.ChunkChoice{choice},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("data: %s\n\n", data)
}

// errorChunk frames a mid-stream failure and closes out the stream.
func (sc *streamConverter) errorChunk(err error) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"type":    core.ErrorKindAPI,
			"message": "stream interrupted: " + err.Error(),
		},
	})
	out := []byte(fmt.Sprintf("data: %s\n\n", payload))
	sc.sentTerminal = true
	if !sc.sentDone {
		out = append(out, []byte(doneSentinel)...)
		sc.sentDone = true
	}
	return out
}
