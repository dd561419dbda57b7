// Package sse decodes the server-sent-event stream produced by the pipeline
// backend into discrete JSON payloads.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// dataMarker prefixes every payload-carrying line of a frame.
const dataMarker = "data:"

// Decoder reads protocol frames from a byte stream. Frames are separated by a
// blank line and may span chunk boundaries; buffering across reads is handled
// internally. Lines without the data marker are discarded.
type Decoder struct {
	r       *bufio.Reader
	pending [][]byte
	logger  *slog.Logger
}

// NewDecoder wraps r. The logger is used to report skipped malformed frames;
// nil means slog.Default().
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{r: bufio.NewReader(r), logger: logger}
}

// Next returns the next payload document from the stream. It returns io.EOF
// once the stream is exhausted; an unterminated trailing frame is discarded
// without error. A payload that is not valid JSON is logged and skipped, and
// decoding continues with the rest of the stream.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		for len(d.pending) > 0 {
			line := d.pending[0]
			d.pending = d.pending[1:]
			if payload, ok := d.decodeLine(line); ok {
				return payload, nil
			}
		}

		frame, err := d.readFrame()
		if err != nil {
			return nil, err
		}
		d.pending = frame
	}
}

// readFrame collects the data lines of one frame, up to and including the
// blank-line separator. Hitting end-of-stream before the separator discards
// whatever was buffered.
func (d *Decoder) readFrame() ([][]byte, error) {
	var lines [][]byte
	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			return lines, nil
		}
		if rest, ok := bytes.CutPrefix(line, []byte(dataMarker)); ok {
			lines = append(lines, bytes.TrimSpace(rest))
		}
	}
}

// decodeLine parses one payload line and applies the one-level defensive
// unwrap: an early backend version occasionally wrapped an already-encoded
// frame inside a "payload" field, so a nested marker-prefixed document is
// unwrapped exactly once, never recursively.
func (d *Decoder) decodeLine(line []byte) (json.RawMessage, bool) {
	if !json.Valid(line) {
		d.logger.Warn("skipping malformed stream payload", "payload", truncate(line))
		return nil, false
	}

	var envelope struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(line, &envelope); err == nil && strings.HasPrefix(envelope.Payload, dataMarker) {
		inner := strings.TrimSpace(strings.TrimPrefix(envelope.Payload, dataMarker))
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner), true
		}
	}

	return json.RawMessage(line), true
}

func truncate(b []byte) string {
	const max = 120
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
