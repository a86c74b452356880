// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// ChunkFunc receives the text accumulated so far after each streamed fragment.
type ChunkFunc func(accumulated string)

// StreamReader decodes a newline-delimited JSON chat stream.
// Records split across network reads are reassembled by the buffered reader.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	fragments   int
	model       string
	done        bool
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads records until a done record or the end of the stream,
// calling onChunk synchronously after every non-final record. It returns the
// accumulated text, which is always the last value passed to onChunk. The first malformed line, error record or read failure
// aborts the whole stream.
func (s *StreamReader) Process(ctx context.Context, onChunk ChunkFunc) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.accumulator.String(), contextError(err)
		}

		rec, err := s.next()
		if err != nil {
			if err == io.EOF {
				return s.accumulator.String(), nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.accumulator.String(), contextError(ctxErr)
			}
			return s.accumulator.String(), err
		}
		if rec == nil {
			continue
		}

		if rec.Error != "" {
			return s.accumulator.String(), &ClientError{Type: ErrTypeRequestFailed, Message: rec.Error}
		}

		// The done record closes the stream; any content it carries is not
		// part of the reply.
		if rec.Done {
			s.done = true
			return s.accumulator.String(), nil
		}
		s.accumulator.WriteString(rec.content())

		s.fragments++
		if onChunk != nil {
			onChunk(s.accumulator.String())
		}
	}
}

// next reads one line and decodes it. A nil record with a nil error means the
// line was blank.
func (s *StreamReader) next() (*streamRecord, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, nil
	}

	var rec streamRecord
	if jerr := json.Unmarshal(line, &rec); jerr != nil {
		return nil, &ClientError{Type: ErrTypeStreamDecode, Message: "malformed stream record", Cause: jerr}
	}
	if rec.Model != "" {
		s.model = rec.Model
	}
	return &rec, nil
}

// Accumulated returns all text decoded so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// Fragments returns the number of non-final records decoded.
func (s *StreamReader) Fragments() int {
	return s.fragments
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}

// Done reports whether a done record was seen.
func (s *StreamReader) Done() bool {
	return s.done
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
}
