package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"glyphos/pkg/protocol"
)

// Wire operations.
const (
	OpRetrieve = "retrieve"
	OpCompose  = "compose"
	OpFeedback = "feedback"
)

// maxLine bounds one request line.
const maxLine = 4 << 20

// Envelope is one request line. ID is echoed back unchanged.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// Reply is one response line.
type Reply struct {
	ID     string     `json:"id,omitempty"`
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *WireError `json:"error,omitempty"`
}

// WireError carries an error kind and message.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Serve reads line-delimited JSON requests from r and writes one reply line
// per request to w, in order. Blank lines are ignored. It returns nil at EOF
// or when ctx is cancelled between requests.
func (s *Service) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := enc.Encode(s.handle(ctx, line)); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

func (s *Service) handle(ctx context.Context, line []byte) Reply {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return failure("", &protocol.InvalidInputError{Field: "request", Reason: err.Error()})
	}

	var (
		result any
		err    error
	)
	switch env.Op {
	case OpRetrieve:
		var req protocol.RetrieveRequest
		if err = decodeParams(env.Params, &req); err == nil {
			result, err = s.Retrieve(ctx, req)
		}
	case OpCompose:
		var req protocol.ComposeRequest
		if err = decodeParams(env.Params, &req); err == nil {
			result, err = s.Compose(ctx, req)
		}
	case OpFeedback:
		var req protocol.FeedbackRequest
		if err = decodeParams(env.Params, &req); err == nil {
			result, err = s.Feedback(ctx, req)
		}
	default:
		err = &protocol.InvalidInputError{Field: "op", Reason: fmt.Sprintf("unknown operation %q", env.Op)}
	}
	if err != nil {
		s.log.Warn("rpc request failed", zap.String("op", env.Op), zap.Error(err))
		return failure(env.ID, err)
	}
	return Reply{ID: env.ID, OK: true, Result: result}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &protocol.InvalidInputError{Field: "params", Reason: "missing"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &protocol.InvalidInputError{Field: "params", Reason: err.Error()}
	}
	return nil
}

func failure(id string, err error) Reply {
	return Reply{ID: id, Error: &WireError{Kind: protocol.ErrorKind(err), Message: err.Error()}}
}
