package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// stdioPeerID is the constant peer identity used on a stdio transport,
// which always connects exactly two processes to each other.
const stdioPeerID = "stdio"

// Stdio is a newline-delimited JSON transport over an io.Reader/io.Writer
// pair, the framing SPEC_FULL.md §6 specifies for the stdio wire
// protocol. It generalizes connection.go's Connection.receive() scanner
// loop, dropping the RPC-layer concerns (pending table, handler
// dispatch) that now live in the coordinator.
type Stdio struct {
	w io.Writer
	r io.Reader

	writeMu sync.Mutex
	msgs    chan PeerMessage

	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// NewStdio starts reading newline-delimited JSON messages from r and
// writes outbound payloads to w, each followed by a trailing newline.
func NewStdio(w io.Writer, r io.Reader, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stdio{
		w:      w,
		r:      r,
		msgs:   make(chan PeerMessage, 16),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	go s.receive()
	return s
}

func (s *Stdio) receive() {
	const (
		initialBufSize = 1024 * 1024
		maxBufSize     = 10 * 1024 * 1024
	)
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, initialBufSize), maxBufSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		payload := make([]byte, len(line))
		copy(payload, line)
		select {
		case s.msgs <- PeerMessage{PeerID: stdioPeerID, Payload: payload}:
		case <-s.ctx.Done():
			return
		}
	}
	s.cancel()
	close(s.msgs)
}

func (s *Stdio) Send(ctx context.Context, peerID string, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.ctx.Done():
		return errors.New("stdio transport closed")
	default:
	}
	payload = append(append([]byte{}, payload...), '\n')
	_, err := s.w.Write(payload)
	return err
}

func (s *Stdio) Messages() <-chan PeerMessage { return s.msgs }

func (s *Stdio) Close() error {
	s.cancel()
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Stdio) Done() <-chan struct{} { return s.ctx.Done() }
