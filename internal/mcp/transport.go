package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// defaultCallTimeout bounds every request/response round trip.
const defaultCallTimeout = 30 * time.Second

// scanBufSize sizes the line scanner; tool results can be large.
const scanBufSize = 1024 * 1024

// ErrDisconnected is returned for calls in flight when the transport
// shuts down or the child process exits.
var ErrDisconnected = errors.New("mcp: server disconnected")

// transport frames line-delimited JSON-RPC 2.0 over a byte stream and
// correlates responses to requests by id. It owns the read loop; process
// lifecycle belongs to the Client.
type transport struct {
	logger  *slog.Logger
	timeout time.Duration

	stdin   io.WriteCloser
	writeMu sync.Mutex

	pending   map[int64]chan *rpcResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
}

// newTransport starts the read loop over the given pipes. timeout <= 0
// uses the default.
func newTransport(stdin io.WriteCloser, stdout io.Reader, timeout time.Duration, logger *slog.Logger) *transport {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &transport{
		logger:   logger,
		timeout:  timeout,
		stdin:    stdin,
		pending:  make(map[int64]chan *rpcResponse),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t
}

// call sends a request and blocks until the matching response, the
// timeout, context cancellation, or disconnect.
func (t *transport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-t.closed:
		return nil, ErrDisconnected
	default:
	}

	id := t.nextID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		req.Params = raw
	}

	respCh := make(chan *rpcResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeLine(req); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp == nil {
			return nil, ErrDisconnected
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-time.After(t.timeout):
		return nil, fmt.Errorf("%s: request timeout after %v", method, t.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrDisconnected
	}
}

// notify sends a request with no id; no response is expected.
func (t *transport) notify(method string, params any) error {
	select {
	case <-t.closed:
		return ErrDisconnected
	default:
	}
	n := rpcNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params for %s: %w", method, err)
		}
		n.Params = raw
	}
	return t.writeLine(n)
}

func (t *transport) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// close shuts the transport down and fails every in-flight call with
// ErrDisconnected. Safe to call more than once.
func (t *transport) close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.stdin.Close()
		t.drainPending()
	})
}

// drainPending wakes every waiter; after this the pending table is
// empty.
func (t *transport) drainPending() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(t.pending, id)
	}
}

func (t *transport) pendingCount() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return len(t.pending)
}

func (t *transport) readLoop(stdout io.Reader) {
	defer close(t.readDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scanBufSize), scanBufSize)
	for scanner.Scan() {
		select {
		case <-t.closed:
			return
		default:
		}
		if line := scanner.Text(); line != "" {
			t.dispatch(line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Error("stdout read failed", "error", err)
	}
	// EOF: the child went away.
	t.close()
}

// dispatch routes one incoming line. Responses carry an id; anything
// else is a server notification, which we log and drop.
func (t *transport) dispatch(line string) {
	var resp rpcResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.logger.Warn("discarding unparseable line", "error", err)
		return
	}
	if resp.ID == nil {
		var n rpcNotification
		if json.Unmarshal([]byte(line), &n) == nil && n.Method != "" {
			t.logger.Debug("server notification", "method", n.Method)
		}
		return
	}

	var id int64
	switch v := resp.ID.(type) {
	case float64:
		id = int64(v)
	case int64:
		id = v
	case int:
		id = int64(v)
	default:
		t.logger.Warn("unexpected response id type", "id", resp.ID)
		return
	}

	t.pendingMu.Lock()
	ch, ok := t.pending[id]
	if ok {
		select {
		case ch <- &resp:
		default:
		}
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
	if !ok {
		t.logger.Debug("response for unknown id", "id", id)
	}
}
