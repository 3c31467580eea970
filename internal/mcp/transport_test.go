package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// pipeTransport wires a transport to an in-memory peer. The returned
// reader carries client requests, the writer feeds server output.
func pipeTransport(t *testing.T, timeout time.Duration) (*transport, *bufio.Scanner, io.Writer) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tr := newTransport(stdinW, stdoutR, timeout, nil)
	t.Cleanup(tr.close)

	scanner := bufio.NewScanner(stdinR)
	scanner.Buffer(make([]byte, scanBufSize), scanBufSize)
	return tr, scanner, stdoutW
}

func readRequest(t *testing.T, scanner *bufio.Scanner) rpcRequest {
	t.Helper()
	var req rpcRequest
	if !scanner.Scan() {
		t.Error("no request received")
		return req
	}
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		t.Errorf("parse request: %v (%s)", err, scanner.Text())
	}
	return req
}

func writeResponse(t *testing.T, w io.Writer, id int64, result string) {
	t.Helper()
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`+"\n", id, result)
}

func TestCallRoundTrip(t *testing.T) {
	tr, requests, out := pipeTransport(t, 0)

	go func() {
		req := readRequest(t, requests)
		writeResponse(t, out, req.ID, `{"ok":true}`)
	}()

	result, err := tr.call(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("result = %s", result)
	}
}

func TestCallCorrelatesOutOfOrderResponses(t *testing.T) {
	tr, requests, out := pipeTransport(t, 0)

	// Hold both requests, then answer them in reverse order.
	go func() {
		first := readRequest(t, requests)
		second := readRequest(t, requests)
		writeResponse(t, out, second.ID, `"second"`)
		writeResponse(t, out, first.ID, `"first"`)
	}()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, method := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(i int, method string) {
			defer wg.Done()
			raw, err := tr.call(context.Background(), method, nil)
			if err != nil {
				t.Errorf("%s: %v", method, err)
				return
			}
			results[i] = string(raw)
		}(i, method)
		// Keep send order deterministic so the peer can pair id to method.
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	if results[0] != `"first"` || results[1] != `"second"` {
		t.Fatalf("responses misrouted: %v", results)
	}
}

func TestCallTimeoutLeavesNoPendingEntry(t *testing.T) {
	tr, requests, _ := pipeTransport(t, 50*time.Millisecond)

	go readRequest(t, requests) // swallow the request, never answer

	_, err := tr.call(context.Background(), "slow", nil)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if n := tr.pendingCount(); n != 0 {
		t.Fatalf("pending table has %d entries after timeout", n)
	}
}

func TestCallErrorResponse(t *testing.T) {
	tr, requests, out := pipeTransport(t, 0)

	go func() {
		req := readRequest(t, requests)
		fmt.Fprintf(out, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`+"\n", req.ID)
	}()

	_, err := tr.call(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Fatalf("expected server error, got %v", err)
	}
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("error not an rpcError with code: %v", err)
	}
}

func TestCloseFailsInFlightCalls(t *testing.T) {
	tr, requests, _ := pipeTransport(t, 0)

	go func() {
		readRequest(t, requests)
		tr.close()
	}()

	_, err := tr.call(context.Background(), "doomed", nil)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if n := tr.pendingCount(); n != 0 {
		t.Fatalf("pending table has %d entries after close", n)
	}

	// Subsequent calls fail immediately.
	if _, err := tr.call(context.Background(), "after", nil); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected after close, got %v", err)
	}
}

func TestPeerEOFDisconnects(t *testing.T) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tr := newTransport(stdinW, stdoutR, 0, nil)
	defer tr.close()

	go io.Copy(io.Discard, stdinR)
	stdoutW.Close() // peer goes away

	deadline := time.After(time.Second)
	select {
	case <-tr.closed:
	case <-deadline:
		t.Fatal("transport did not close on peer EOF")
	}
}

func TestNotificationLinesAreIgnored(t *testing.T) {
	tr, requests, out := pipeTransport(t, 0)

	go func() {
		req := readRequest(t, requests)
		fmt.Fprintln(out, `{"jsonrpc":"2.0","method":"notifications/progress","params":{"token":1}}`)
		fmt.Fprintln(out, `not even json`)
		writeResponse(t, out, req.ID, `"done"`)
	}()

	result, err := tr.call(context.Background(), "work", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(result) != `"done"` {
		t.Fatalf("result = %s", result)
	}
}
