package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/1broseidon/windowsync/internal/runtimepath"
	"github.com/1broseidon/windowsync/internal/store"
)

// Client talks to the daemon. It implements store.Store, so a window can use
// the daemon as its shared store; every Client is its own origin.
type Client struct {
	socketPath string
	timeout    time.Duration
	origin     string
}

var _ store.Store = (*Client)(nil)

// NewClient creates a new IPC client. An empty socketPath uses the default
// runtime socket.
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		path, err := runtimepath.SocketPath()
		if err == nil {
			socketPath = path
		}
		// Keep constructor non-failing; sendRequest surfaces connection errors.
	}

	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
		origin:     uuid.NewString(),
	}
}

func (c *Client) Origin() string { return c.origin }

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, command CommandType, payload interface{}) error {
	req := &Request{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		req.Payload = data
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func readResponse(reader *bufio.Reader) (*Response, error) {
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(ctx context.Context, command CommandType, payload interface{}) (*Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := writeRequest(conn, command, payload); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(conn))
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := c.sendRequest(ctx, CommandGet, GetPayload{Key: key})
	if err != nil {
		return "", false, err
	}

	var data GetData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", false, fmt.Errorf("failed to parse get data: %w", err)
	}
	return data.Value, data.Present, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.sendRequest(ctx, CommandSet, SetPayload{Key: key, Value: value, Origin: c.origin})
	return err
}

func (c *Client) Clear(ctx context.Context) error {
	_, err := c.sendRequest(ctx, CommandClear, ClearPayload{Origin: c.origin})
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus(ctx context.Context) (*StatusData, error) {
	resp, err := c.sendRequest(ctx, CommandGetStatus, nil)
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}

// Watch opens a change stream for key. The first connection must succeed;
// if it later drops, the client redials with exponential backoff and, once
// reconnected, delivers the key's current value so a reader that missed
// changes while disconnected still converges.
func (c *Client) Watch(ctx context.Context, key string) (<-chan store.Change, error) {
	conn, reader, err := c.openWatch(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make(chan store.Change, 1)
	go c.watchLoop(ctx, key, conn, reader, out)
	return out, nil
}

func (c *Client) openWatch(ctx context.Context, key string) (net.Conn, *bufio.Reader, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	conn.SetDeadline(time.Now().Add(c.timeout))
	if err := writeRequest(conn, CommandWatch, WatchPayload{Key: key, Origin: c.origin}); err != nil {
		conn.Close()
		return nil, nil, err
	}
	reader := bufio.NewReader(conn)
	if _, err := readResponse(reader); err != nil {
		conn.Close()
		return nil, nil, err
	}
	conn.SetDeadline(time.Time{})
	return conn, reader, nil
}

func (c *Client) watchLoop(ctx context.Context, key string, conn net.Conn, reader *bufio.Reader, out chan store.Change) {
	defer close(out)

	for {
		streamChanges(ctx, conn, reader, out)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		err := backoff.Retry(func() error {
			var err error
			conn, reader, err = c.openWatch(ctx, key)
			return err
		}, backoff.WithContext(b, ctx))
		if err != nil {
			return
		}

		if value, ok, err := c.Get(ctx, key); err == nil {
			store.Deliver(out, store.Change{Key: key, Value: value, Present: ok})
		}
	}
}

// streamChanges forwards decoded lines until the connection fails or ctx
// ends.
func streamChanges(ctx context.Context, conn net.Conn, reader *bufio.Reader, out chan store.Change) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var change store.Change
		if err := json.Unmarshal(line, &change); err != nil {
			continue
		}
		store.Deliver(out, change)
	}
}
