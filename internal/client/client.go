// Package client is a line-oriented terminal client for a room's chat
// socket.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// ErrRejected is returned when the room refuses the connection.
var ErrRejected = errors.New("connection rejected")

// Options configures a chat session.
type Options struct {
	// URL is the server's base address, http(s):// or ws(s)://.
	URL    string
	Name   string
	Secret string
	Logger *slog.Logger
}

// ChatURL builds the socket address for name and secret from a server
// base URL.
func ChatURL(base, name, secret string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("name", name)
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run joins the room and relays until the server closes the socket, in
// reaches EOF, or ctx ends. Each line read from in is sent as one
// message; every frame received is written to out on its own line. A
// refusal is reported as an error wrapping ErrRejected.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	target, err := ChatURL(opts.URL, opts.Name, opts.Secret)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.CloseNow()
	logger.Debug("connected", "url", opts.URL, "name", opts.Name)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					err = nil
				} else {
					err = closeError(err)
				}
				readErr <- err
				return
			}
			fmt.Fprintln(out, string(data))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case err := <-readErr:
			return err
		case line, ok := <-lines:
			if !ok {
				logger.Debug("input closed, leaving")
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return nil
		}
	}
}

// closeError maps how the read side ended to Run's result.
func closeError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil
		case websocket.StatusPolicyViolation:
			return fmt.Errorf("%w: %s", ErrRejected, ce.Reason)
		}
		return fmt.Errorf("server closed the connection: %d %s", ce.Code, ce.Reason)
	}
	return fmt.Errorf("receive: %w", err)
}
