// Package server exposes the per-connection request handler: it reads one
// request line, picks a canned response and writes it back.
package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	lingerTimeout  = 100 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// Handler answers exactly one request per connection.
type Handler struct {
	staticDir    string
	slowDelay    time.Duration
	maxLineBytes int
}

// NewHandler creates a Handler that reads response files from
// cfg.StaticDir and delays the slow route by cfg.SlowDelay.
func NewHandler(cfg Config) *Handler {
	maxLine := cfg.MaxLineBytes
	if maxLine < minMaxLineBytes {
		maxLine = defaultMaxLineBytes
	}
	return &Handler{
		staticDir:    cfg.StaticDir,
		slowDelay:    cfg.SlowDelay,
		maxLineBytes: maxLine,
	}
}

// ServeConn handles a single connection and always closes it before
// returning, whatever the outcome. Errors describe what went wrong for this
// connection only.
func (h *Handler) ServeConn(conn net.Conn) (err error) {
	responded := false
	defer func() {
		var cerr error
		if responded {
			cerr = lingeringClose(conn)
		} else {
			cerr = conn.Close()
		}
		if err == nil && !isExpectedCloseError(cerr) {
			err = fmt.Errorf("close connection: %w", cerr)
		}
	}()

	line, err := readRequestLine(conn, h.maxLineBytes)
	if err != nil {
		return fmt.Errorf("read request line: %w", err)
	}

	r := matchRoute(line)
	if r.slow {
		time.Sleep(h.slowDelay)
	}

	body, err := os.ReadFile(filepath.Join(h.staticDir, r.file))
	if err != nil {
		return fmt.Errorf("read response file: %w", err)
	}

	if err := writeResponse(conn, r.status, body); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	responded = true
	return nil
}

// lingeringClose half-closes the connection and briefly drains unread input,
// so request bytes left behind do not turn the close into an RST.
func lingeringClose(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err == nil {
			_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(conn, maxLingerBytes))
		}
	}
	return conn.Close()
}

// readRequestLine returns the first line sent by the peer without its line
// terminator. A final line cut off by EOF is returned as is.
func readRequestLine(r io.Reader, maxBytes int) (string, error) {
	br := bufio.NewReaderSize(r, maxBytes)

	line, err := br.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF):
		if len(line) == 0 {
			return "", ErrEmptyRequest
		}
	default:
		return "", err
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), nil
}
