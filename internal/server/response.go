package server

import (
	"bytes"
	"io"
	"strconv"
)

// writeResponse serializes a status line, a Content-Length header, a blank
// line and the body, and writes it with a single call.
func writeResponse(w io.Writer, statusLine string, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(statusLine) + len(body) + 32)

	buf.WriteString(statusLine)
	buf.WriteString("\r\nContent-Length: ")
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)

	_, err := w.Write(buf.Bytes())
	return err
}
