package protocol

import (
	"bytes"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Command is one decoded request: the command name followed by its operands.
// It is never empty.
type Command [][]byte

// Name returns the lower-cased command name.
func (c Command) Name() string {
	return strings.ToLower(string(c[0]))
}

// Args returns the operands after the command name.
func (c Command) Args() [][]byte {
	return c[1:]
}

// Decoder turns an accumulating byte stream into Commands. Bytes may arrive
// in arbitrary chunks; a command split across Feed calls stays buffered until
// it is complete. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, defaultBufSize)}
}

// Feed appends newly received bytes.
func (d *Decoder) Feed(p []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes received but not yet decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next decodes the next complete command. It returns ok=false with a nil
// error when only a partial command is buffered. Once a framing error is
// returned the Decoder is poisoned and keeps returning it, since the command
// boundary can no longer be found.
func (d *Decoder) Next() (cmd Command, ok bool, err error) {
	if d.err != nil {
		return nil, false, d.err
	}
	for {
		cmd, n, err := parseCommand(d.buf[d.off:])
		if err != nil {
			d.err = err
			return nil, false, err
		}
		if n == 0 {
			return nil, false, nil
		}
		d.off += n
		if cmd != nil {
			return cmd, true, nil
		}
		// Empty and null arrays carry no command.
	}
}

// Commands yields every complete command currently buffered, then stops.
// A framing error is yielded last.
func (d *Decoder) Commands() iter.Seq2[Command, error] {
	return func(yield func(Command, error) bool) {
		for {
			cmd, ok, err := d.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(cmd, nil) {
				return
			}
		}
	}
}

// parseCommand parses one array of bulk strings from the front of b. It
// returns n == 0 when b holds only a prefix of a command, and a nil Command
// with n > 0 for an empty or null array.
func parseCommand(b []byte) (Command, int, error) {
	if len(b) == 0 {
		return nil, 0, nil
	}
	if b[0] != TypeArray {
		return nil, 0, fmt.Errorf("%w: expected '*', got %q", ErrInvalidProtocol, b[0])
	}
	count, pos, err := parseHeader(b, 1)
	if err != nil || pos == 0 {
		return nil, 0, err
	}
	if count == -1 || count == 0 {
		return nil, pos, nil
	}
	if count < 0 || count > maxArrayLength {
		return nil, 0, fmt.Errorf("%w: bad array length %d", ErrInvalidProtocol, count)
	}

	// Record argument bounds first and copy only once the whole command is
	// present, so partial input is re-scanned cheaply.
	bounds := make([][2]int, 0, min(count, 16))
	for i := int64(0); i < count; i++ {
		if pos >= len(b) {
			return nil, 0, nil
		}
		if b[pos] != TypeBulkString {
			return nil, 0, fmt.Errorf("%w: expected '$', got %q", ErrInvalidProtocol, b[pos])
		}
		length, next, err := parseHeader(b, pos+1)
		if err != nil || next == 0 {
			return nil, 0, err
		}
		if length < 0 || length > maxBulkStringLength {
			return nil, 0, fmt.Errorf("%w: bad bulk string length %d", ErrInvalidProtocol, length)
		}
		end := next + int(length)
		if len(b) < end+2 {
			return nil, 0, nil
		}
		if b[end] != '\r' || b[end+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: bulk string not terminated", ErrInvalidProtocol)
		}
		bounds = append(bounds, [2]int{next, end})
		pos = end + 2
	}

	cmd := make(Command, len(bounds))
	for i, bd := range bounds {
		cmd[i] = bytes.Clone(b[bd[0]:bd[1]])
	}
	return cmd, pos, nil
}

// parseHeader parses the integer line starting at b[start] and returns it
// with the offset just past its CRLF. next == 0 means the line is incomplete.
func parseHeader(b []byte, start int) (n int64, next int, err error) {
	rest := b[start:]
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		if len(rest) > maxLineLength {
			return 0, 0, fmt.Errorf("%w: header line too long", ErrInvalidProtocol)
		}
		return 0, 0, nil
	}
	if idx == 0 || rest[idx-1] != '\r' {
		return 0, 0, fmt.Errorf("%w: header not CRLF terminated", ErrInvalidProtocol)
	}
	n, err = strconv.ParseInt(string(rest[:idx-1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrInvalidProtocol, rest[:idx-1])
	}
	return n, start + idx + 1, nil
}
