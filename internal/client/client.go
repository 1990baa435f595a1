// Package client is a minimal synchronous RESP client used by respkv-cli
// and the server tests.
package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/respkv/respkv/internal/protocol"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("client: closed")

// Client sends one command at a time over a single connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *protocol.Reader
	w      *protocol.Writer
	closed bool
}

// Dial connects to a respkv server.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		r:    protocol.NewReader(conn),
		w:    protocol.NewWriter(conn),
	}
}

// Do sends args as one command and waits for the reply. Error replies are
// returned as values, not Go errors.
func (c *Client) Do(args ...string) (protocol.Value, error) {
	if len(args) == 0 {
		return protocol.Value{}, errors.New("client: empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Value{}, ErrClosed
	}
	if err := c.w.WriteCommand(args...); err != nil {
		return protocol.Value{}, fmt.Errorf("client: write: %w", err)
	}
	v, err := c.r.ReadValue()
	if err != nil {
		return protocol.Value{}, fmt.Errorf("client: read: %w", err)
	}
	return v, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Format renders a reply the way redis-cli does.
func Format(v protocol.Value) string {
	var sb strings.Builder
	format(&sb, v, "")
	return sb.String()
}

func format(sb *strings.Builder, v protocol.Value, indent string) {
	switch v.Type {
	case protocol.TypeSimpleString:
		sb.WriteString(v.Str)
	case protocol.TypeError:
		sb.WriteString("(error) ")
		sb.WriteString(v.Str)
	case protocol.TypeInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(v.Num, 10))
	case protocol.TypeBulkString:
		if v.Null {
			sb.WriteString("(nil)")
			return
		}
		sb.WriteString(strconv.Quote(v.Str))
	case protocol.TypeArray:
		if v.Null {
			sb.WriteString("(nil)")
			return
		}
		if len(v.Array) == 0 {
			sb.WriteString("(empty array)")
			return
		}
		width := len(strconv.Itoa(len(v.Array)))
		for i, item := range v.Array {
			if i > 0 {
				sb.WriteByte('\n')
				sb.WriteString(indent)
			}
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			sb.WriteString(prefix)
			format(sb, item, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		sb.WriteString(fmt.Sprintf("(unknown type %q)", v.Type))
	}
}

// SplitArgs splits a command line into arguments. Single or double quotes
// group words, and the quotes themselves are dropped.
func SplitArgs(line string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == quoteChar:
			inQuote = false
		case inQuote:
			current.WriteByte(c)
		case c == '"' || c == '\'':
			inQuote = true
			quoteChar = c
		case c == ' ' || c == '\t':
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
