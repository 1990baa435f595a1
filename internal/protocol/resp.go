// Package protocol implements the RESP (Redis Serialization Protocol) codec
// used by respkv: a buffering command decoder, a pure reply encoder, and the
// client-side Reader/Writer pair.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrInvalidProtocol indicates malformed RESP data
	ErrInvalidProtocol = errors.New("protocol: invalid RESP format")
)

// Value represents a RESP value. Handlers return Values and the codec alone
// turns them into bytes.
type Value struct {
	Type  byte
	Str   string
	Num   int64
	Array []Value
	Null  bool
}

// RESP type constants
const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

const (
	maxBulkStringLength = 512 * 1024 * 1024 // 512 MiB
	maxArrayLength      = 1_000_000
	maxLineLength       = 64 * 1024
	defaultBufSize      = 64 * 1024 // 64 KiB read/write buffers
)

var (
	crlfBytes = []byte("\r\n")
	nullBytes = []byte("$-1\r\n")
	okBytes   = []byte("+OK\r\n")
)

// OK returns the +OK status reply.
func OK() Value { return Value{Type: TypeSimpleString, Str: "OK"} }

// Status returns a simple string reply.
func Status(s string) Value { return Value{Type: TypeSimpleString, Str: s} }

// Integer returns an integer reply.
func Integer(n int64) Value { return Value{Type: TypeInteger, Num: n} }

// Bool returns :1 for true and :0 for false.
func Bool(b bool) Value {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

// Bulk returns a bulk string reply.
func Bulk(b []byte) Value { return Value{Type: TypeBulkString, Str: string(b)} }

// NullBulk returns the $-1 reply.
func NullBulk() Value { return Value{Type: TypeBulkString, Null: true} }

// Error returns an error reply. msg is sent verbatim after the '-' prefix,
// so it should carry its own error code ("ERR ...", "WRONGTYPE ...").
func Error(msg string) Value { return Value{Type: TypeError, Str: msg} }

// Errorf formats an ERR-prefixed error reply.
func Errorf(format string, args ...interface{}) Value {
	return Error("ERR " + fmt.Sprintf(format, args...))
}

// BulkArray returns an array of bulk strings.
func BulkArray(items [][]byte) Value {
	arr := make([]Value, len(items))
	for i, item := range items {
		arr[i] = Bulk(item)
	}
	return Value{Type: TypeArray, Array: arr}
}

// StringArray returns an array of bulk strings built from strings.
func StringArray(items []string) Value {
	arr := make([]Value, len(items))
	for i, item := range items {
		arr[i] = Value{Type: TypeBulkString, Str: item}
	}
	return Value{Type: TypeArray, Array: arr}
}

// appendLine appends s with CR and LF replaced by spaces, so a status or
// error line always ends at its own terminator.
func appendLine(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\r', '\n':
			dst = append(dst, ' ')
		default:
			dst = append(dst, c)
		}
	}
	return dst
}

// Encode returns the wire form of v.
func Encode(v Value) []byte {
	return AppendValue(nil, v)
}

// AppendValue appends the wire form of v to dst and returns the extended slice.
func AppendValue(dst []byte, v Value) []byte {
	switch v.Type {
	case TypeSimpleString:
		if v.Str == "OK" {
			return append(dst, okBytes...)
		}
		dst = append(dst, TypeSimpleString)
		dst = appendLine(dst, v.Str)
		return append(dst, crlfBytes...)
	case TypeError:
		dst = append(dst, TypeError)
		dst = appendLine(dst, v.Str)
		return append(dst, crlfBytes...)
	case TypeInteger:
		return appendTypedInt(dst, TypeInteger, v.Num)
	case TypeBulkString:
		if v.Null {
			return append(dst, nullBytes...)
		}
		dst = appendTypedInt(dst, TypeBulkString, int64(len(v.Str)))
		dst = append(dst, v.Str...)
		return append(dst, crlfBytes...)
	case TypeArray:
		if v.Null {
			return append(dst, "*-1\r\n"...)
		}
		dst = appendTypedInt(dst, TypeArray, int64(len(v.Array)))
		for _, item := range v.Array {
			dst = AppendValue(dst, item)
		}
		return dst
	default:
		// Unknown type bytes never come from the dispatcher; encode as an
		// error so the client still gets exactly one reply.
		dst = append(dst, "-ERR internal encoding error"...)
		return append(dst, crlfBytes...)
	}
}

func appendTypedInt(dst []byte, prefix byte, n int64) []byte {
	dst = append(dst, prefix)
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, crlfBytes...)
}

// Reader wraps a bufio.Reader for RESP parsing. It reads replies on the
// client side of a connection.
type Reader struct {
	rd *bufio.Reader
}

// NewReader creates a new RESP Reader with an optimised buffer.
func NewReader(r io.Reader) *Reader {
	return &Reader{rd: bufio.NewReaderSize(r, defaultBufSize)}
}

// ReadValue reads a single RESP value from the reader
func (r *Reader) ReadValue() (Value, error) {
	typeByte, err := r.rd.ReadByte()
	if err != nil {
		return Value{}, err
	}

	switch typeByte {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: typeByte, Str: line}, nil
	case TypeInteger:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		num, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer", ErrInvalidProtocol)
		}
		return Integer(num), nil
	case TypeBulkString:
		return r.readBulkString()
	case TypeArray:
		return r.readArray()
	default:
		return Value{}, fmt.Errorf("%w: unknown type %q", ErrInvalidProtocol, typeByte)
	}
}

// readLine reads a line until \r\n
func (r *Reader) readLine() (string, error) {
	line, err := r.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", ErrInvalidProtocol
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readBulkString() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}
	length, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid bulk string length", ErrInvalidProtocol)
	}
	if length == -1 {
		return NullBulk(), nil
	}
	if length < 0 || length > maxBulkStringLength {
		return Value{}, fmt.Errorf("%w: bad bulk string length %d", ErrInvalidProtocol, length)
	}

	data := make([]byte, length+2)
	if _, err := io.ReadFull(r.rd, data); err != nil {
		return Value{}, err
	}
	if data[length] != '\r' || data[length+1] != '\n' {
		return Value{}, ErrInvalidProtocol
	}
	return Value{Type: TypeBulkString, Str: string(data[:length])}, nil
}

func (r *Reader) readArray() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}
	count, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid array length", ErrInvalidProtocol)
	}
	if count == -1 {
		return Value{Type: TypeArray, Null: true}, nil
	}
	if count < 0 || count > maxArrayLength {
		return Value{}, fmt.Errorf("%w: bad array length %d", ErrInvalidProtocol, count)
	}

	array := make([]Value, count)
	for i := range array {
		val, err := r.ReadValue()
		if err != nil {
			return Value{}, err
		}
		array[i] = val
	}
	return Value{Type: TypeArray, Array: array}, nil
}

// Writer wraps a bufio.Writer for RESP encoding.
// By default every Write* call flushes immediately (autoFlush=true).
// Call SetAutoFlush(false) before a pipeline batch, then Flush()
// once at the end, to amortise syscalls across many responses.
type Writer struct {
	wr        *bufio.Writer
	autoFlush bool
	scratch   []byte
}

// NewWriter creates a new RESP Writer with an optimised buffer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{wr: bufio.NewWriterSize(w, defaultBufSize), autoFlush: true}
}

// SetAutoFlush controls whether each Write* call flushes automatically.
func (w *Writer) SetAutoFlush(on bool) { w.autoFlush = on }

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error { return w.wr.Flush() }

func (w *Writer) flush() error {
	if w.autoFlush {
		return w.wr.Flush()
	}
	return nil
}

// WriteValue encodes v.
func (w *Writer) WriteValue(v Value) error {
	w.scratch = AppendValue(w.scratch[:0], v)
	if _, err := w.wr.Write(w.scratch); err != nil {
		return err
	}
	return w.flush()
}

// WriteCommand writes args as an array of bulk strings, the request form
// clients send.
func (w *Writer) WriteCommand(args ...string) error {
	w.scratch = appendTypedInt(w.scratch[:0], TypeArray, int64(len(args)))
	for _, arg := range args {
		w.scratch = appendTypedInt(w.scratch, TypeBulkString, int64(len(arg)))
		w.scratch = append(w.scratch, arg...)
		w.scratch = append(w.scratch, crlfBytes...)
	}
	if _, err := w.wr.Write(w.scratch); err != nil {
		return err
	}
	return w.flush()
}
