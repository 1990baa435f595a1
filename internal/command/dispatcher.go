// Package command maps decoded RESP commands onto store operations.
//
// The command table is closed: it is built and validated once, when the
// Dispatcher is constructed, and every name outside it falls through to a
// single "unknown command" reply.
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/respkv/respkv/internal/hotkeys"
	"github.com/respkv/respkv/internal/metrics"
	"github.com/respkv/respkv/internal/protocol"
	"github.com/respkv/respkv/internal/store"
)

// ErrInvalidTable is returned by New when the command table is malformed.
var ErrInvalidTable = errors.New("command: invalid command table")

// handlerFunc executes one command. args excludes the command name and has
// already passed the arity check. A handler makes at most one store call.
type handlerFunc func(st *store.Store, args [][]byte) protocol.Value

// spec describes one entry of the command table.
type spec struct {
	name string
	// arity counts the command name. Positive means exactly that many
	// arguments, negative means at least -arity.
	arity int
	// keyed commands take the key as their first argument.
	keyed   bool
	handler handlerFunc
}

func (c spec) acceptsArgs(n int) bool {
	if c.arity < 0 {
		return n >= -c.arity
	}
	return n == c.arity
}

// Dispatcher executes decoded commands against a Store.
// It is safe for concurrent use; serialization happens inside the Store.
type Dispatcher struct {
	store    *store.Store
	commands map[string]spec
	metrics  *metrics.Metrics
	logger   *zap.Logger
	hotkeys  *hotkeys.Tracker

	processed atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHotKeys records the key of every accepted keyed command in t.
func WithHotKeys(t *hotkeys.Tracker) Option {
	return func(d *Dispatcher) { d.hotkeys = t }
}

// New builds the command table and validates it. m may be nil to disable
// metrics.
func New(st *store.Store, m *metrics.Metrics, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidTable)
	}
	table, err := buildTable(commandTable())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		store:    st,
		commands: table,
		metrics:  m,
		logger:   logger.Named("command"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func buildTable(specs []spec) (map[string]spec, error) {
	table := make(map[string]spec, len(specs))
	for _, c := range specs {
		switch {
		case c.name == "" || c.name != strings.ToLower(c.name):
			return nil, fmt.Errorf("%w: name %q must be non-empty lower case", ErrInvalidTable, c.name)
		case c.arity == 0:
			return nil, fmt.Errorf("%w: %q has zero arity", ErrInvalidTable, c.name)
		case c.handler == nil:
			return nil, fmt.Errorf("%w: %q has no handler", ErrInvalidTable, c.name)
		case c.keyed && (c.arity == 1 || c.arity == -1):
			return nil, fmt.Errorf("%w: keyed command %q accepts no key", ErrInvalidTable, c.name)
		}
		if _, dup := table[c.name]; dup {
			return nil, fmt.Errorf("%w: duplicate command %q", ErrInvalidTable, c.name)
		}
		table[c.name] = c
	}
	return table, nil
}

// Commands returns the names in the command table, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs cmd and returns exactly one reply. Validation failures
// produce an error reply and leave the store untouched.
func (d *Dispatcher) Execute(cmd protocol.Command) protocol.Value {
	if len(cmd) == 0 {
		return protocol.Errorf("empty command")
	}
	d.processed.Add(1)
	name := cmd.Name()

	c, ok := d.commands[name]
	if !ok {
		d.count(metrics.UnknownCommand, 0)
		d.logger.Debug("unknown command", zap.String("command", name))
		return protocol.Errorf("unknown command '%s'", name)
	}
	if !c.acceptsArgs(len(cmd)) {
		d.count(name, 0)
		return protocol.Errorf("wrong number of arguments for '%s' command", name)
	}

	if c.keyed && d.hotkeys != nil {
		d.hotkeys.Record(string(cmd[1]))
	}

	start := time.Now()
	result := c.handler(d.store, cmd.Args())
	d.count(name, time.Since(start))
	return result
}

// Processed returns the number of commands executed, including rejected ones.
func (d *Dispatcher) Processed() int64 {
	return d.processed.Load()
}

func (d *Dispatcher) count(name string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.Commands.WithLabelValues(name).Inc()
	if elapsed > 0 {
		d.metrics.CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}
