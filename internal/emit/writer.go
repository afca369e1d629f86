// Package emit accumulates the statements produced by one compile pass and
// hands out identifiers that are unique within that pass.
package emit

import (
	"fmt"
	"strings"
)

// DefaultSeparator joins emitted statements in Build.
const DefaultSeparator = "\n"

// Emitter is the view of a Writer that node behaviors receive.
type Emitter interface {
	NewIdentifier(prefix string) string
	Emit(line string)
	Emitf(format string, args ...any)
}

// Option configures a Writer.
type Option func(*Writer)

// WithSeparator overrides the statement separator used by Build.
func WithSeparator(sep string) Option {
	return func(w *Writer) { w.sep = sep }
}

// Writer is the per-pass emitter. It is not safe for concurrent use; every
// compile pass owns exactly one Writer.
type Writer struct {
	counters map[string]int
	lines    []string
	sep      string
}

// NewWriter creates an empty Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		counters: make(map[string]int),
		sep:      DefaultSeparator,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewIdentifier returns prefix followed by the next counter value for that prefix.
// Identifiers are never reused within the pass.
func (w *Writer) NewIdentifier(prefix string) string {
	n := w.counters[prefix]
	w.counters[prefix] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// Emit appends one statement. Call order is preserved exactly.
func (w *Writer) Emit(line string) {
	w.lines = append(w.lines, line)
}

// Emitf appends one formatted statement.
func (w *Writer) Emitf(format string, args ...any) {
	w.Emit(fmt.Sprintf(format, args...))
}

// Len returns the number of emitted statements.
func (w *Writer) Len() int {
	return len(w.lines)
}

// Lines returns a copy of the emitted statements.
func (w *Writer) Lines() []string {
	return append([]string(nil), w.lines...)
}

// Build joins the emitted statements with the separator. It has no side
// effects, so repeated calls return the same text.
func (w *Writer) Build() string {
	return strings.Join(w.lines, w.sep)
}
