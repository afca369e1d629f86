package expressions

import (
	"sync"

	"github.com/rendis/blueprint/pkg/schema"
)

// programCache memoizes compiled expressions by source text. Compile errors
// are not cached.
type programCache[P any] struct {
	compile func(expression string) (P, error)

	mu    sync.RWMutex
	progs map[string]P
}

func newProgramCache[P any](compile func(string) (P, error)) *programCache[P] {
	return &programCache[P]{compile: compile, progs: make(map[string]P)}
}

func (c *programCache[P]) get(expression string) (P, error) {
	c.mu.RLock()
	p, ok := c.progs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.progs[expression]; ok {
		return p, nil
	}
	p, err := c.compile(expression)
	if err != nil {
		return p, err
	}
	c.progs[expression] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.progs)
}

// exprError builds a coded error carrying the offending expression.
func exprError(code, stage, lang, expression string, cause error) *schema.BlueprintError {
	return schema.NewErrorf(code, "%s %s error in %q: %s", lang, stage, expression, cause.Error()).
		WithCause(cause).
		WithDetails(map[string]any{"expression": expression})
}
