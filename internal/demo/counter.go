package demo

import (
	"strconv"

	"github.com/vango-dev/liveview/pkg/component"
)

// Counter is the root demo view. It owns the todo list state so that one
// snapshot carries both; the todos component edits it in place.
type Counter struct {
	Title string
	Count int
	Step  int
	Todos Todos

	// Mounted is set once the mount params have been applied, so a
	// restored session keeps its counter.
	Mounted bool
}

// NewCounter returns a counter with step 1.
func NewCounter() *Counter {
	return &Counter{Title: "Counter", Step: 1}
}

var counterHandlers = component.NewHandlers().
	Handle("increment", component.Method(func(c *Counter, call *component.Call) error {
		c.Count += call.IntOr("by", c.Step)
		return nil
	})).
	Handle("decrement", component.Method(func(c *Counter, call *component.Call) error {
		c.Count -= call.IntOr("by", c.Step)
		return nil
	})).
	Handle("reset", component.Method(func(c *Counter, _ *component.Call) error {
		c.Count = 0
		return nil
	})).
	Build()

func (c *Counter) Template() string { return "counter.html" }

func (c *Counter) Handlers() *component.Handlers { return counterHandlers }

func (c *Counter) RenderContext() map[string]any {
	return map[string]any{
		"Title": c.Title,
		"Count": c.Count,
		"Step":  c.Step,
		"Even":  c.Count%2 == 0,
	}
}

// Mount applies the start, step and title params on first mount and binds
// the todo list.
func (c *Counter) Mount(scope *component.Scope, params map[string]string) error {
	if !c.Mounted {
		if v, ok := params["start"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &component.PayloadError{Key: "start", Want: "int", Err: err}
			}
			c.Count = n
		}
		if v, ok := params["step"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return &component.PayloadError{Key: "step", Want: "positive int", Err: strconv.ErrRange}
			}
			c.Step = n
		}
		if v := params["title"]; v != "" {
			c.Title = v
		}
		c.Mounted = true
	}

	_, err := scope.Bind("todos", &TodoList{todos: &c.Todos})
	return err
}
