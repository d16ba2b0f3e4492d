package demo

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vango-dev/liveview/pkg/component"
)

// MaxTodos bounds the list.
const MaxTodos = 100

// Todo is one list item. ID is stable and used as the element key.
type Todo struct {
	ID    int
	Title string
	Done  bool
}

// Todos is the persisted list state.
type Todos struct {
	Items  []Todo
	NextID int
}

var (
	errEmptyTitle = errors.New("demo: empty title")
	errListFull   = fmt.Errorf("demo: list holds at most %d items", MaxTodos)
)

func (t *Todos) add(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errEmptyTitle
	}
	if len(t.Items) >= MaxTodos {
		return errListFull
	}
	t.NextID++
	t.Items = append(t.Items, Todo{ID: t.NextID, Title: title})
	return nil
}

func (t *Todos) index(id int) (int, error) {
	i := slices.IndexFunc(t.Items, func(item Todo) bool { return item.ID == id })
	if i < 0 {
		return -1, fmt.Errorf("demo: no todo %d", id)
	}
	return i, nil
}

func (t *Todos) remaining() int {
	n := 0
	for _, item := range t.Items {
		if !item.Done {
			n++
		}
	}
	return n
}

// TodoList is the nested component rendering a keyed list. Reordering
// moves existing elements instead of re-rendering them.
type TodoList struct {
	todos *Todos
}

// byID resolves the "id" payload to an index.
func (l *TodoList) byID(call *component.Call) (int, error) {
	id, err := call.Int("id")
	if err != nil {
		return -1, err
	}
	return l.todos.index(id)
}

var todoHandlers = component.NewHandlers().
	// Adding is limited separately from the session bucket.
	HandleLimited("add", component.Method(func(l *TodoList, call *component.Call) error {
		return l.todos.add(call.String("title"))
	}), 5, 5).
	Handle("toggle", component.Method(func(l *TodoList, call *component.Call) error {
		i, err := l.byID(call)
		if err != nil {
			return err
		}
		l.todos.Items[i].Done = !l.todos.Items[i].Done
		return nil
	})).
	Handle("move_up", component.Method(func(l *TodoList, call *component.Call) error {
		i, err := l.byID(call)
		if err != nil || i == 0 {
			return err
		}
		items := l.todos.Items
		items[i-1], items[i] = items[i], items[i-1]
		return nil
	})).
	Handle("remove", component.Method(func(l *TodoList, call *component.Call) error {
		i, err := l.byID(call)
		if err != nil {
			return err
		}
		l.todos.Items = slices.Delete(l.todos.Items, i, i+1)
		return nil
	})).
	Handle("clear_done", component.Method(func(l *TodoList, _ *component.Call) error {
		l.todos.Items = slices.DeleteFunc(l.todos.Items, func(item Todo) bool { return item.Done })
		return nil
	})).
	Build()

func (l *TodoList) Template() string { return "todos.html" }

func (l *TodoList) Handlers() *component.Handlers { return todoHandlers }

func (l *TodoList) RenderContext() map[string]any {
	remaining := l.todos.remaining()
	return map[string]any{
		"Items":     l.todos.Items,
		"Remaining": remaining,
		"AnyDone":   remaining < len(l.todos.Items),
	}
}
