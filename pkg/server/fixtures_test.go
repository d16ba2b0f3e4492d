package server_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vango-dev/liveview/pkg/component"
	"github.com/vango-dev/liveview/pkg/render"
	"github.com/vango-dev/liveview/pkg/vdom"
)

// unmountLog records Unmount calls across views of one test.
type unmountLog struct {
	mu    sync.Mutex
	names []string
}

func (l *unmountLog) add(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *unmountLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// page is a root view owning one panel component.
type page struct {
	Clicks int
	Order  []string
	Broken bool

	log     *unmountLog
	entered chan struct{}
	gate    chan struct{}
}

func (p *page) Template() string { return "page" }
func (p *page) RenderContext() map[string]any {
	return map[string]any{"clicks": p.Clicks, "broken": p.Broken}
}
func (p *page) Handlers() *component.Handlers { return pageHandlers }

func (p *page) Mount(scope *component.Scope, params map[string]string) error {
	if params["fail"] != "" {
		return errors.New("mount refused")
	}
	_, err := scope.Bind("panel", &panel{log: p.log, Title: params["title"]})
	return err
}

func (p *page) Unmount() { p.log.add("page") }

var pageHandlers = component.NewHandlers().
	Handle("click", component.Method(func(p *page, call *component.Call) error {
		p.Clicks++
		if call.Has("i") {
			p.Order = append(p.Order, call.String("i"))
		}
		return nil
	})).
	Handle("noop", component.Method(func(*page, *component.Call) error {
		return nil
	})).
	Handle("fail", component.Method(func(*page, *component.Call) error {
		return errors.New("database is down")
	})).
	Handle("explode", component.Method(func(*page, *component.Call) error {
		panic("kaboom")
	})).
	Handle("break", component.Method(func(p *page, _ *component.Call) error {
		p.Broken = true
		return nil
	})).
	Handle("swap", component.Method(func(p *page, call *component.Call) error {
		_, err := call.Scope.Bind("panel", &panel{log: p.log, Title: call.String("title")})
		return err
	})).
	Handle("block", component.Method(func(p *page, _ *component.Call) error {
		close(p.entered)
		<-p.gate
		return nil
	})).
	Handle("slow_click", component.Method(func(p *page, _ *component.Call) error {
		close(p.entered)
		<-p.gate
		p.Clicks++
		return nil
	})).
	Build()

// panel is a nested component.
type panel struct {
	Title string
	Open  bool

	log *unmountLog
}

func (c *panel) Template() string { return "panel" }
func (c *panel) RenderContext() map[string]any {
	return map[string]any{"title": c.Title, "open": c.Open}
}
func (c *panel) Handlers() *component.Handlers { return panelHandlers }
func (c *panel) Unmount()                      { c.log.add("panel:" + c.Title) }

var panelHandlers = component.NewHandlers().
	Handle("toggle", component.Method(func(c *panel, _ *component.Call) error {
		c.Open = !c.Open
		return nil
	})).
	Build()

var pageRenderer = render.Func(func(_ context.Context, template string, data map[string]any) (*vdom.VNode, error) {
	switch template {
	case "page":
		if data["broken"] == true {
			return nil, errors.New("template exploded")
		}
		return vdom.Div(vdom.ID("page"),
			vdom.P(vdom.Textf("%d clicks", data["clicks"])),
			vdom.ComponentRef("panel", nil),
		), nil
	case "panel":
		open, _ := data["open"].(bool)
		return vdom.Section(vdom.Class("panel"),
			vdom.H2(fmt.Sprint(data["title"])),
			vdom.If(open, vdom.P("open")),
		), nil
	}
	return nil, render.ErrTemplateNotFound
})

func newPageFactory(log *unmountLog) func() component.View {
	return func() component.View {
		return &page{log: log}
	}
}
