package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/chronicle/pkg/stage"
)

// ScriptedGenerator is a stage.Generator that replays canned responses per
// stage, in order. When a stage's script runs out, the stage's Default
// response is returned if set, otherwise an ErrGeneration error.
type ScriptedGenerator struct {
	mu sync.Mutex

	scripts  map[stage.Stage][]scripted
	Defaults map[stage.Stage]*stage.Response

	// Hook, when set, runs before every call and may block or fail it.
	Hook func(ctx context.Context, req stage.Request) error

	requests []stage.Request
}

type scripted struct {
	resp *stage.Response
	err  error
}

func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{
		scripts:  make(map[stage.Stage][]scripted),
		Defaults: make(map[stage.Stage]*stage.Response),
	}
}

// Respond queues a response for s.
func (g *ScriptedGenerator) Respond(s stage.Stage, resp *stage.Response) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[s] = append(g.scripts[s], scripted{resp: resp})
	return g
}

// Fail queues an error for s.
func (g *ScriptedGenerator) Fail(s stage.Stage, err error) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[s] = append(g.scripts[s], scripted{err: err})
	return g
}

func (g *ScriptedGenerator) Generate(ctx context.Context, req stage.Request) (*stage.Response, error) {
	if g.Hook != nil {
		if err := g.Hook(ctx, req); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)

	if queue := g.scripts[req.Stage]; len(queue) > 0 {
		next := queue[0]
		g.scripts[req.Stage] = queue[1:]
		return next.resp, next.err
	}
	if resp, ok := g.Defaults[req.Stage]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("%w: no scripted response for %s", stage.ErrGeneration, req.Stage)
}

// Requests returns every request received, in order.
func (g *ScriptedGenerator) Requests() []stage.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]stage.Request(nil), g.requests...)
}

// Calls counts the requests received for s.
func (g *ScriptedGenerator) Calls(s stage.Stage) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Stage == s {
			n++
		}
	}
	return n
}

var _ stage.Generator = (*ScriptedGenerator)(nil)
