package shell

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner answers commands from a table keyed by binary name. It records
// every call and is safe for concurrent use.
type FakeRunner struct {
	mu        sync.Mutex
	Responses map[string]FakeResponse
	Calls     []Command
}

type FakeResponse struct {
	Result Result
	Err    error
	// Match, when set, restricts the response to commands whose joined
	// arguments contain it.
	Match string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Responses: make(map[string]FakeResponse)}
}

func (f *FakeRunner) On(name string, resp FakeResponse) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := name
	if resp.Match != "" {
		key = name + "|" + resp.Match
	}
	f.Responses[key] = resp
	return f
}

func (f *FakeRunner) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)

	joined := strings.Join(cmd.Args, " ")
	for key, resp := range f.Responses {
		if resp.Match == "" {
			continue
		}
		if strings.HasPrefix(key, cmd.Name+"|") && strings.Contains(joined, resp.Match) {
			return resp.Result, resp.Err
		}
	}
	if resp, ok := f.Responses[cmd.Name]; ok {
		return resp.Result, resp.Err
	}
	return Result{}, nil
}

func (f *FakeRunner) CallsTo(name string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Command
	for _, c := range f.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
