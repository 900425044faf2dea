// Package mediatest provides in-memory stand-ins for ffmpeg and ffprobe.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Runner records every invocation and touches the output file (the last
// argument) so later stages see it on disk.
type Runner struct {
	mu    sync.Mutex
	Calls [][]string
	// FailWhen makes an invocation fail when it returns true.
	FailWhen func(args []string) bool
}

func (r *Runner) Run(ctx context.Context, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.Calls = append(r.Calls, append([]string(nil), args...))
	fail := r.FailWhen
	r.mu.Unlock()

	if fail != nil && fail(args) {
		return fmt.Errorf("fake ffmpeg failure")
	}
	if len(args) == 0 {
		return nil
	}
	out := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("fake media"), 0644)
}

// CallsContaining returns the invocations with an argument containing s
func (r *Runner) CallsContaining(s string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.Calls {
		for _, a := range c {
			if strings.Contains(a, s) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (r *Runner) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Has reports whether any invocation contains s
func (r *Runner) Has(s string) bool {
	return len(r.CallsContaining(s)) > 0
}

// Prober answers durations from a table, falling back to Default
type Prober struct {
	mu        sync.Mutex
	Durations map[string]float64
	Default   float64
	Err       error
}

func (p *Prober) Set(path string, d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Durations == nil {
		p.Durations = make(map[string]float64)
	}
	p.Durations[path] = d
}

func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return 0, p.Err
	}
	if d, ok := p.Durations[path]; ok {
		return d, nil
	}
	if p.Default > 0 {
		return p.Default, nil
	}
	return 0, fmt.Errorf("no duration for %s", path)
}

// ArgAfter returns the value following flag in args
func ArgAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
