package ui

import (
	"context"
	"errors"
	"sync"
)

// fakePage records calls and answers presence checks from a visibility table. A
// selector becomes visible after visibleAfter[label] checks.
type fakePage struct {
	mu           sync.Mutex
	visibleAfter map[string]int
	present      map[string]bool
	checks       map[string]int
	clickErrs    map[string][]error
	calls        []string
	screenshots  []string
}

func newFakePage() *fakePage {
	return &fakePage{
		visibleAfter: map[string]int{},
		present:      map[string]bool{},
		checks:       map[string]int{},
		clickErrs:    map[string][]error{},
	}
}

func (p *fakePage) Present(ctx context.Context, sel SelectorSpec, visible bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	label := sel.String()
	p.checks[label]++
	if !visible && p.present[label] {
		return true, nil
	}
	after, ok := p.visibleAfter[label]
	if !ok {
		return false, nil
	}
	return p.checks[label] > after, nil
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Click(_ context.Context, sel SelectorSpec) error {
	p.record("click " + sel.String())
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := p.clickErrs[sel.String()]
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	p.clickErrs[sel.String()] = errs[1:]
	return err
}

func (p *fakePage) Fill(_ context.Context, sel SelectorSpec, value string) error {
	p.record("fill " + sel.String() + " " + value)
	return nil
}

func (p *fakePage) AttachFile(_ context.Context, sel SelectorSpec, path string) error {
	p.record("attach " + sel.String() + " " + path)
	return nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) { return "about:blank", nil }

func (p *fakePage) Text(context.Context, SelectorSpec) (string, error) {
	return "", errors.New("no text")
}

func (p *fakePage) Screenshot(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *fakePage) checkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.checks {
		total += n
	}
	return total
}

func (p *fakePage) callList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}
