// Package navtest provides an in-memory navigator.Session for tests.
package navtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"catalog-harvester/lib/navigator"
)

// Node is an element on a fake page. Children are keyed by the selector
// that finds them, so a fake page only needs to know the selectors the
// code under test uses.
type Node struct {
	Text     string
	Attrs    map[string]string
	Children map[string][]*Node
	// Target is loaded when the node is clicked.
	Target string
	// ReadErr is returned by every read of this node.
	ReadErr error
}

type Page struct {
	Nodes map[string][]*Node
}

type Session struct {
	Pages map[string]*Page
	// NavigateErr fails navigation to the given urls.
	NavigateErr map[string]error

	mu         sync.Mutex
	current    *Page
	generation uint64
	visits     []string

	reads     atomic.Int64
	conflicts atomic.Int64
}

var ErrUnknownPage = errors.New("unknown page")

type element struct {
	node       *Node
	generation uint64
}

func (e element) String() string {
	return fmt.Sprintf("<node %q>", e.node.Text)
}

// Visits returns the urls loaded so far, in order.
func (s *Session) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

// Conflicts counts mutating calls made while a read was in progress.
func (s *Session) Conflicts() int64 {
	return s.conflicts.Load()
}

func (s *Session) beginRead() func() {
	s.reads.Add(1)
	return func() { s.reads.Add(-1) }
}

func (s *Session) load(url string) error {
	if s.reads.Load() > 0 {
		s.conflicts.Add(1)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if err := s.NavigateErr[url]; err != nil {
		return err
	}
	page, ok := s.Pages[url]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, url)
	}
	s.current = page
	s.visits = append(s.visits, url)
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.load(url)
}

func (s *Session) unwrap(el navigator.Element) (*Node, error) {
	e, ok := el.(element)
	if !ok {
		return nil, navigator.ErrForeignElement
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.generation != s.generation {
		return nil, navigator.ErrStaleElement
	}
	if e.node.ReadErr != nil {
		return nil, e.node.ReadErr
	}
	return e.node, nil
}

func (s *Session) wrap(nodes []*Node) []navigator.Element {
	out := make([]navigator.Element, len(nodes))
	for i, n := range nodes {
		out[i] = element{node: n, generation: s.generation}
	}
	return out
}

func (s *Session) QueryAll(ctx context.Context, selector string) ([]navigator.Element, error) {
	defer s.beginRead()()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, navigator.ErrNoPage
	}
	return s.wrap(s.current.Nodes[selector]), nil
}

func (s *Session) QueryOne(ctx context.Context, selector string) (navigator.Element, bool, error) {
	found, err := s.QueryAll(ctx, selector)
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *Session) QueryAllIn(ctx context.Context, parent navigator.Element, selector string) ([]navigator.Element, error) {
	defer s.beginRead()()
	node, err := s.unwrap(parent)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrap(node.Children[selector]), nil
}

func (s *Session) QueryOneIn(ctx context.Context, parent navigator.Element, selector string) (navigator.Element, bool, error) {
	found, err := s.QueryAllIn(ctx, parent, selector)
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

func (s *Session) Text(ctx context.Context, el navigator.Element) (string, error) {
	defer s.beginRead()()
	node, err := s.unwrap(el)
	if err != nil {
		return "", err
	}
	return node.Text, nil
}

func (s *Session) Attribute(ctx context.Context, el navigator.Element, name string) (string, bool, error) {
	defer s.beginRead()()
	node, err := s.unwrap(el)
	if err != nil {
		return "", false, err
	}
	value, ok := node.Attrs[name]
	return value, ok, nil
}

func (s *Session) Click(ctx context.Context, el navigator.Element) error {
	node, err := s.unwrap(el)
	if err != nil {
		return err
	}
	if node.Target == "" {
		return navigator.ErrNotClickable
	}
	return s.load(node.Target)
}
