// Package static implements navigator.Session over plain HTTP for
// server-rendered catalogs. Clicking an element follows its link.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"

	"catalog-harvester/lib/htmlutil"
	"catalog-harvester/lib/navigator"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog-harvester/lib/navigator/static")

// attributes checked, in order, to find where a click leads
var clickAttributes = []string{"href", "data-href"}

type Session struct {
	http *resty.Client

	mu         sync.RWMutex
	doc        *goquery.Document
	current    *url.URL
	generation uint64
}

type element struct {
	sel        *goquery.Selection
	generation uint64
}

func (e element) String() string {
	if e.sel.Length() == 0 {
		return "<empty>"
	}
	node := e.sel.Get(0)
	class, _ := e.sel.Attr("class")
	if class != "" {
		return fmt.Sprintf("<%s class=%q>", node.Data, class)
	}
	return fmt.Sprintf("<%s>", node.Data)
}

func New(client *resty.Client) *Session {
	return &Session{http: client}
}

// URL returns the address of the current page.
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.String()
}

func (s *Session) resolve(target string) (*url.URL, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if s.current != nil {
		return s.current.ResolveReference(parsed), nil
	}
	return parsed, nil
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := s.resolve(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse url")
		return err
	}
	span.SetAttributes(attribute.String("url", resolved.String()))

	res, err := s.http.R().
		SetContext(ctx).
		Get(resolved.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("GET %s: unexpected status %s", resolved, res.Status())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return err
	}

	final := resolved
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL
	}

	s.doc = doc
	s.current = final
	s.generation++
	return nil
}

func (s *Session) unwrap(el navigator.Element) (element, error) {
	e, ok := el.(element)
	if !ok {
		return element{}, navigator.ErrForeignElement
	}
	if e.generation != s.generation {
		return element{}, navigator.ErrStaleElement
	}
	return e, nil
}

func (s *Session) wrapAll(sel *goquery.Selection) []navigator.Element {
	out := make([]navigator.Element, 0, sel.Length())
	sel.Each(func(_ int, child *goquery.Selection) {
		out = append(out, element{sel: child, generation: s.generation})
	})
	return out
}

func (s *Session) QueryAll(ctx context.Context, selector string) ([]navigator.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, navigator.ErrNoPage
	}
	return s.wrapAll(s.doc.Find(selector)), nil
}

func (s *Session) QueryOne(ctx context.Context, selector string) (navigator.Element, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, false, navigator.ErrNoPage
	}
	found := s.doc.Find(selector).First()
	if found.Length() == 0 {
		return nil, false, nil
	}
	return element{sel: found, generation: s.generation}, true, nil
}

func (s *Session) QueryAllIn(ctx context.Context, parent navigator.Element, selector string) ([]navigator.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.unwrap(parent)
	if err != nil {
		return nil, err
	}
	return s.wrapAll(p.sel.Find(selector)), nil
}

func (s *Session) QueryOneIn(ctx context.Context, parent navigator.Element, selector string) (navigator.Element, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.unwrap(parent)
	if err != nil {
		return nil, false, err
	}
	found := p.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false, nil
	}
	return element{sel: found, generation: s.generation}, true, nil
}

func (s *Session) Text(ctx context.Context, el navigator.Element) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.unwrap(el)
	if err != nil {
		return "", err
	}
	return htmlutil.InnerText(e.sel.Get(0)), nil
}

func (s *Session) Attribute(ctx context.Context, el navigator.Element, name string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.unwrap(el)
	if err != nil {
		return "", false, err
	}
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (s *Session) Click(ctx context.Context, el navigator.Element) error {
	s.mu.RLock()
	e, err := s.unwrap(el)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	target := ""
	for _, attr := range clickAttributes {
		if value, ok := e.sel.Attr(attr); ok && value != "" {
			target = value
			break
		}
	}
	s.mu.RUnlock()

	if target == "" {
		return fmt.Errorf("%w: %s has no link", navigator.ErrNotClickable, e)
	}
	return s.Navigate(ctx, target)
}
