// Package browser implements navigator.Session on top of a Chrome
// DevTools connection, for catalogs that render their listings with
// client-side scripts.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"catalog-harvester/lib/htmlutil"
	"catalog-harvester/lib/navigator"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog-harvester/lib/navigator/browser")

type Options struct {
	// Endpoint is a remote DevTools websocket (for example a browserless
	// instance). When empty a local Chrome is started.
	Endpoint string
	// Token is appended to Endpoint as the `token` query parameter.
	Token     string
	Headless  bool
	UserAgent string
	// Settle is how long to wait after a navigation or click for the page
	// scripts to render the new content.
	Settle time.Duration
	// Timeout bounds each individual DevTools action.
	Timeout time.Duration
}

type Session struct {
	opts    Options
	browser context.Context

	// CDP calls on one target are serialized
	mu         sync.Mutex
	loaded     bool
	generation uint64
}

type element struct {
	node       *cdp.Node
	generation uint64
}

func (e element) String() string {
	if e.node == nil {
		return "<nil>"
	}
	class := e.node.AttributeValue("class")
	if class != "" {
		return fmt.Sprintf("<%s class=%q>", strings.ToLower(e.node.NodeName), class)
	}
	return fmt.Sprintf("<%s>", strings.ToLower(e.node.NodeName))
}

func endpointURL(endpoint, token string) (string, error) {
	if token == "" {
		return endpoint, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// remoteOptions keeps endpoints that already name a browser session (a
// devtools path or query parameters such as a browserless token) as they
// are. Bare host endpoints are resolved through /json/version.
func remoteOptions(endpoint string) []chromedp.RemoteAllocatorOption {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.RawQuery != "" || strings.Trim(parsed.Path, "/") != "" {
		return []chromedp.RemoteAllocatorOption{chromedp.NoModifyURL}
	}
	return nil
}

// New starts (or connects to) a browser and opens a single tab. The
// returned cancel func closes the tab and the browser.
func New(ctx context.Context, opts Options) (*Session, context.CancelFunc, error) {
	if opts.Settle == 0 {
		opts.Settle = 2 * time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.Endpoint != "" {
		endpoint, err := endpointURL(opts.Endpoint, opts.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid browser endpoint: %w", err)
		}
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, endpoint, remoteOptions(endpoint)...)
	} else {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	// the first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{opts: opts, browser: browserCtx}, cancel, nil
}

// run executes actions on the tab, stopping early if either the caller's
// context or the per-action timeout is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.browser, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", target))

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.run(
		ctx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.opts.Settle),
	)
	s.generation++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		return err
	}
	s.loaded = true
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

func (s *Session) nodes(ctx context.Context, selector string, parent *cdp.Node) ([]navigator.Element, error) {
	if !s.loaded {
		return nil, navigator.ErrNoPage
	}
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if parent != nil {
		opts = append(opts, chromedp.FromNode(parent))
	}
	var found []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &found, opts...))
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]navigator.Element, len(found))
	for i, node := range found {
		out[i] = element{node: node, generation: s.generation}
	}
	return out, nil
}

func first(elements []navigator.Element, err error) (navigator.Element, bool, error) {
	if err != nil || len(elements) == 0 {
		return nil, false, err
	}
	return elements[0], true, nil
}

func (s *Session) QueryAll(ctx context.Context, selector string) ([]navigator.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes(ctx, selector, nil)
}

func (s *Session) QueryOne(ctx context.Context, selector string) (navigator.Element, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return first(s.nodes(ctx, selector, nil))
}

func (s *Session) QueryAllIn(ctx context.Context, parent navigator.Element, selector string) ([]navigator.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.unwrap(parent)
	if err != nil {
		return nil, err
	}
	return s.nodes(ctx, selector, p.node)
}

func (s *Session) QueryOneIn(ctx context.Context, parent navigator.Element, selector string) (navigator.Element, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.unwrap(parent)
	if err != nil {
		return nil, false, err
	}
	return first(s.nodes(ctx, selector, p.node))
}

func (s *Session) Text(ctx context.Context, el navigator.Element) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.unwrap(el)
	if err != nil {
		return "", err
	}
	var text string
	err = s.run(ctx, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	if err != nil {
		return "", err
	}
	return htmlutil.NormalizeText(text), nil
}

func (s *Session) Attribute(ctx context.Context, el navigator.Element, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.unwrap(el)
	if err != nil {
		return "", false, err
	}
	var value string
	var ok bool
	err = s.run(ctx, chromedp.AttributeValue([]cdp.NodeID{e.node.NodeID}, name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (s *Session) Click(ctx context.Context, el navigator.Element) error {
	ctx, span := tracer.Start(ctx, "Click")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.unwrap(el)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("element", e.String()))

	err = s.run(
		ctx,
		chromedp.MouseClickNode(e.node),
		chromedp.Sleep(s.opts.Settle),
	)
	s.generation++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to click")
		return err
	}
	return nil
}
