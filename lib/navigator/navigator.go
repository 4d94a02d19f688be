// Package navigator defines the page session the harvester drives.
//
// A Session is a single mutable resource: Navigate and Click change the
// current page and invalidate every Element obtained before them. The
// read operations (Query*, Text, Attribute) may be called concurrently
// with each other, but never concurrently with a mutating operation.
package navigator

import (
	"context"
	"errors"
)

var (
	// ErrStaleElement is returned when an Element from a previous page is used.
	ErrStaleElement = errors.New("element belongs to a page that is no longer current")
	// ErrForeignElement is returned when an Element from another backend is used.
	ErrForeignElement = errors.New("element was not created by this session")
	// ErrNoPage is returned by reads before the first successful Navigate.
	ErrNoPage = errors.New("no page has been loaded")
	// ErrNotClickable is returned when an element has no click behavior.
	ErrNotClickable = errors.New("element is not clickable")
)

// Element is an opaque handle to a node on the current page.
type Element interface {
	// String describes the element for diagnostics.
	String() string
}

type Session interface {
	Navigate(ctx context.Context, url string) error
	// QueryAll returns the elements matching `selector` in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// QueryOne returns the first element matching `selector`, ok is false
	// if there is none.
	QueryOne(ctx context.Context, selector string) (el Element, ok bool, err error)
	QueryAllIn(ctx context.Context, parent Element, selector string) ([]Element, error)
	QueryOneIn(ctx context.Context, parent Element, selector string) (el Element, ok bool, err error)
	// Text returns the rendered text of an element with whitespace collapsed.
	Text(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (value string, ok bool, err error)
	Click(ctx context.Context, el Element) error
}

// Disabled reports whether an element is marked as disabled, the way
// pagination controls usually signal that there is no further page.
func Disabled(ctx context.Context, sess Session, el Element) (bool, error) {
	_, disabled, err := sess.Attribute(ctx, el, "disabled")
	if err != nil || disabled {
		return disabled, err
	}
	aria, ok, err := sess.Attribute(ctx, el, "aria-disabled")
	if err != nil {
		return false, err
	}
	return ok && aria == "true", nil
}
