// Copyright 2025 The Go CoreHTTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package paging turns paginated list endpoints into lazy sequences. A
// [Pager] fetches page N+1 only when the consumer asks for it, and never
// refetches: the sequence is forward-only and non-restartable. The pager
// exclusively owns continuation-token state; consumers either walk pages
// with [Pages] to checkpoint tokens, or flatten across page boundaries with
// [All].
package paging

import (
	"context"
	"errors"
	"iter"
)

// ErrNoMorePages is returned by NextPage after the final page was delivered.
var ErrNoMorePages = errors.New("no more pages")

// Handler supplies the two page-shape-specific behaviors a [Pager] needs.
type Handler[T any] struct {
	// More reports whether page carries a continuation to another page. An
	// empty page with a continuation token is NOT the end of the sequence;
	// only a missing token is.
	More func(page T) bool

	// Fetcher retrieves a page. current is nil for the first fetch and the
	// previously returned page afterwards, so the fetcher can read the
	// continuation token from it.
	Fetcher func(ctx context.Context, current *T) (T, error)
}

// Pager is a lazy iterator over pages of type T. Not safe for concurrent
// use.
type Pager[T any] struct {
	h       Handler[T]
	current *T
	fetched bool
	err     error
}

// New creates a Pager driven by h. Both handler funcs are required.
func New[T any](h Handler[T]) *Pager[T] {
	return &Pager[T]{h: h}
}

// More reports whether another page is available. The first page is always
// considered available; after an error there are no more pages.
func (p *Pager[T]) More() bool {
	if p.err != nil {
		return false
	}
	if !p.fetched {
		return true
	}
	return p.h.More(*p.current)
}

// NextPage fetches the next page. A fetch error is sticky: it is returned
// again on every later call, and More reports false.
func (p *Pager[T]) NextPage(ctx context.Context) (T, error) {
	var zero T
	if p.h.More == nil || p.h.Fetcher == nil {
		return zero, errors.New("paging: Handler requires both More and Fetcher")
	}
	if p.err != nil {
		return zero, p.err
	}
	if p.fetched && !p.h.More(*p.current) {
		return zero, ErrNoMorePages
	}
	page, err := p.h.Fetcher(ctx, p.current)
	if err != nil {
		p.err = err
		return zero, err
	}
	p.current = &page
	p.fetched = true
	return page, nil
}

// Pages iterates the remaining pages one at a time, exposing page boundaries
// for checkpointing. Iteration stops after yielding the first error.
func Pages[T any](ctx context.Context, p *Pager[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.More() {
			page, err := p.NextPage(ctx)
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

// All flattens a pager into a single sequence of items, fetching pages
// transparently as each one is exhausted. items extracts the item slice from
// a page. Iteration stops after yielding the first error.
func All[T, E any](ctx context.Context, p *Pager[T], items func(page T) []E) iter.Seq2[E, error] {
	return func(yield func(E, error) bool) {
		for p.More() {
			page, err := p.NextPage(ctx)
			if err != nil {
				var zero E
				yield(zero, err)
				return
			}
			for _, item := range items(page) {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
