package parser

import (
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
)

const baseCacheSize = 128

// resolver joins relative references against base URLs. Every container on
// a page resolves against the same base, so parsed bases are cached.
type resolver struct {
	bases *lru.Cache[string, *url.URL]
}

func newResolver(size int) *resolver {
	cache, err := lru.New[string, *url.URL](size)
	if err != nil {
		panic(fmt.Sprintf("parser: lru cache: %v", err))
	}
	return &resolver{bases: cache}
}

var defaultResolver = newResolver(baseCacheSize)

func (r *resolver) base(raw string) (*url.URL, error) {
	if u, ok := r.bases.Get(raw); ok {
		return u, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	r.bases.Add(raw, u)
	return u, nil
}

// Resolve applies standard reference resolution of ref against base.
func (r *resolver) Resolve(base, ref string) (string, error) {
	b, err := r.base(base)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return b.ResolveReference(rel).String(), nil
}

// ResolveURL joins ref against base the way a browser would.
func ResolveURL(base, ref string) (string, error) {
	return defaultResolver.Resolve(base, ref)
}
