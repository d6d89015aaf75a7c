package youtube

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// FallbackSearcher asks each source in turn until one answers. It stops on
// context errors and on references no source could parse.
type FallbackSearcher struct {
	sources []namedSearcher
	logger  logrus.FieldLogger
}

type namedSearcher struct {
	name string
	Searcher
}

// NewFallbackSearcher creates an empty chain. A nil logger uses the
// standard logrus logger.
func NewFallbackSearcher(logger logrus.FieldLogger) *FallbackSearcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FallbackSearcher{logger: logger}
}

// Add appends a source to the chain and returns the searcher for chaining.
func (f *FallbackSearcher) Add(name string, s Searcher) *FallbackSearcher {
	if s != nil {
		f.sources = append(f.sources, namedSearcher{name: name, Searcher: s})
	}
	return f
}

// Len reports how many sources are chained.
func (f *FallbackSearcher) Len() int {
	return len(f.sources)
}

// Names lists the chained sources in the order they are tried.
func (f *FallbackSearcher) Names() []string {
	return lo.Map(f.sources, func(s namedSearcher, _ int) string { return s.name })
}

// SearchByKeyword implements Searcher.
func (f *FallbackSearcher) SearchByKeyword(ctx context.Context, query string, limit int) ([]Video, error) {
	return f.try(ctx, query, func(s Searcher) ([]Video, error) {
		return s.SearchByKeyword(ctx, query, limit)
	})
}

// SearchByChannel implements Searcher.
func (f *FallbackSearcher) SearchByChannel(ctx context.Context, ref string, limit int) ([]Video, error) {
	return f.try(ctx, ref, func(s Searcher) ([]Video, error) {
		return s.SearchByChannel(ctx, ref, limit)
	})
}

func (f *FallbackSearcher) try(ctx context.Context, query string, fn func(Searcher) ([]Video, error)) ([]Video, error) {
	if len(f.sources) == 0 {
		return nil, &SearchError{Source: "fallback", Query: query, Err: ErrUnsupported}
	}

	var lastErr error
	for i, src := range f.sources {
		videos, err := fn(src.Searcher)
		if err == nil {
			return videos, nil
		}
		lastErr = err
		if !shouldFallBack(ctx, err) {
			return nil, err
		}
		if i < len(f.sources)-1 {
			f.logger.WithFields(logrus.Fields{
				"source": src.name,
				"next":   f.sources[i+1].name,
				"query":  query,
			}).WithError(err).Warn("search source failed, falling back")
		}
	}
	return nil, lastErr
}

func shouldFallBack(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrInvalidURL)
}
