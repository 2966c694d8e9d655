package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/render-pool/pkg/engine"
	"github.com/Sternrassler/render-pool/pkg/pool"
)

// DefaultBatchSize is the number of URLs scheduled per wave.
const DefaultBatchSize = 50

// ErrParse wraps every error returned by a Parser.
var ErrParse = errors.New("parse page")

// Config holds orchestrator configuration
type Config struct {
	// BatchSize is the number of concurrent fetches scheduled per wave
	BatchSize int

	// Per-request overrides of the pool defaults (empty = pool default)
	WaitUntil       engine.LoadState
	WaitForSelector string

	// ProgressEvery logs progress after this many results (0 disables)
	ProgressEvery int

	Logger *zerolog.Logger
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		ProgressEvery: 50,
	}
}

// Fetcher renders one URL. *pool.Pool and *cache.Fetcher implement it.
type Fetcher interface {
	FetchContent(ctx context.Context, req pool.FetchRequest) (*pool.Page, error)
}

// Parser turns a rendered page into a structured record.
type Parser[T any] interface {
	Parse(page *pool.Page) (T, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc[T any] func(page *pool.Page) (T, error)

// Parse calls f(page).
func (f ParserFunc[T]) Parse(page *pool.Page) (T, error) {
	return f(page)
}

// Result is the outcome of one URL. Exactly one of Record (with Page) or Err
// is meaningful.
type Result[T any] struct {
	URL    string
	Index  int // position in the input list
	Batch  int // zero-based wave number
	Record T
	Page   *pool.Page
	Err    error
}

// Orchestrator drives batched fetches against a Fetcher.
type Orchestrator[T any] struct {
	fetcher Fetcher
	parser  Parser[T]
	config  Config
	logger  zerolog.Logger
}

// New creates an orchestrator. A nil parser yields zero-value records.
func New[T any](fetcher Fetcher, parser Parser[T], config Config) *Orchestrator[T] {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	logger := log.Logger
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Orchestrator[T]{
		fetcher: fetcher,
		parser:  parser,
		config:  config,
		logger:  logger.With().Str("component", "batch").Logger(),
	}
}

// Stream fetches urls in waves of BatchSize and sends each result as soon as
// it completes. The channel is unbuffered: a wave only finishes once its
// results have been received, so a slow consumer slows the stream down. The
// channel is closed after the last result, or after the in-flight wave has
// wound down when ctx is cancelled.
func (o *Orchestrator[T]) Stream(ctx context.Context, urls []string) <-chan Result[T] {
	out := make(chan Result[T])

	go func() {
		defer close(out)

		start := time.Now()
		total := len(urls)
		if total == 0 {
			return
		}

		o.logger.Info().
			Int("urls", total).
			Int("batch_size", o.config.BatchSize).
			Msg("Starting batch fetch")

		var delivered int
		var mu sync.Mutex

		for wave, from := 0, 0; from < total; wave, from = wave+1, from+o.config.BatchSize {
			if ctx.Err() != nil {
				o.logger.Debug().
					Int("wave", wave).
					Msg("Batch fetch stopping (context cancelled)")
				return
			}

			to := min(from+o.config.BatchSize, total)
			batchWaves.Inc()

			var wg sync.WaitGroup
			for i := from; i < to; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()

					res := o.fetchOne(ctx, i, wave, urls[i])

					select {
					case out <- res:
					case <-ctx.Done():
						return
					}

					mu.Lock()
					delivered++
					n := delivered
					mu.Unlock()

					if o.config.ProgressEvery > 0 && n%o.config.ProgressEvery == 0 {
						o.logger.Info().
							Int("fetched", n).
							Int("total", total).
							Float64("progress_pct", float64(n)/float64(total)*100).
							Msg("Batch progress")
					}
				}(i)
			}
			wg.Wait()
		}

		o.logger.Info().
			Int("urls", total).
			Dur("duration", time.Since(start)).
			Msg("Batch fetch complete")
	}()

	return out
}

// fetchOne fetches and parses a single URL.
func (o *Orchestrator[T]) fetchOne(ctx context.Context, index, wave int, url string) Result[T] {
	res := Result[T]{URL: url, Index: index, Batch: wave}

	page, err := o.fetcher.FetchContent(ctx, pool.FetchRequest{
		URL:             url,
		WaitUntil:       o.config.WaitUntil,
		WaitForSelector: o.config.WaitForSelector,
	})
	if err != nil {
		batchResultsTotal.WithLabelValues("failed").Inc()
		o.logger.Warn().Err(err).Str("url", url).Msg("Fetch failed")
		res.Err = err
		return res
	}
	res.Page = page

	if o.parser != nil {
		record, err := o.parser.Parse(page)
		if err != nil {
			batchResultsTotal.WithLabelValues("parse_error").Inc()
			o.logger.Warn().Err(err).Str("url", url).Msg("Parse failed")
			res.Err = fmt.Errorf("%w %s: %w", ErrParse, url, err)
			return res
		}
		res.Record = record
	}

	batchResultsTotal.WithLabelValues("ok").Inc()
	return res
}

// All returns a lazy sequence over Stream. Breaking out of the loop cancels
// the remaining work.
func (o *Orchestrator[T]) All(ctx context.Context, urls []string) iter.Seq[Result[T]] {
	return func(yield func(Result[T]) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for res := range o.Stream(ctx, urls) {
			if !yield(res) {
				return
			}
		}
	}
}

// Collect drains the stream into a slice ordered by completion.
func (o *Orchestrator[T]) Collect(ctx context.Context, urls []string) []Result[T] {
	results := make([]Result[T], 0, len(urls))
	for res := range o.All(ctx, urls) {
		results = append(results, res)
	}
	return results
}
