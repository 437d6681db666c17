package translation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBatchSize bounds how many texts go into one provider call.
const DefaultBatchSize = 50

// ErrResultCount reports a provider response whose length differs from the request.
var ErrResultCount = errors.New("provider returned a mismatched number of translations")

// Pair is one text to translate and the element id its result belongs to.
type Pair struct {
	ID   string
	Text string
}

// Translation is one translated text correlated back to its element id.
type Translation struct {
	ID   string
	Text string
}

// BatchResult is emitted once per successful batch.
type BatchResult struct {
	Index     int
	Batches   int
	Items     []Translation
	Completed int
	Total     int
	Progress  int
}

// BatchError wraps the failure of one batch. Batches before it already succeeded.
type BatchError struct {
	Batch   int
	Batches int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d of %d: %v", e.Batch+1, e.Batches, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	BatchSize  int
	SourceLang string
	Logger     zerolog.Logger
}

// Dispatcher partitions texts into bounded batches and sends them to a provider
// strictly one after another.
type Dispatcher struct {
	provider   Provider
	batchSize  int
	sourceLang string
	logger     zerolog.Logger
}

func NewDispatcher(provider Provider, opts DispatcherOptions) *Dispatcher {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Dispatcher{
		provider:   provider,
		batchSize:  size,
		sourceLang: opts.SourceLang,
		logger:     opts.Logger,
	}
}

func (d *Dispatcher) BatchSize() int {
	return d.batchSize
}

// Dispatch streams batch results in order. The next batch is only sent after the
// consumer's loop body for the previous one returns, so results can be applied
// before more work is requested. The stream ends after the first error.
func (d *Dispatcher) Dispatch(ctx context.Context, pairs []Pair, targetLang string) iter.Seq2[BatchResult, error] {
	return func(yield func(BatchResult, error) bool) {
		if d == nil || d.provider == nil {
			yield(BatchResult{}, fmt.Errorf("translation dispatcher is not initialized"))
			return
		}

		batches := Partition(pairs, d.batchSize)
		total := len(pairs)
		completed := 0

		for idx, batch := range batches {
			if err := ctx.Err(); err != nil {
				yield(BatchResult{}, &BatchError{Batch: idx, Batches: len(batches), Err: err})
				return
			}

			items, err := d.translate(ctx, batch, targetLang)
			if err != nil {
				d.logger.Warn().
					Err(err).
					Str("provider", d.provider.Name()).
					Int("batch", idx+1).
					Int("batches", len(batches)).
					Msg("translation batch failed")
				yield(BatchResult{}, &BatchError{Batch: idx, Batches: len(batches), Err: err})
				return
			}

			completed += len(batch)
			result := BatchResult{
				Index:     idx,
				Batches:   len(batches),
				Items:     items,
				Completed: completed,
				Total:     total,
				Progress:  progressPercent(completed, total),
			}
			if !yield(result, nil) {
				return
			}
		}
	}
}

func (d *Dispatcher) translate(ctx context.Context, batch []Pair, targetLang string) ([]Translation, error) {
	texts := make([]string, len(batch))
	for i, pair := range batch {
		texts[i] = pair.Text
	}

	started := time.Now()
	results, err := d.provider.TranslateBatch(ctx, BatchRequest{
		Texts:      texts,
		SourceLang: d.sourceLang,
		TargetLang: targetLang,
	})
	if err != nil {
		return nil, err
	}
	if len(results) != len(batch) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrResultCount, len(results), len(batch))
	}

	d.logger.Debug().
		Str("provider", d.provider.Name()).
		Int("texts", len(batch)).
		Dur("latency", time.Since(started)).
		Msg("translation batch completed")

	items := make([]Translation, len(batch))
	for i, pair := range batch {
		items[i] = Translation{ID: pair.ID, Text: results[i].TranslatedText}
	}
	return items, nil
}

// Partition splits pairs into consecutive slices of at most size elements.
func Partition(pairs []Pair, size int) [][]Pair {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]Pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		batches = append(batches, pairs[start:end])
	}
	return batches
}

func progressPercent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return completed * 100 / total
}
