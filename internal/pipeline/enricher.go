// Package pipeline orchestrates enrichment of a full record set: it
// batches rows, serves repeats from the cache, dispatches misses to the
// gateway through a bounded worker pool, and merges results back in the
// original row order.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smartetl/annotator/internal/enrich"
	"github.com/smartetl/annotator/internal/enrich/cache"
	"github.com/smartetl/annotator/pkg/pipeline/core"
	"github.com/smartetl/annotator/pkg/pipeline/table"
	"github.com/smartetl/annotator/pkg/pipeline/worker"
)

// Annotation column names appended to the enriched table.
const (
	ColSentiment = "sentiment"
	ColKeywords  = "keywords"
	ColSummary   = "summary"
)

// Annotator enriches one text and reports the model identity it uses.
// The model participates in cache keys, so results computed by one model
// are never served for another.
type Annotator interface {
	enrich.Enricher
	Model() string
}

type Options struct {
	// BatchSize only affects dispatch granularity and progress reporting,
	// never correctness or final ordering.
	BatchSize int

	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	// OnEvent receives progress events. Nil disables reporting.
	OnEvent Sink
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	return o
}

// BatchEnricher annotates whole tables through an Annotator, a shared
// cache, and a bounded worker pool.
type BatchEnricher struct {
	annotator Annotator
	cache     *cache.Coalescer
	opts      Options
}

func NewBatchEnricher(a Annotator, store cache.Store, opts Options) *BatchEnricher {
	return &BatchEnricher{
		annotator: a,
		cache:     cache.NewCoalescer(store),
		opts:      opts.withDefaults(),
	}
}

// dispatchItem is one distinct cache miss within a batch: the first record
// carrying the key, plus the row indexes of any in-batch duplicates.
type dispatchItem struct {
	rec  enrich.Record
	key  string
	dups []int
}

// dispatchOut carries the result plus whether it was served without an
// actual gateway call (a stored entry or a coalesced in-flight call).
type dispatchOut struct {
	res       enrich.Result
	fromCache bool
}

// Run enriches every row of the table and returns a new table with
// sentiment, keywords, and summary columns appended, in the original row
// order, together with the finalized run metrics.
//
// Row-level failures degrade to the failed variant and never abort the
// run; the only error returns are a missing text column and context
// cancellation (metrics then reflect work completed up to that point).
func (b *BatchEnricher) Run(ctx context.Context, tbl *table.Table, textColumn string) (*table.Table, Snapshot, error) {
	metrics := new(RunMetrics)
	runID := uuid.NewString()

	texts, err := tbl.Column(textColumn)
	if err != nil {
		return nil, metrics.Snapshot(), fmt.Errorf("enrich: %w", err)
	}

	records := make([]enrich.Record, len(texts))
	for i, text := range texts {
		records[i] = enrich.Record{Index: i, Text: text}
	}

	results := make([]enrich.Result, len(records))
	batches := partition(records, b.opts.BatchSize)

	for bi, batch := range batches {
		// Cancellation is checked between batches; worker dispatch checks
		// it again per item.
		if err := ctx.Err(); err != nil {
			return nil, metrics.Snapshot(), err
		}
		if err := b.runBatch(ctx, batch, results, metrics, runID); err != nil {
			return nil, metrics.Snapshot(), err
		}
		b.emit(Event{
			Kind:      EventBatchCompleted,
			RunID:     runID,
			Batch:     bi + 1,
			Batches:   len(batches),
			RowsDone:  int(metrics.rowsProcessed.Load()),
			RowsTotal: len(records),
		})
	}

	out, err := tbl.WithColumns([]string{ColSentiment, ColKeywords, ColSummary}, func(i int) []string {
		return []string{
			string(results[i].Sentiment),
			jsonArray(results[i].Keywords),
			results[i].Summary,
		}
	})
	if err != nil {
		return nil, metrics.Snapshot(), err
	}

	snap := metrics.Snapshot()
	b.emit(Event{
		Kind:      EventRunCompleted,
		RunID:     runID,
		Batches:   len(batches),
		RowsDone:  snap.RowsProcessed,
		RowsTotal: len(records),
	})
	return out, snap, nil
}

func (b *BatchEnricher) runBatch(ctx context.Context, batch []enrich.Record, results []enrich.Result, metrics *RunMetrics, runID string) error {
	store := b.cache.Store()
	model := b.annotator.Model()

	// Split the batch into cache hits and distinct misses. In-batch
	// duplicates of a miss ride along with the first occurrence.
	var misses []*dispatchItem
	byKey := make(map[string]*dispatchItem)
	for _, rec := range batch {
		metrics.rowsProcessed.Add(1)
		key := cache.Key(rec.Text, model, cache.TaskVersion)
		if res, ok := store.Get(key); ok {
			metrics.cacheHits.Add(1)
			results[rec.Index] = res
			continue
		}
		if item, ok := byKey[key]; ok {
			item.dups = append(item.dups, rec.Index)
			continue
		}
		item := &dispatchItem{rec: rec, key: key}
		byKey[key] = item
		misses = append(misses, item)
	}
	if len(misses) == 0 {
		return nil
	}

	out, err := worker.ProcessAll(ctx, misses, core.ProcessFunc[*dispatchItem, dispatchOut](b.dispatch(metrics)), worker.Options{
		Workers:        b.opts.Workers,
		MaxRetries:     b.opts.MaxRetries,
		RequestTimeout: b.opts.RequestTimeout,
		RateLimitRPS:   b.opts.RateLimitRPS,
	})
	if err != nil {
		return err
	}

	for _, r := range out {
		item := r.Input
		res := r.Output.res
		switch {
		case r.Err == nil && r.Output.fromCache:
			// Another run's in-flight call or stored entry served this key.
			metrics.cacheHits.Add(1)
		case r.Err == nil:
			metrics.apiCalls.Add(1)
		default:
			// Dispatched and failed: either the response did not parse or
			// the gateway gave up after retries. Degrade, don't abort.
			metrics.apiCalls.Add(1)
			metrics.failures.Add(1)
			res = enrich.Failed()
			b.emit(Event{
				Kind:  EventRowFailed,
				RunID: runID,
				Row:   item.rec.Index,
				Err:   r.Err,
			})
		}
		results[item.rec.Index] = res
		// Duplicates are served from the coalesced result, never
		// re-dispatched.
		for _, idx := range item.dups {
			metrics.cacheHits.Add(1)
			results[idx] = res
		}
	}
	return nil
}

// dispatch produces the per-item processor run by the worker pool. All
// gateway traffic funnels through the cache coalescer so concurrent runs
// sharing a store never duplicate a call for the same key.
func (b *BatchEnricher) dispatch(metrics *RunMetrics) func(context.Context, *dispatchItem) (dispatchOut, error) {
	store := b.cache.Store()
	return func(ctx context.Context, item *dispatchItem) (dispatchOut, error) {
		res, fromCache, err := b.cache.GetOrCompute(item.key, func() (enrich.Result, error) {
			start := time.Now()
			out, cerr := b.annotator.Enrich(ctx, item.rec.Text)
			metrics.addLatency(time.Since(start))
			if cerr != nil {
				if enrich.IsMalformed(cerr) {
					// The failed variant is a deterministic computed result;
					// caching it keeps re-runs from paying for it again.
					_ = store.Put(item.key, out)
				}
				return out, cerr
			}
			_ = store.Put(item.key, out)
			return out, nil
		})
		return dispatchOut{res: res, fromCache: fromCache}, err
	}
}

func partition(records []enrich.Record, size int) [][]enrich.Record {
	if len(records) == 0 {
		return nil
	}
	out := make([][]enrich.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func jsonArray(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vals)
	if err != nil {
		// Should not happen for []string, but keep output stable.
		return "[]"
	}
	return string(b)
}
