package cache_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/smartetl/annotator/internal/enrich"
	"github.com/smartetl/annotator/internal/enrich/cache"
)

func TestKeyIsPure(t *testing.T) {
	t.Parallel()

	a := cache.Key("great product", "model-a", cache.TaskVersion)
	b := cache.Key("great product", "model-a", cache.TaskVersion)
	if a != b {
		t.Fatalf("identical inputs produced different keys: %s != %s", a, b)
	}
}

func TestKeyDiscriminates(t *testing.T) {
	t.Parallel()

	base := cache.Key("great product", "model-a", cache.TaskVersion)
	if cache.Key("terrible product", "model-a", cache.TaskVersion) == base {
		t.Fatal("distinct texts share a key")
	}
	if cache.Key("great product", "model-b", cache.TaskVersion) == base {
		t.Fatal("distinct models share a key")
	}
	if cache.Key("great product", "model-a", "enrichment-v2") == base {
		t.Fatal("distinct task versions share a key")
	}
}

func TestKeyNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	a := cache.Key("great   product", "m", cache.TaskVersion)
	b := cache.Key("  great product\n", "m", cache.TaskVersion)
	if a != b {
		t.Fatal("whitespace variants should share a key")
	}
}

func TestKeyNoCollisionsInCorpus(t *testing.T) {
	t.Parallel()

	const n = 10000
	seen := make(map[string]int, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("review number %d: product was %d/10", i, i%11)
		key := cache.Key(text, "model-a", cache.TaskVersion)
		if prev, ok := seen[key]; ok {
			t.Fatalf("collision between corpus entries %d and %d", prev, i)
		}
		seen[key] = i
	}
}

func TestMemoryGetPut(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory()
	if _, ok := m.Get("absent"); ok {
		t.Fatal("unexpected hit for absent key")
	}

	want := enrich.Result{Sentiment: enrich.SentimentPositive, Keywords: []string{"price"}, Summary: "ok"}
	if err := m.Put("k", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := m.Get("k")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got.Sentiment != want.Sentiment || got.Summary != want.Summary {
		t.Fatalf("got %#v, want %#v", got, want)
	}

	// Overwrite replaces wholesale.
	if err := m.Put("k", enrich.Result{Sentiment: enrich.SentimentNegative}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ = m.Get("k")
	if got.Sentiment != enrich.SentimentNegative || len(got.Keywords) != 0 {
		t.Fatalf("overwrite did not replace: %#v", got)
	}
}

func TestCoalescerSingleComputePerKey(t *testing.T) {
	t.Parallel()

	c := cache.NewCoalescer(cache.NewMemory())
	var computes atomic.Int64
	release := make(chan struct{})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]enrich.Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := c.GetOrCompute("same-key", func() (enrich.Result, error) {
				computes.Add(1)
				<-release
				out := enrich.Result{Sentiment: enrich.SentimentPositive, Summary: "shared"}
				_ = c.Store().Put("same-key", out)
				return out, nil
			})
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = res
		}(i)
	}

	// Give every caller a chance to pile onto the in-flight call, then
	// let the single compute finish.
	close(release)
	wg.Wait()

	if got := computes.Load(); got != 1 {
		t.Fatalf("expected 1 compute, got %d", got)
	}
	for i, res := range results {
		if res.Summary != "shared" {
			t.Fatalf("caller %d got %#v", i, res)
		}
	}
}

func TestCoalescerServesStoredEntryWithoutCompute(t *testing.T) {
	t.Parallel()

	m := cache.NewMemory()
	_ = m.Put("k", enrich.Result{Sentiment: enrich.SentimentNeutral, Summary: "cached"})
	c := cache.NewCoalescer(m)

	res, fromCache, err := c.GetOrCompute("k", func() (enrich.Result, error) {
		t.Fatal("compute must not run for a stored entry")
		return enrich.Result{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fromCache {
		t.Fatal("expected fromCache")
	}
	if res.Summary != "cached" {
		t.Fatalf("got %#v", res)
	}
}

func TestCoalescerPropagatesComputeError(t *testing.T) {
	t.Parallel()

	c := cache.NewCoalescer(cache.NewMemory())
	boom := errors.New("gateway down")
	_, fromCache, err := c.GetOrCompute("k", func() (enrich.Result, error) {
		return enrich.Result{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if fromCache {
		t.Fatal("errored compute must not report fromCache")
	}

	// The failed computation left nothing behind; a later call computes
	// again.
	var computes atomic.Int64
	_, _, err = c.GetOrCompute("k", func() (enrich.Result, error) {
		computes.Add(1)
		return enrich.Result{Sentiment: enrich.SentimentPositive}, nil
	})
	if err != nil || computes.Load() != 1 {
		t.Fatalf("expected fresh compute after failure, err=%v computes=%d", err, computes.Load())
	}
}
