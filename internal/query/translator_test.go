package query_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/smartetl/annotator/internal/llm"
	"github.com/smartetl/annotator/internal/query"
	"github.com/smartetl/annotator/pkg/pipeline/core"
	"github.com/smartetl/annotator/pkg/pipeline/schema"
)

func reviewsContract() schema.TableContract {
	return schema.TableContract{
		Table: "reviews",
		Fields: []schema.Field{
			{Name: "review_id", Type: "TEXT"},
			{Name: "text", Type: "TEXT"},
			{Name: "sentiment", Type: "TEXT"},
			{Name: "keywords", Type: "TEXT"},
			{Name: "summary", Type: "TEXT"},
		},
	}
}

func TestExtractSQL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare statement",
			raw:  "SELECT * FROM reviews WHERE sentiment = 'negative'",
			want: "SELECT * FROM reviews WHERE sentiment = 'negative'",
		},
		{
			name: "trailing semicolon",
			raw:  "SELECT count(*) FROM reviews;",
			want: "SELECT count(*) FROM reviews",
		},
		{
			name: "fenced with language tag",
			raw:  "```sql\nSELECT review_id FROM reviews\n```",
			want: "SELECT review_id FROM reviews",
		},
		{
			name: "fenced without tag",
			raw:  "```\nSELECT 1\n```",
			want: "SELECT 1",
		},
		{
			name: "surrounding prose",
			raw:  "Sure! Here is the query you asked for:\n\nSELECT text FROM reviews LIMIT 5\n",
			want: "SELECT text FROM reviews LIMIT 5",
		},
		{
			name: "with clause",
			raw:  "WITH neg AS (SELECT * FROM reviews WHERE sentiment = 'negative') SELECT count(*) FROM neg",
			want: "WITH neg AS (SELECT * FROM reviews WHERE sentiment = 'negative') SELECT count(*) FROM neg",
		},
		{
			name: "semicolon inside string literal",
			raw:  "SELECT * FROM reviews WHERE text = 'a; b'",
			want: "SELECT * FROM reviews WHERE text = 'a; b'",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := query.ExtractSQL(tc.raw)
			if err != nil {
				t.Fatalf("ExtractSQL(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ExtractSQL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestExtractSQLRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty output", raw: ""},
		{name: "prose only", raw: "I cannot answer that question."},
		{name: "two statements", raw: "SELECT 1; SELECT 2"},
		{name: "statement then drop", raw: "SELECT * FROM reviews; DROP TABLE reviews"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := query.ExtractSQL(tc.raw); err == nil {
				t.Fatalf("ExtractSQL(%q) accepted invalid output", tc.raw)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	var prompt string
	gateway := llm.GenerateFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.Prompt
		return "SELECT count(*) FROM reviews WHERE sentiment = 'negative'", nil
	})

	tr := query.NewTranslator(gateway, "stub-model")
	tq, err := tr.Translate(context.Background(), "how many negative reviews?", reviewsContract())
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if tq.SQL != "SELECT count(*) FROM reviews WHERE sentiment = 'negative'" {
		t.Fatalf("sql = %q", tq.SQL)
	}
	if tq.Schema.Table != "reviews" {
		t.Fatalf("schema table = %q", tq.Schema.Table)
	}

	// The prompt must carry the full schema snapshot and the question.
	for _, want := range []string{"reviews", "review_id", "sentiment", "keywords", "how many negative reviews?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestTranslateEmptyQuestion(t *testing.T) {
	t.Parallel()

	gateway := llm.GenerateFunc(func(_ context.Context, _ llm.Request) (string, error) {
		t.Fatal("gateway must not be called for an empty question")
		return "", nil
	})

	tr := query.NewTranslator(gateway, "stub-model")
	_, err := tr.Translate(context.Background(), "   ", reviewsContract())
	var terr *query.TranslationError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
}

func TestTranslateRetriesTransientGatewayErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	gateway := llm.GenerateFunc(func(_ context.Context, _ llm.Request) (string, error) {
		if calls.Add(1) < 3 {
			return "", &core.TransientError{Err: errors.New("rate limited")}
		}
		return "SELECT 1", nil
	})

	tr := query.NewTranslator(gateway, "stub-model")
	tq, err := tr.Translate(context.Background(), "anything there?", reviewsContract())
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if tq.SQL != "SELECT 1" {
		t.Fatalf("sql = %q", tq.SQL)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 gateway calls, got %d", got)
	}
}

func TestTranslateDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	gateway := llm.GenerateFunc(func(_ context.Context, _ llm.Request) (string, error) {
		calls.Add(1)
		return "", errors.New("invalid request")
	})

	tr := query.NewTranslator(gateway, "stub-model")
	_, err := tr.Translate(context.Background(), "how many rows?", reviewsContract())
	var terr *query.TranslationError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 gateway call, got %d", got)
	}
}

func TestTranslateUnparseableResponse(t *testing.T) {
	t.Parallel()

	gateway := llm.GenerateFunc(func(_ context.Context, _ llm.Request) (string, error) {
		return "I don't know how to write that query.", nil
	})

	tr := query.NewTranslator(gateway, "stub-model")
	_, err := tr.Translate(context.Background(), "what's the vibe?", reviewsContract())
	var terr *query.TranslationError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	var uerr *query.UnsafeQueryError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected wrapped UnsafeQueryError, got %v", err)
	}
}
