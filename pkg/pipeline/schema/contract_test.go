package schema_test

import (
	"testing"

	"github.com/smartetl/annotator/pkg/pipeline/schema"
)

func TestNormalizeType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":         "TEXT",
		"TEXT":     "TEXT",
		"varchar":  "TEXT",
		"INTEGER":  "INTEGER",
		"BigInt":   "INTEGER",
		"REAL":     "REAL",
		"double":   "REAL",
		"NUMERIC":  "REAL",
		"  float ": "REAL",
		"blob":     "TEXT",
	}
	for raw, want := range cases {
		if got := schema.NormalizeType(raw); got != want {
			t.Errorf("NormalizeType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestHasColumn(t *testing.T) {
	t.Parallel()

	c := schema.TableContract{
		Table: "reviews",
		Fields: []schema.Field{
			{Name: "text", Type: "TEXT"},
			{Name: "Sentiment", Type: "TEXT"},
		},
	}
	if !c.HasColumn("sentiment") {
		t.Fatal("expected case-insensitive column match")
	}
	if c.HasColumn("rating") {
		t.Fatal("unexpected match for absent column")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	c := schema.TableContract{
		Table: "reviews",
		Fields: []schema.Field{
			{Name: "text", Type: "TEXT"},
			{Name: "rating", Type: "INTEGER"},
			{Name: "note"},
		},
	}
	want := "text (TEXT), rating (INTEGER), note (TEXT)"
	if got := c.Describe(); got != want {
		t.Fatalf("Describe() = %q, want %q", got, want)
	}
}
