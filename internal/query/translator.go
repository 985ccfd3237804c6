// Package query turns free-text questions into validated SQL against the
// enriched table: the translator asks the model for a statement, the guard
// is the sole trust boundary between model output and the storage engine.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/smartetl/annotator/internal/llm"
	"github.com/smartetl/annotator/pkg/pipeline/schema"
	"github.com/smartetl/annotator/pkg/pipeline/worker"
)

// translationTemperature leans deterministic: the same question over the
// same schema should translate the same way.
const translationTemperature = 0.0

const translateRetries = 2

// TranslatedQuery is the outcome of one translation. It carries the schema
// snapshot the statement was produced against; translations are never
// cached because the schema may change between calls.
type TranslatedQuery struct {
	Question string
	SQL      string
	Schema   schema.TableContract
}

// Translator converts a natural-language question plus a known table
// schema into a single SQL statement.
type Translator struct {
	gateway llm.Gateway
	model   string
}

func NewTranslator(gateway llm.Gateway, model string) *Translator {
	return &Translator{gateway: gateway, model: model}
}

// Translate produces exactly one SQL statement for the question, or a
// TranslationError.
func (t *Translator) Translate(ctx context.Context, question string, contract schema.TableContract) (TranslatedQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return TranslatedQuery{}, &TranslationError{Question: question, Reason: "empty question"}
	}

	prompt := buildTranslatePrompt(question, contract)
	raw, err := t.generateWithRetry(ctx, prompt)
	if err != nil {
		return TranslatedQuery{}, &TranslationError{Question: question, Reason: "gateway failed", Err: err}
	}

	sqlText, err := ExtractSQL(raw)
	if err != nil {
		return TranslatedQuery{}, &TranslationError{Question: question, Reason: "no single statement in response", Err: err}
	}

	return TranslatedQuery{Question: question, SQL: sqlText, Schema: contract}, nil
}

func (t *Translator) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= translateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		raw, err := t.gateway.Generate(ctx, llm.Request{
			Model:       t.model,
			Prompt:      prompt,
			Temperature: translationTemperature,
		})
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !worker.IsTransient(err) || attempt == translateRetries {
			return "", err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// buildTranslatePrompt embeds the schema snapshot so the model cannot
// invent nonexistent columns.
func buildTranslatePrompt(question string, contract schema.TableContract) string {
	var b strings.Builder
	b.WriteString("You are a natural-language-to-SQL translator for a SQLite database.\n\n")
	b.WriteString("TABLE: " + contract.Table + "\n")
	b.WriteString("COLUMNS: " + contract.Describe() + "\n")
	b.WriteString(`
Notes:
- "keywords" holds a JSON-encoded array of strings; match it with LIKE.
- "sentiment" is one of: positive, negative, neutral, unknown.

Rules:
- Return exactly ONE SQLite SELECT statement and nothing else.
- Use only the table and columns listed above.
- No INSERT/UPDATE/DELETE/DDL, no multiple statements, no explanations, no markdown.

QUESTION: `)
	b.WriteString(question)
	b.WriteString("\n\nSQL:")
	return b.String()
}

// ExtractSQL pulls exactly one SQL statement out of raw model output,
// stripping code fencing and surrounding prose. It fails if the output
// holds zero or more than one statement.
func ExtractSQL(raw string) (string, error) {
	s := extractFencedBlock(raw)
	s = strings.TrimSpace(s)

	// Drop prose ahead of the statement: the statement starts at the
	// first SELECT or WITH keyword.
	start := firstKeywordIndex(s, "SELECT", "WITH")
	if start < 0 {
		return "", &UnsafeQueryError{SQL: truncate(s, 200), Reason: "no SELECT statement found"}
	}
	s = s[start:]

	stmts := splitStatements(s)
	if len(stmts) == 0 {
		return "", &UnsafeQueryError{SQL: truncate(raw, 200), Reason: "no SELECT statement found"}
	}
	if len(stmts) > 1 {
		return "", &UnsafeQueryError{SQL: truncate(s, 200), Reason: "more than one statement"}
	}
	return strings.TrimSpace(stmts[0]), nil
}

// extractFencedBlock returns the contents of the first markdown code fence
// if present, otherwise the input unchanged.
func extractFencedBlock(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip a language tag like ```sql.
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, " ;") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func firstKeywordIndex(s string, keywords ...string) int {
	upper := strings.ToUpper(s)
	best := -1
	for _, kw := range keywords {
		idx := 0
		for {
			i := strings.Index(upper[idx:], kw)
			if i < 0 {
				break
			}
			pos := idx + i
			if isWordBoundary(upper, pos, len(kw)) {
				if best < 0 || pos < best {
					best = pos
				}
				break
			}
			idx = pos + len(kw)
		}
	}
	return best
}

func isWordBoundary(s string, pos, length int) bool {
	before := pos == 0 || !isWordByte(s[pos-1])
	after := pos+length >= len(s) || !isWordByte(s[pos+length])
	return before && after
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// splitStatements splits on semicolons outside quoted strings and drops
// empty segments.
func splitStatements(s string) []string {
	var stmts []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == ';':
			if t := strings.TrimSpace(cur.String()); t != "" {
				stmts = append(stmts, t)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if t := strings.TrimSpace(cur.String()); t != "" {
		stmts = append(stmts, t)
	}
	return stmts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
