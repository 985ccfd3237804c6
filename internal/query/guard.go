package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/smartetl/annotator/pkg/pipeline/schema"
	"github.com/smartetl/annotator/pkg/pipeline/table"
)

// DefaultRowCap bounds result sets when the statement carries no LIMIT.
const DefaultRowCap = 200

// Backend executes validated SQL. Only the guard talks to it with
// model-produced statements.
type Backend interface {
	Query(ctx context.Context, sql string) (*table.Table, error)
}

// Guard validates translated SQL before it reaches the storage backend:
// read-only statements only, known schema references only, bounded row
// counts.
type Guard struct {
	backend Backend
	rowCap  int
}

func NewGuard(backend Backend, rowCap int) *Guard {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	return &Guard{backend: backend, rowCap: rowCap}
}

// Execute validates the statement against the schema snapshot and runs it.
// It returns the result rows and the SQL actually executed (the input plus
// an appended LIMIT when none was present) for caller transparency.
func (g *Guard) Execute(ctx context.Context, sqlText string, contract schema.TableContract) (*table.Table, string, error) {
	validated, err := g.Validate(sqlText, contract)
	if err != nil {
		return nil, "", err
	}
	rows, err := g.backend.Query(ctx, validated)
	if err != nil {
		return nil, validated, err
	}
	return rows, validated, nil
}

// Validate checks the statement without executing it and returns the form
// that would be executed.
func (g *Guard) Validate(sqlText string, contract schema.TableContract) (string, error) {
	stripped := stripComments(sqlText)

	stmts := splitStatements(stripped)
	if len(stmts) == 0 {
		return "", &UnsafeQueryError{SQL: sqlText, Reason: "empty statement"}
	}
	if len(stmts) > 1 {
		return "", &UnsafeQueryError{SQL: sqlText, Reason: "multiple statements"}
	}
	stmt := stmts[0]

	toks := lex(stmt)
	if len(toks) == 0 {
		return "", &UnsafeQueryError{SQL: sqlText, Reason: "empty statement"}
	}

	head := strings.ToUpper(toks[0].text)
	if toks[0].kind != tokWord || (head != "SELECT" && head != "WITH") {
		return "", &UnsafeQueryError{SQL: sqlText, Reason: "only SELECT statements are allowed"}
	}

	for _, t := range toks {
		if t.kind != tokWord {
			continue
		}
		if _, bad := forbiddenKeywords[strings.ToUpper(t.text)]; bad {
			return "", &UnsafeQueryError{SQL: sqlText, Reason: "forbidden keyword " + strings.ToUpper(t.text)}
		}
	}

	if ref, ok := checkReferences(toks, contract); !ok {
		return "", &SchemaMismatchError{SQL: sqlText, Ref: ref}
	}

	out := stmt
	if !hasKeyword(toks, "LIMIT") {
		out = out + " LIMIT " + strconv.Itoa(g.rowCap)
	}
	return out, nil
}

// forbiddenKeywords are rejected anywhere in the statement, not just at
// the head: a writing keyword has no business inside a read-only query.
var forbiddenKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {},
	"CREATE": {}, "REPLACE": {}, "TRUNCATE": {}, "ATTACH": {}, "DETACH": {},
	"PRAGMA": {}, "VACUUM": {}, "REINDEX": {}, "GRANT": {}, "REVOKE": {},
}

// selectKeywords are the non-identifier words of the allowed SELECT
// grammar. Anything else that is not a function call, alias, table, or
// column is a schema mismatch.
var selectKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "GROUP": {}, "BY": {}, "HAVING": {},
	"ORDER": {}, "LIMIT": {}, "OFFSET": {}, "AS": {}, "AND": {}, "OR": {},
	"NOT": {}, "IN": {}, "IS": {}, "NULL": {}, "LIKE": {}, "GLOB": {},
	"BETWEEN": {}, "DISTINCT": {}, "ALL": {}, "CASE": {}, "WHEN": {},
	"THEN": {}, "ELSE": {}, "END": {}, "JOIN": {}, "LEFT": {}, "RIGHT": {},
	"INNER": {}, "OUTER": {}, "CROSS": {}, "ON": {}, "USING": {}, "ASC": {},
	"DESC": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {}, "EXISTS": {},
	"CAST": {}, "COLLATE": {}, "ESCAPE": {}, "WITH": {}, "RECURSIVE": {},
	"NULLS": {}, "FIRST": {}, "LAST": {}, "TRUE": {}, "FALSE": {},
}

// checkReferences confirms every identifier resolves against the schema
// snapshot: the known table, its columns, aliases introduced by the
// statement itself, or a function call. Returns the offending reference
// when one does not.
func checkReferences(toks []token, contract schema.TableContract) (string, bool) {
	known := make(map[string]struct{}, len(contract.Fields)+1)
	known[strings.ToLower(contract.Table)] = struct{}{}
	for _, f := range contract.Fields {
		known[strings.ToLower(f.Name)] = struct{}{}
	}

	// First pass: collect aliases (AS name, FROM/JOIN table name, CTE
	// names) so forward references resolve.
	aliases := make(map[string]struct{})
	for i, t := range toks {
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		upper := strings.ToUpper(t.text)
		if t.kind == tokWord && upper == "AS" && i+1 < len(toks) {
			next := toks[i+1]
			if next.kind == tokWord || next.kind == tokQuoted {
				aliases[strings.ToLower(next.text)] = struct{}{}
			}
			// "name AS (" is a CTE definition; the name comes before AS.
			if next.kind == tokPunct && next.text == "(" && i > 0 {
				prev := toks[i-1]
				if prev.kind == tokWord || prev.kind == tokQuoted {
					aliases[strings.ToLower(prev.text)] = struct{}{}
				}
			}
		}
		// "FROM tbl alias" / "JOIN tbl alias" without AS.
		if t.kind == tokWord && (upper == "FROM" || upper == "JOIN") && i+2 < len(toks) {
			tbl := toks[i+1]
			alias := toks[i+2]
			if (tbl.kind == tokWord || tbl.kind == tokQuoted) &&
				(alias.kind == tokWord || alias.kind == tokQuoted) {
				if _, kw := selectKeywords[strings.ToUpper(alias.text)]; !kw {
					aliases[strings.ToLower(alias.text)] = struct{}{}
				}
			}
		}
	}

	for i, t := range toks {
		if t.kind != tokWord && t.kind != tokQuoted {
			continue
		}
		if t.kind == tokWord {
			if _, kw := selectKeywords[strings.ToUpper(t.text)]; kw {
				continue
			}
			// A word directly followed by "(" is a function call. Write
			// operations are already excluded by keyword, so unknown
			// functions only fail at execution time.
			if i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == "(" {
				continue
			}
		}
		name := strings.ToLower(t.text)
		// Qualified references arrive as separate tokens around a dot.
		if _, ok := known[name]; ok {
			continue
		}
		if _, ok := aliases[name]; ok {
			continue
		}
		return t.text, false
	}
	return "", true
}

func hasKeyword(toks []token, kw string) bool {
	for _, t := range toks {
		if t.kind == tokWord && strings.EqualFold(t.text, kw) {
			return true
		}
	}
	return false
}

// stripComments removes -- line comments and /* */ block comments outside
// quoted strings.
func stripComments(s string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lex produces a flat token stream: words, quoted identifiers, numbers,
// string literals, punctuation. It is deliberately not a SQL parser; the
// guard only needs identifier and keyword visibility.
func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			j := i + 1
			for j < len(s) && s[j] != '\'' {
				j++
			}
			toks = append(toks, token{kind: tokString, text: s[i+1 : min(j, len(s))]})
			i = j + 1
		case c == '"' || c == '`':
			quote := c
			j := i + 1
			for j < len(s) && s[j] != quote {
				j++
			}
			toks = append(toks, token{kind: tokQuoted, text: s[i+1 : min(j, len(s))]})
			i = j + 1
		case isWordByte(c) && !(c >= '0' && c <= '9'):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: s[i:j]})
			i = j
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (isWordByte(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: s[i:j]})
			i = j
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks
}
