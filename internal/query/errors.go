package query

import "fmt"

// TranslationError reports that no single SQL statement could be obtained
// for a question: the gateway failed after retry, or its response did not
// contain exactly one parseable statement.
type TranslationError struct {
	Question string
	Reason   string
	Err      error
}

func (e *TranslationError) Error() string {
	if e == nil {
		return "translation error"
	}
	if e.Err != nil {
		return fmt.Sprintf("translate %q: %s: %v", e.Question, e.Reason, e.Err)
	}
	return fmt.Sprintf("translate %q: %s", e.Question, e.Reason)
}

func (e *TranslationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnsafeQueryError reports a statement outside the safe read-only subset.
// The statement never reaches the storage backend.
type UnsafeQueryError struct {
	SQL    string
	Reason string
}

func (e *UnsafeQueryError) Error() string {
	if e == nil {
		return "unsafe query"
	}
	return fmt.Sprintf("unsafe query: %s (sql: %s)", e.Reason, e.SQL)
}

// SchemaMismatchError reports a reference to a table or column that does
// not exist in the known schema.
type SchemaMismatchError struct {
	SQL string
	Ref string
}

func (e *SchemaMismatchError) Error() string {
	if e == nil {
		return "schema mismatch"
	}
	return fmt.Sprintf("schema mismatch: unknown reference %q (sql: %s)", e.Ref, e.SQL)
}
