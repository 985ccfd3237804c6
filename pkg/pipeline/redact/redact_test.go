package redact_test

import (
	"strings"
	"testing"

	"github.com/smartetl/annotator/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		mustLose string
	}{
		{"auth failed: Bearer abc.def.ghi", "abc.def.ghi"},
		{"bad config: api_key=sk-12345", "sk-12345"},
		{"GEMINI_API_KEY: AIzaSyExample", "AIzaSyExample"},
		{"request to https://example.com/v1?key=topsecret&x=1 failed", "topsecret"},
	}
	for _, tc := range cases {
		out := redact.Secrets(tc.in)
		if strings.Contains(out, tc.mustLose) {
			t.Errorf("Secrets(%q) = %q still contains %q", tc.in, out, tc.mustLose)
		}
	}
}

func TestSecretsLeavesPlainMessages(t *testing.T) {
	t.Parallel()

	in := "row 3: malformed model response: invalid json"
	if got := redact.Secrets(in); got != in {
		t.Fatalf("plain message changed: %q", got)
	}
}
