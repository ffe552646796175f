package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithAttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithProvider(ctx, "mercadopago")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithSessID(ctx, "sess-1")

	With(ctx, &base).Info().Msg("hello")

	line := buf.String()
	for _, want := range []string{
		`"trace_id":"trace-1"`,
		`"provider":"mercadopago"`,
		`"user_id":"user-1"`,
		`"session_id":"sess-1"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestWithIgnoresEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	With(context.Background(), &base).Info().Msg("hello")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected field in %s", buf.String())
	}
}

func TestRedact(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"12345678", "***"},
		{"sk_live_abcdef123456", "sk_l...56"},
	}
	for _, tc := range cases {
		if got := Redact(tc.in); got != tc.want {
			t.Errorf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
