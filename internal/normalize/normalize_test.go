package normalize

import (
	"context"
	"strings"
	"testing"

	"github.com/swiftlybot/yomiage/internal/dictionary"
	"github.com/swiftlybot/yomiage/internal/store"
)

// fixedSnapshot serves a constant snapshot regardless of IDs.
type fixedSnapshot struct {
	snap dictionary.Snapshot
}

func (f fixedSnapshot) Snapshot(context.Context, string, string) dictionary.Snapshot {
	return f.snap
}

func newTestNormalizer(snap dictionary.Snapshot, maxLen int) *Normalizer {
	return New(fixedSnapshot{snap: snap}, maxLen)
}

func TestNormalizeMentions(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(dictionary.Snapshot{}, 0)
	nctx := Context{
		ResolveUser: func(id string) (string, bool) {
			if id == "42" {
				return "たろう", true
			}
			return "", false
		},
		ResolveRole: func(id string) (string, bool) {
			if id == "7" {
				return "mods", true
			}
			return "", false
		},
	}

	tests := []struct {
		in   string
		want string
	}{
		{"hi <@42>", "hi あっとたろう"},
		{"hi <@!42>", "hi あっとたろう"},
		{"hi <@99>", "hi <@99>"}, // resolver miss keeps the token
		{"ping <@&7>", "ping ろーる:mods"},
		{"ping <@&8>", "ping <@&8>"},
		{"<:wave:123456>", "えもじ:wave"},
		{"<a:party_parrot:99>", "えもじ:party_parrot"},
		{"https://x.test/a?b=1 ok", "リンク省略 ok"},
		{"see http://a.test and https://b.test", "see リンク省略 and リンク省略"},
	}
	for _, tt := range tests {
		if got := n.Normalize(context.Background(), tt.in, nctx); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeScopeOrder(t *testing.T) {
	t.Parallel()

	// Guild rewrites "cat" to "ねこ", then the user tier rewrites that to
	// "CAT". The earliest scope wins the collision and later scopes see its
	// output.
	n := newTestNormalizer(dictionary.Snapshot{
		Guild: []store.Entry{{Key: "cat", Value: "ねこ"}},
		User:  []store.Entry{{Key: "ねこ", Value: "CAT"}},
	}, 0)

	if got := n.Normalize(context.Background(), "cat", Context{}); got != "CAT" {
		t.Errorf("Normalize(\"cat\") = %q, want %q", got, "CAT")
	}
}

func TestNormalizeGlobalAppliesFirst(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(dictionary.Snapshot{
		Global: []store.Entry{{Key: "gh", Value: "ぎっとはぶ"}},
		Guild:  []store.Entry{{Key: "ぎっとはぶ", Value: "GitHub"}},
	}, 0)

	if got := n.Normalize(context.Background(), "gh", Context{}); got != "GitHub" {
		t.Errorf("Normalize(\"gh\") = %q, want %q", got, "GitHub")
	}
}

func TestNormalizeTruncation(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(dictionary.Snapshot{}, 70)
	long := strings.Repeat("あ", 80)

	got := n.Normalize(context.Background(), long, Context{})
	want := strings.Repeat("あ", 70) + "省略"
	if got != want {
		t.Errorf("Normalize(long) = %q, want 70 runes + marker", got)
	}

	// Exactly at the cap is untouched.
	exact := strings.Repeat("あ", 70)
	if got := n.Normalize(context.Background(), exact, Context{}); got != exact {
		t.Errorf("Normalize(exact) = %q, want unchanged", got)
	}
}

func TestNormalizeMaxLenOverride(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(dictionary.Snapshot{}, 70)
	long := strings.Repeat("x", 120)

	got := n.Normalize(context.Background(), long, Context{MaxLenOverride: 150})
	if got != long {
		t.Errorf("Normalize with 150 override truncated %d-rune text", len(long))
	}

	got = n.Normalize(context.Background(), strings.Repeat("x", 160), Context{MaxLenOverride: 150})
	if want := strings.Repeat("x", 150) + "省略"; got != want {
		t.Errorf("Normalize over override = %q, want 150 runes + marker", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	// A second pass over already-normalized text fires no further
	// substitutions because rewritten tokens no longer match.
	n := newTestNormalizer(dictionary.Snapshot{
		Guild: []store.Entry{{Key: "cat", Value: "ねこ"}},
	}, 70)
	nctx := Context{
		ResolveUser: func(string) (string, bool) { return "たろう", true },
	}

	in := "cat <@42> https://x.test/y"
	once := n.Normalize(context.Background(), in, nctx)
	twice := n.Normalize(context.Background(), once, nctx)
	if once != twice {
		t.Errorf("second pass changed text: %q -> %q", once, twice)
	}
}
