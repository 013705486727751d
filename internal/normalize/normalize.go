// Package normalize rewrites raw chat text into a speakable form: platform
// tokens become spoken words, URLs collapse, dictionaries substitute, and the
// result is capped to a readable length.
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/swiftlybot/yomiage/internal/dictionary"
	"github.com/swiftlybot/yomiage/internal/store"
)

var (
	userMentionRe = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRe = regexp.MustCompile(`<@&(\d+)>`)
	emojiRe       = regexp.MustCompile(`<a?:([a-zA-Z0-9_]+):\d+>`)
	urlRe         = regexp.MustCompile(`https?://\S+`)
)

// TruncationMarker is appended whenever the cap cuts the text.
const TruncationMarker = "省略"

// Context carries the per-message inputs of one normalization pass. The
// resolvers look up names in the scope of the message; a nil resolver or a
// miss leaves the token as-is.
type Context struct {
	GuildID string
	UserID  string

	// ResolveUser maps a user ID to a display name.
	ResolveUser func(id string) (string, bool)

	// ResolveRole maps a role ID to a role name.
	ResolveRole func(id string) (string, bool)

	// MaxLenOverride, when positive, replaces the normalizer's configured
	// cap for this pass.
	MaxLenOverride int
}

// Snapshotter provides the dictionary entries for one pass.
type Snapshotter interface {
	Snapshot(ctx context.Context, guildID, userID string) dictionary.Snapshot
}

// Normalizer applies the rewrite pipeline. Safe for concurrent use.
type Normalizer struct {
	dict   Snapshotter
	maxLen int
}

// New creates a Normalizer over the given dictionary source. maxLen is the
// default truncation cap in runes; values <= 0 fall back to 70.
func New(dict Snapshotter, maxLen int) *Normalizer {
	if maxLen <= 0 {
		maxLen = 70
	}
	return &Normalizer{dict: dict, maxLen: maxLen}
}

// Normalize rewrites text for speech. Steps run in a fixed order: user
// mentions, role mentions, custom emoji, URLs, then dictionary substitution
// global first, guild second, user last, and finally truncation. Given the
// same inputs and dictionary snapshot the result is deterministic.
func (n *Normalizer) Normalize(ctx context.Context, text string, nctx Context) string {
	text = userMentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := userMentionRe.FindStringSubmatch(tok)[1]
		if nctx.ResolveUser != nil {
			if name, ok := nctx.ResolveUser(id); ok {
				return "あっと" + name
			}
		}
		return tok
	})
	text = roleMentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		id := roleMentionRe.FindStringSubmatch(tok)[1]
		if nctx.ResolveRole != nil {
			if name, ok := nctx.ResolveRole(id); ok {
				return "ろーる:" + name
			}
		}
		return tok
	})
	text = emojiRe.ReplaceAllStringFunc(text, func(tok string) string {
		return "えもじ:" + emojiRe.FindStringSubmatch(tok)[1]
	})
	text = urlRe.ReplaceAllString(text, "リンク"+TruncationMarker)

	snap := n.dict.Snapshot(ctx, nctx.GuildID, nctx.UserID)
	text = applyEntries(text, snap.Global)
	text = applyEntries(text, snap.Guild)
	text = applyEntries(text, snap.User)

	maxLen := n.maxLen
	if nctx.MaxLenOverride > 0 {
		maxLen = nctx.MaxLenOverride
	}
	return Truncate(text, maxLen)
}

func applyEntries(text string, entries []store.Entry) string {
	for _, e := range entries {
		text = strings.ReplaceAll(text, e.Key, e.Value)
	}
	return text
}

// Truncate caps text at maxLen runes and appends the marker when it cuts.
func Truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return fmt.Sprintf("%s%s", string(runes[:maxLen]), TruncationMarker)
}
