// Package smartreply picks the messages most related to the latest one in a
// group and asks a completion service for short reply suggestions.
package smartreply

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"chatter/internal/models"
)

const (
	// SuggestionCount is the exact number of replies returned.
	SuggestionCount = 3
	contextSize     = 5
)

// Greetings are returned for a group with no messages yet.
var Greetings = []string{
	"Hi everyone!",
	"Hello, how is everyone doing?",
	"Hey there!",
}

// FallbackReplies are returned when the completion service fails.
var FallbackReplies = []string{
	"Thanks for sharing!",
	"I'll get back to you on that.",
	"That's interesting!",
}

// fillers pad short completion results, in order, skipping duplicates.
var fillers = []string{
	"Thanks for sharing!",
	"I see what you mean.",
	"Interesting point!",
	"Let me think about that.",
	"I agree!",
	"What does everyone else think?",
	"Good idea!",
	"That makes sense.",
}

// Completer turns conversation context into candidate replies for username.
type Completer interface {
	SuggestReplies(ctx context.Context, history []models.Message, username string) ([]string, error)
}

type Composer struct {
	completer Completer
	score     Scorer
}

func NewComposer(completer Completer, alg Algorithm) *Composer {
	return &Composer{
		completer: completer,
		score:     NewScorer(alg),
	}
}

// Suggest returns exactly SuggestionCount replies for username given the
// group's history in ascending creation order. It never fails.
func (c *Composer) Suggest(ctx context.Context, history []models.Message, username string) []string {
	if len(history) == 0 {
		return append([]string(nil), Greetings...)
	}

	selected := c.SelectContext(history)

	replies, err := c.completer.SuggestReplies(ctx, selected, username)
	if err != nil {
		slog.Warn("[SMARTREPLY] Completion failed, using fallback replies", "user", username, "error", err)
		return append([]string(nil), FallbackReplies...)
	}

	return pad(replies)
}

// SelectContext returns up to five messages most similar to the latest one,
// followed by the latest message, in chronological order. Without usable
// embeddings it falls back to the five most recent messages.
func (c *Composer) SelectContext(history []models.Message) []models.Message {
	latest := history[len(history)-1]

	if len(latest.Embedding) == 0 {
		return recent(history)
	}

	type scored struct {
		index int
		score float64
	}
	var candidates []scored
	for i, m := range history[:len(history)-1] {
		if len(m.Embedding) == 0 {
			continue
		}
		s := c.score(latest.Embedding, m.Embedding)
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		candidates = append(candidates, scored{index: i, score: s})
	}
	if len(candidates) == 0 {
		return recent(history)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > contextSize {
		candidates = candidates[:contextSize]
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].index < candidates[j].index
	})

	selected := make([]models.Message, 0, len(candidates)+1)
	for _, s := range candidates {
		selected = append(selected, history[s.index])
	}
	return append(selected, latest)
}

func recent(history []models.Message) []models.Message {
	if len(history) <= contextSize {
		return history
	}
	return history[len(history)-contextSize:]
}

// pad trims and de-duplicates replies, tops them up from fillers and cuts the
// result to SuggestionCount.
func pad(replies []string) []string {
	out := make([]string, 0, SuggestionCount)
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(out) == SuggestionCount {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, r := range replies {
		add(r)
	}
	for _, f := range fillers {
		add(f)
	}
	return out
}
