package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

// PlayerLookup returns ordered candidate correct answers for a question
// filter. An empty result means the question should be resampled.
type PlayerLookup interface {
	TopPlayers(ctx context.Context, f domain.PlayerFilter) ([]domain.PlayerRecord, error)
}

// AnswerValidator is the external answer-validation collaborator. It may fail
// or time out; callers must fall back to local matching when it does.
type AnswerValidator interface {
	Validate(ctx context.Context, text string, candidates []domain.PlayerRecord, q domain.Question) (domain.Verdict, error)
}

// HintService is the external hint-generation collaborator.
type HintService interface {
	Hint(ctx context.Context, candidates []domain.PlayerRecord, q domain.Question, tier domain.HintTier) (string, error)
}

// resolveVerdict races the external validator against its deadline and
// resolves exactly once: either the service verdict or the deterministic
// local fallback. Round progression therefore never blocks on the service.
func resolveVerdict(ctx context.Context, v AnswerValidator, timeout time.Duration, text string, candidates []domain.PlayerRecord, q domain.Question) domain.Verdict {
	if v == nil {
		return localVerdict(text, candidates)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		verdict domain.Verdict
		err     error
	}
	ch := make(chan outcome, 1)
	go func() {
		verdict, err := v.Validate(ctx, text, candidates, q)
		ch <- outcome{verdict, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return localVerdict(text, candidates)
		}
		return out.verdict
	case <-ctx.Done():
		return localVerdict(text, candidates)
	}
}

// localVerdict is the deterministic fallback matcher: case-insensitive exact
// match against each candidate's full, first or last name, or a submission
// that contains the full name.
func localVerdict(text string, candidates []domain.PlayerRecord) domain.Verdict {
	sub := normalize(text)
	if sub == "" {
		return domain.Verdict{Correct: false, Message: "No answer submitted"}
	}
	for _, c := range candidates {
		full := normalize(c.FullName())
		if sub == full || sub == normalize(c.FirstName) || sub == normalize(c.LastName) ||
			(full != "" && strings.Contains(sub, full)) {
			return domain.Verdict{Correct: true, Message: "Correct: " + c.FullName()}
		}
	}
	return domain.Verdict{Correct: false, Message: "Not a match"}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// templatedHint builds a hint from the literal question facts when the hint
// service is unavailable. The obvious tier leans on the leading candidate
// without giving the name away outright.
func templatedHint(q domain.Question, tier domain.HintTier, candidates []domain.PlayerRecord) string {
	if tier == domain.HintObvious && len(candidates) > 0 {
		c := candidates[0]
		initials := ""
		if c.FirstName != "" {
			initials += strings.ToUpper(c.FirstName[:1]) + "."
		}
		if c.LastName != "" {
			initials += strings.ToUpper(c.LastName[:1]) + "."
		}
		return fmt.Sprintf("Initials %s, a %s for the %s in %d.", initials, q.Position, q.Team, q.Year)
	}
	return fmt.Sprintf("Think of who took the most snaps at %s for the %s in %d.", q.Position, q.Team, q.Year)
}
