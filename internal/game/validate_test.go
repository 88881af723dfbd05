package game

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seanwh01/football-player-trivia-sub000/internal/domain"
)

var mahomesField = []domain.PlayerRecord{
	{FirstName: "Patrick", LastName: "Mahomes"},
	{FirstName: "Blaine", LastName: "Gabbert"},
}

func TestLocalVerdict(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		correct bool
	}{
		{"full name", "Patrick Mahomes", true},
		{"first name only", "patrick", true},
		{"last name only", "MAHOMES", true},
		{"extra whitespace", "  Patrick   Mahomes ", true},
		{"contains full name", "it has to be patrick mahomes right", true},
		{"second candidate", "Gabbert", true},
		{"wrong player", "Josh Allen", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := localVerdict(tt.text, mahomesField)
			if v.Correct != tt.correct {
				t.Fatalf("localVerdict(%q).Correct = %v, want %v (message %q)", tt.text, v.Correct, tt.correct, v.Message)
			}
		})
	}
}

type stubValidator struct {
	verdict domain.Verdict
	err     error
	delay   time.Duration
}

func (s stubValidator) Validate(ctx context.Context, _ string, _ []domain.PlayerRecord, _ domain.Question) (domain.Verdict, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.Verdict{}, ctx.Err()
		}
	}
	return s.verdict, s.err
}

func TestResolveVerdictNilValidator(t *testing.T) {
	v := resolveVerdict(context.Background(), nil, time.Second, "mahomes", mahomesField, domain.Question{})
	if !v.Correct {
		t.Fatalf("expected local fallback to accept, got %+v", v)
	}
}

func TestResolveVerdictServiceWins(t *testing.T) {
	want := domain.Verdict{Correct: true, Message: "close enough"}
	v := resolveVerdict(context.Background(), stubValidator{verdict: want}, time.Second, "patric mahoms", mahomesField, domain.Question{})
	if v != want {
		t.Fatalf("expected service verdict %+v, got %+v", want, v)
	}
}

func TestResolveVerdictFallsBackOnError(t *testing.T) {
	v := resolveVerdict(context.Background(), stubValidator{err: errors.New("boom")}, time.Second, "mahomes", mahomesField, domain.Question{})
	if !v.Correct {
		t.Fatalf("expected local fallback after service error, got %+v", v)
	}
}

func TestResolveVerdictFallsBackOnTimeout(t *testing.T) {
	slow := stubValidator{verdict: domain.Verdict{Correct: false}, delay: time.Minute}
	start := time.Now()
	v := resolveVerdict(context.Background(), slow, 50*time.Millisecond, "mahomes", mahomesField, domain.Question{})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("resolveVerdict blocked for %v", elapsed)
	}
	if !v.Correct {
		t.Fatalf("expected local fallback after timeout, got %+v", v)
	}
}

func TestTemplatedHint(t *testing.T) {
	q := domain.Question{Position: "QB", Team: "KC", Year: 2023}

	general := templatedHint(q, domain.HintGeneral, mahomesField)
	if !strings.Contains(general, "QB") || !strings.Contains(general, "KC") {
		t.Fatalf("general hint missing question facts: %q", general)
	}
	if strings.Contains(general, "P.M.") {
		t.Fatalf("general hint leaked initials: %q", general)
	}

	obvious := templatedHint(q, domain.HintObvious, mahomesField)
	if !strings.Contains(obvious, "P.M.") {
		t.Fatalf("obvious hint missing initials: %q", obvious)
	}
	if strings.Contains(obvious, "Mahomes") {
		t.Fatalf("obvious hint gave the name away: %q", obvious)
	}
}
