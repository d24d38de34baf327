// Package consensus picks the majority answer across a run's attempts.
//
// Answers are compared by exact equality of a normalized prefix: lower-cased,
// trimmed, and truncated. There is no semantic or fuzzy matching.
package consensus

import (
	"strings"
	"unicode/utf8"

	"github.com/johnayoung/llm-verify/internal/runner"
)

// DefaultKeyLength is the number of runes of a normalized answer used for grouping.
const DefaultKeyLength = 100

// Options tunes aggregation.
type Options struct {
	// KeyLength bounds the normalized key; values < 1 use DefaultKeyLength.
	KeyLength int `yaml:"key_length" json:"key_length" validate:"gte=0"`

	// IgnoreEmpty keeps attempts without a parsed answer from winning.
	// They still count toward TotalAttempts.
	IgnoreEmpty bool `yaml:"ignore_empty_answers" json:"ignore_empty_answers"`
}

// Result is the consensus decision for a set of attempts.
type Result struct {
	// Representative is the earliest attempt of the winning group; nil when
	// no attempt was eligible.
	Representative *runner.Attempt `json:"representative"`
	AgreementCount int             `json:"agreement_count"`
	TotalAttempts  int             `json:"total_attempts"`
	IsConsensus    bool            `json:"is_consensus"`
}

// Normalize returns the grouping key for an answer.
func Normalize(answer string, keyLength int) string {
	if keyLength < 1 {
		keyLength = DefaultKeyLength
	}
	key := strings.TrimSpace(strings.ToLower(answer))
	if utf8.RuneCountInString(key) <= keyLength {
		return key
	}
	runes := []rune(key)
	return string(runes[:keyLength])
}

type group struct {
	first *runner.Attempt
	count int
}

// Aggregate groups attempts by normalized answer and returns the largest
// group. Groups are scanned in order of first appearance and a later group
// must be strictly larger to win, so ties go to the group whose first member
// has the lowest attempt index. Returns nil for no attempts.
func Aggregate(attempts []runner.Attempt, opts Options) *Result {
	if len(attempts) == 0 {
		return nil
	}

	index := make(map[string]int)
	var groups []*group

	for i := range attempts {
		key := Normalize(attempts[i].Parsed.Answer, opts.KeyLength)
		if key == "" && opts.IgnoreEmpty {
			continue
		}
		if gi, ok := index[key]; ok {
			groups[gi].count++
			continue
		}
		index[key] = len(groups)
		groups = append(groups, &group{first: &attempts[i], count: 1})
	}

	var best *group
	for _, g := range groups {
		if best == nil || g.count > best.count {
			best = g
		}
	}

	result := &Result{TotalAttempts: len(attempts)}
	if best != nil {
		rep := *best.first
		result.Representative = &rep
		result.AgreementCount = best.count
	}
	result.IsConsensus = IsMajority(result.AgreementCount, result.TotalAttempts)
	return result
}

// IsMajority reports whether agreement ≥ ceil(total/2).
func IsMajority(agreement, total int) bool {
	if total <= 0 {
		return false
	}
	return agreement*2 >= total
}
