// Package search ranks sound names against a free-text query.
//
// Scores run from 0 to 100. A candidate scores the best of three measures over
// the lower-cased strings: a Levenshtein similarity ratio, a substring tier and a
// subsequence tier (query characters appearing in order, found with sahilm/fuzzy).
// Identical strings always score 100.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
)

const (
	MaxScore = 100

	substringCeil   = 90
	substringFloor  = 60
	subsequenceCeil = 75
	subsequenceBase = 50
)

// Match is a scored candidate.
type Match struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Rank scores every candidate against query and returns at most limit matches,
// best first. Equal scores keep the order of candidates.
func Rank(query string, candidates []string, limit int) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(candidates) == 0 || limit <= 0 {
		return nil
	}

	lowered := make([]string, len(candidates))
	for i, c := range candidates {
		lowered[i] = strings.ToLower(c)
	}

	subseq := make(map[int]int, len(candidates))
	for _, m := range fuzzy.Find(q, lowered) {
		subseq[m.Index] = subsequenceScore(len(m.MatchedIndexes), utf8.RuneCountInString(m.Str))
	}

	matches := make([]Match, len(candidates))
	for i, c := range lowered {
		score := ratio(q, c)
		if s := substringScore(q, c); s > score {
			score = s
		}
		if s := subseq[i]; s > score {
			score = s
		}
		matches[i] = Match{Name: candidates[i], Score: score}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Best returns the single top match. Ties resolve to the earliest candidate.
func Best(query string, candidates []string) (Match, bool) {
	m := Rank(query, candidates, 1)
	if len(m) == 0 {
		return Match{}, false
	}
	return m[0], true
}

func ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return MaxScore
	}
	d := levenshtein(ra, rb)
	return MaxScore * (longest - d) / longest
}

func substringScore(q, c string) int {
	if !strings.Contains(c, q) {
		return 0
	}
	qn, cn := utf8.RuneCountInString(q), utf8.RuneCountInString(c)
	return substringFloor + (substringCeil-substringFloor)*qn/cn
}

func subsequenceScore(matched, total int) int {
	if total == 0 {
		return 0
	}
	return subsequenceBase + (subsequenceCeil-subsequenceBase)*matched/total
}

// levenshtein is the single-row DP edit distance.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := prev[0]
		prev[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur := min(prev[j]+1, prev[j-1]+1, diag+cost)
			diag = prev[j]
			prev[j] = cur
		}
	}
	return prev[len(b)]
}
