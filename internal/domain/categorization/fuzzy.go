package categorization

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/split-budget/internal/domain/category"
)

// FuzzyResult is a rule whose keyword resembles a description term.
type FuzzyResult struct {
	Rule
	Term string
	// Score is 0-100, 100 being identical.
	Score int
}

// FuzzyMatcher is the last resort: it ranks keywords against each
// description term by subsequence match and edit distance.
type FuzzyMatcher struct {
	rules    []Rule
	keywords []string
	mu       sync.RWMutex
}

func NewFuzzyMatcher(rules []Rule) *FuzzyMatcher {
	fm := &FuzzyMatcher{}
	fm.Build(rules)
	return fm
}

// Build keeps single-word rules; multi-word keywords are left to the
// exact engine and the search index.
func (fm *FuzzyMatcher) Build(rules []Rule) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.rules = fm.rules[:0]
	fm.keywords = fm.keywords[:0]
	for _, r := range rules {
		kw := normalizeKeyword(r.Keyword)
		if kw == "" || strings.Contains(kw, " ") || utf8.RuneCountInString(kw) < minFuzzyTermLength {
			continue
		}
		fm.rules = append(fm.rules, r)
		fm.keywords = append(fm.keywords, kw)
	}
}

// Match returns the best rule of the given kind scoring at least threshold.
func (fm *FuzzyMatcher) Match(description string, kind category.Kind, threshold int) *FuzzyResult {
	all := fm.MatchAll(description, kind, threshold)
	if len(all) == 0 {
		return nil
	}
	return &all[0]
}

// MatchAll returns every rule of the given kind scoring at least
// threshold, best first.
func (fm *FuzzyMatcher) MatchAll(description string, kind category.Kind, threshold int) []FuzzyResult {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	if len(fm.keywords) == 0 {
		return nil
	}

	best := make(map[int]FuzzyResult)
	for _, term := range searchTerms(description) {
		for _, rank := range fuzzy.RankFindNormalizedFold(term, fm.keywords) {
			r := fm.rules[rank.OriginalIndex]
			if kind != "" && r.Kind != kind {
				continue
			}
			score := similarity(term, rank.Target, rank.Distance)
			if score < threshold {
				continue
			}
			if prev, ok := best[rank.OriginalIndex]; !ok || score > prev.Score {
				best[rank.OriginalIndex] = FuzzyResult{Rule: r, Term: term, Score: score}
			}
		}
	}

	results := make([]FuzzyResult, 0, len(best))
	for _, res := range best {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].Keyword < results[j].Keyword
	})
	return results
}

// similarity converts an edit distance into a 0-100 score relative to the
// longer of the two strings.
func similarity(term, target string, distance int) int {
	longest := utf8.RuneCountInString(term)
	if n := utf8.RuneCountInString(target); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	return 100 * (longest - distance) / longest
}
