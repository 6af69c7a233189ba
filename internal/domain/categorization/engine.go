package categorization

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/split-budget/internal/domain/category"
)

// Match is a keyword found in a description.
type Match struct {
	Rule
	// WholeWord is set when the keyword is not part of a longer word.
	WholeWord bool
}

// better reports whether m should win over other: the longer keyword
// first, then rule priority, then a whole-word hit.
func (m Match) better(other Match) bool {
	ml, ol := utf8.RuneCountInString(m.Keyword), utf8.RuneCountInString(other.Keyword)
	if ml != ol {
		return ml > ol
	}
	if m.Priority != other.Priority {
		return m.Priority > other.Priority
	}
	if m.WholeWord != other.WholeWord {
		return m.WholeWord
	}
	return m.Category < other.Category
}

// Engine matches every keyword of a user in a single pass using the
// Aho-Corasick algorithm.
type Engine struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	// rules holds every rule for the keyword at the same index.
	rules [][]Rule
	mu    sync.RWMutex
}

func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the loaded rules. Rules sharing a keyword are grouped.
func (e *Engine) Build(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	index := make(map[string]int, len(rules))
	keywords := make([]string, 0, len(rules))
	grouped := make([][]Rule, 0, len(rules))
	for _, r := range rules {
		kw := normalizeKeyword(r.Keyword)
		if kw == "" {
			continue
		}
		if i, ok := index[kw]; ok {
			grouped[i] = append(grouped[i], r)
			continue
		}
		index[kw] = len(keywords)
		keywords = append(keywords, kw)
		grouped = append(grouped, []Rule{r})
	}

	e.keywords = keywords
	e.rules = grouped
	if len(keywords) == 0 {
		e.matcher = nil
		return
	}
	e.matcher = ahocorasick.NewStringMatcher(keywords)
}

// Match returns the best rule of the given kind found in description, or
// nil. An empty kind accepts every rule.
func (e *Engine) Match(description string, kind category.Kind) *Match {
	all := e.MatchAll(description, kind)
	if len(all) == 0 {
		return nil
	}
	best := all[0]
	return &best
}

// MatchAll returns every rule of the given kind found in description,
// best first.
func (e *Engine) MatchAll(description string, kind category.Kind) []Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return nil
	}

	text := normalizeKeyword(description)
	hits := e.matcher.MatchThreadSafe([]byte(text))
	if len(hits) == 0 {
		return nil
	}

	var matches []Match
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.rules) {
			continue
		}
		whole := wholeWord(text, e.keywords[idx])
		for _, r := range e.rules[idx] {
			if kind != "" && r.Kind != kind {
				continue
			}
			matches = append(matches, Match{Rule: r, WholeWord: whole})
		}
	}

	// insertion sort, hit lists are short
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].better(matches[j-1]); j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	return matches
}

// KeywordCount returns the number of distinct keywords loaded.
func (e *Engine) KeywordCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keywords)
}

func (e *Engine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}

// wholeWord reports whether some occurrence of kw in text is bounded by
// non-alphanumeric runes.
func wholeWord(text, kw string) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(kw)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
