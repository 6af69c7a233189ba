// Package categorization assigns categories to transaction descriptions
// using the keywords of the user's categories.
package categorization

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/domain/category"
)

// Rule priorities. A keyword the user typed beats the category name.
const (
	PriorityName    = 0
	PriorityKeyword = 10
)

// Rule is one matchable keyword of a category.
type Rule struct {
	CategoryID uuid.UUID
	Category   string
	Kind       category.Kind
	Keyword    string
	Priority   int
}

// RulesFromCategories expands categories into keyword rules. The lowercased
// category name is added as a low priority rule so that statements carrying
// their own category column can match by name.
func RulesFromCategories(cs []*category.Category) []Rule {
	rules := make([]Rule, 0, len(cs)*4)
	for _, c := range cs {
		seen := make(map[string]bool, len(c.Keywords)+1)
		for _, kw := range c.Keywords {
			kw = normalizeKeyword(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			rules = append(rules, Rule{CategoryID: c.ID, Category: c.Name, Kind: c.Kind, Keyword: kw, Priority: PriorityKeyword})
		}
		if name := normalizeKeyword(c.Name); name != "" && !seen[name] {
			rules = append(rules, Rule{CategoryID: c.ID, Category: c.Name, Kind: c.Kind, Keyword: name, Priority: PriorityName})
		}
	}
	return rules
}

func normalizeKeyword(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// KindFor returns the category kind a signed amount belongs to.
func KindFor(amountCents int64) (category.Kind, bool) {
	switch {
	case amountCents > 0:
		return category.KindIncome, true
	case amountCents < 0:
		return category.KindExpense, true
	}
	return "", false
}

var (
	noisePrefixes = []string{
		"COMPRAS C.DEB ", "COMPRA ", "COMPRAS ", "PAGAMENTO ", "PAG ", "PGO ",
		"TRF ", "TRANSF ", "TRANSFERENCIA ",
		"MB WAY ", "MBWAY ", "MULTIBANCO ",
		"VISA ", "MASTERCARD ", "MAESTRO ",
		"CARD PURCHASE ", "DEBIT CARD ", "PURCHASE ", "PAYMENT ", "POS ",
	}
	trailingRef  = regexp.MustCompile(`\s*[*#]?\d{4,}$`)
	trailingDate = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}(/\d{2,4})?$`)
)

// stripNoise removes card terminal prefixes, trailing reference numbers
// and dates that banks add around the merchant name.
func stripNoise(raw string) string {
	result := strings.Join(strings.Fields(raw), " ")

	upper := strings.ToUpper(result)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = trailingRef.ReplaceAllString(result, "")
	result = trailingDate.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}
