package categorization

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/domain/category"
)

// minFuzzyTermLength keeps short tokens such as card suffixes out of fuzzy
// queries, where one edit would match almost anything.
const minFuzzyTermLength = 4

// SearchDocument is one indexed keyword.
type SearchDocument struct {
	ID         string  `json:"id"`
	Keyword    string  `json:"keyword"`
	Category   string  `json:"category"`
	CategoryID string  `json:"category_id"`
	Kind       string  `json:"kind"`
	Priority   float64 `json:"priority"`
}

// SearchResult is a hit with its bleve relevance score.
type SearchResult struct {
	Document   SearchDocument
	Score      float64
	CategoryID uuid.UUID
}

// SearchIndex is an in-memory bleve index over category keywords that
// tolerates typos and truncated merchant names.
type SearchIndex struct {
	index bleve.Index
	mu    sync.RWMutex
}

func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("keyword", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", textFieldMapping)
	docMapping.AddFieldMappingsAt("category_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("priority", bleve.NewNumericFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// IndexRules adds rules to the index in one batch.
func (si *SearchIndex) IndexRules(rules []Rule) error {
	si.mu.Lock()
	defer si.mu.Unlock()

	batch := si.index.NewBatch()
	for _, r := range rules {
		doc := SearchDocument{
			ID:         r.CategoryID.String() + "/" + r.Keyword,
			Keyword:    r.Keyword,
			Category:   r.Category,
			CategoryID: r.CategoryID.String(),
			Kind:       string(r.Kind),
			Priority:   float64(r.Priority),
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("failed to index keyword %q: %w", r.Keyword, err)
		}
	}
	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

// Search runs a fuzzy match of the description terms against keywords of
// the given kind, allowing one edit per term.
func (si *SearchIndex) Search(description string, kind category.Kind, limit int) ([]SearchResult, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	terms := searchTerms(description)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(strings.Join(terms, " "))
	match.SetField("keyword")
	match.SetFuzziness(1)

	var q query.Query = match
	if kind != "" {
		kindQuery := bleve.NewTermQuery(string(kind))
		kindQuery.SetField("kind")
		q = bleve.NewConjunctionQuery(match, kindQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertResults(res)
}

func convertResults(res *bleve.SearchResult) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc := SearchDocument{ID: hit.ID}
		if v, ok := hit.Fields["keyword"].(string); ok {
			doc.Keyword = v
		}
		if v, ok := hit.Fields["category"].(string); ok {
			doc.Category = v
		}
		if v, ok := hit.Fields["category_id"].(string); ok {
			doc.CategoryID = v
		}
		if v, ok := hit.Fields["kind"].(string); ok {
			doc.Kind = v
		}
		if v, ok := hit.Fields["priority"].(float64); ok {
			doc.Priority = v
		}

		id, err := uuid.Parse(doc.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("indexed document %s has no category: %w", hit.ID, err)
		}
		results = append(results, SearchResult{Document: doc, Score: hit.Score, CategoryID: id})
	}
	return results, nil
}

func (si *SearchIndex) DocumentCount() (uint64, error) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.index.DocCount()
}

func (si *SearchIndex) Close() error {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.index.Close()
}

// searchTerms lowercases description and keeps alphabetic tokens long
// enough for a fuzzy query.
func searchTerms(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minFuzzyTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}
