package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"smartassist-api/pkg/models"

	"github.com/rs/zerolog"
)

// faqFile is the on-disk FAQ layout: {"faqs": [...]}.
type faqFile struct {
	FAQs []models.FAQ `json:"faqs"`
}

// FAQService キーワードマッチングによるFAQ検索サービス
type FAQService struct {
	faqs   []models.FAQ
	logger zerolog.Logger
}

// NewFAQService creates a service over an in-memory FAQ list.
func NewFAQService(faqs []models.FAQ, logger zerolog.Logger) *FAQService {
	return &FAQService{faqs: faqs, logger: logger.With().Str("component", "faq").Logger()}
}

// LoadFAQService reads and concatenates FAQ files in order. A missing file
// contributes nothing; a malformed one is an error.
func LoadFAQService(paths []string, logger zerolog.Logger) (*FAQService, error) {
	var all []models.FAQ
	for _, path := range paths {
		faqs, err := loadFAQFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", path).Int("faqs", len(faqs)).Msg("FAQ file loaded")
		all = append(all, faqs...)
	}
	return NewFAQService(all, logger), nil
}

func loadFAQFile(path string) ([]models.FAQ, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read FAQ file %s: %w", path, err)
	}
	var f faqFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse FAQ file %s: %w", path, err)
	}
	return f.FAQs, nil
}

// Count returns the number of loaded FAQs.
func (s *FAQService) Count() int {
	return len(s.faqs)
}

// Categories returns FAQ counts per category.
func (s *FAQService) Categories() map[string]int {
	out := map[string]int{}
	for _, f := range s.faqs {
		cat := f.Category
		if cat == "" {
			cat = "uncategorized"
		}
		out[cat]++
	}
	return out
}

// Search scores every FAQ against the distinct lower-cased words of query:
// +2 for a word contained in any keyword, +1 for a word in the question and
// +0.5 for a word in the answer. Only positive scores are returned, highest
// first, at most topK. Equal scores keep file order.
func (s *FAQService) Search(query string, topK int) []models.FAQ {
	words := uniqueWords(query)
	if len(words) == 0 || topK <= 0 {
		return []models.FAQ{}
	}

	type scored struct {
		score float64
		faq   models.FAQ
	}
	var hits []scored
	for _, faq := range s.faqs {
		keywords := make([]string, len(faq.Keywords))
		for i, k := range faq.Keywords {
			keywords[i] = strings.ToLower(k)
		}
		question := strings.ToLower(faq.Question)
		answer := strings.ToLower(faq.Answer)

		var score float64
		for _, w := range words {
			for _, k := range keywords {
				if strings.Contains(k, w) {
					score += 2
					break
				}
			}
			if strings.Contains(question, w) {
				score++
			}
			if strings.Contains(answer, w) {
				score += 0.5
			}
		}
		if score > 0 {
			hits = append(hits, scored{score, faq})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]models.FAQ, len(hits))
	for i, h := range hits {
		out[i] = h.faq
	}
	return out
}

func uniqueWords(s string) []string {
	seen := map[string]bool{}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}
