package normalize

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

const OtherCategory = "Other"

type Category struct {
	Name     string
	Keywords []string
}

// DefaultCategories is ordered: on equal scores the earlier entry wins.
var DefaultCategories = []Category{
	{Name: "Music & Concerts", Keywords: []string{"concert", "music", "band", "orchestra", "symphony", "jazz", "choir", "dj", "live music", "opera"}},
	{Name: "Festivals & Fairs", Keywords: []string{"festival", "fair", "celebration", "parade", "carnival", "fest"}},
	{Name: "Comedy", Keywords: []string{"comedy", "comedian", "stand-up", "improv", "open mic"}},
	{Name: "Sports & Recreation", Keywords: []string{"sport", "game", "match", "soccer", "football", "basketball", "baseball", "hockey", "run", "marathon", "yoga", "fitness", "hike"}},
	{Name: "Food & Dining", Keywords: []string{"food", "culinary", "tasting", "wine", "beer", "dinner", "brunch", "cooking", "farmers market"}},
	{Name: "Arts & Culture", Keywords: []string{"art", "exhibit", "gallery", "museum", "theatre", "theater", "film", "dance", "ballet", "cultural", "heritage", "paint", "craft"}},
	{Name: "Family & Kids", Keywords: []string{"family", "kid", "children", "storytime", "story time", "toddler", "teen", "youth"}},
	{Name: "Education & Learning", Keywords: []string{"workshop", "class", "lecture", "seminar", "learning", "tutor", "book", "reading", "author"}},
	{Name: "STEM & Technology", Keywords: []string{"stem", "science", "tech", "technology", "coding", "robot", "computer", "digital"}},
	{Name: "Community", Keywords: []string{"community", "volunteer", "meetup", "fundraiser", "charity", "networking"}},
}

type keywordSet struct {
	name     string
	keywords [][]string
}

// Classifier scores title and description against a fixed keyword table.
// Words are compared after English stemming, so "concerts" hits "concert".
type Classifier struct {
	analyzer analysis.Analyzer
	sets     []keywordSet
}

func NewClassifier(categories []Category) (*Classifier, error) {
	cache := registry.NewCache()
	analyzer, err := en.AnalyzerConstructor(nil, cache)
	if err != nil {
		return nil, err
	}

	c := &Classifier{analyzer: analyzer}
	for _, cat := range categories {
		set := keywordSet{name: cat.Name}
		for _, kw := range cat.Keywords {
			tokens := c.analyze(strings.ToLower(kw))
			if len(tokens) > 0 {
				set.keywords = append(set.keywords, tokens)
			}
		}
		c.sets = append(c.sets, set)
	}
	return c, nil
}

// Classify returns the best scoring category, or Other when nothing matches.
func (c *Classifier) Classify(title, description string) string {
	tokens := c.analyze(title + " " + description)
	if len(tokens) == 0 {
		return OtherCategory
	}

	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}

	best, bestScore := OtherCategory, 0
	for _, set := range c.sets {
		score := 0
		for _, kw := range set.keywords {
			if containsAll(present, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = set.name, score
		}
	}
	return best
}

func containsAll(present map[string]struct{}, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := present[tok]; !ok {
			return false
		}
	}
	return true
}

func (c *Classifier) analyze(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokenStream := c.analyzer.Analyze([]byte(text))

	tokens := make([]string, 0, len(tokenStream))
	for _, token := range tokenStream {
		tokens = append(tokens, string(token.Term))
	}
	return tokens
}
