package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c, err := NewClassifier(DefaultCategories)
	require.NoError(t, err)

	cases := map[string][2]string{
		"Music & Concerts":     {"Live concerts in the park", ""},
		"Family & Kids":        {"Toddler Storytime", "Stories and songs for children"},
		"Food & Dining":        {"Wine tasting", "Five wines and a cheese board"},
		"STEM & Technology":    {"Intro to coding", "Build a robot with Python"},
		"Arts & Culture":       {"Gallery opening", "New paintings at the museum"},
		"Comedy":               {"Improv night", "Comedians from around town"},
		OtherCategory:          {"Quarterly board meeting", ""},
		"Education & Learning": {"Author talk", "Book signing and reading"},
	}

	for want, in := range cases {
		assert.Equal(t, want, c.Classify(in[0], in[1]), "%q", in[0])
	}
}

func TestClassifyTieUsesTableOrder(t *testing.T) {
	c, err := NewClassifier([]Category{
		{Name: "First", Keywords: []string{"alpha"}},
		{Name: "Second", Keywords: []string{"beta"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "First", c.Classify("beta alpha", ""))
	assert.Equal(t, "Second", c.Classify("beta", ""))
	assert.Equal(t, OtherCategory, c.Classify("", ""))
}

func TestClassifyMultiWordKeyword(t *testing.T) {
	c, err := NewClassifier([]Category{
		{Name: "Markets", Keywords: []string{"farmers market"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Markets", c.Classify("Saturday Farmers Market", ""))
	assert.Equal(t, OtherCategory, c.Classify("Stock market update", ""))
}
