// Package analysis implements the Evidence stage's support classifier: the
// weighted lexical scoring that decides whether a retrieved article record
// supports or contradicts a hypothesis. Indicator-word lists in both
// directions combine into one signed net score, plus a semantic overlap
// boost against the hypothesis label.
package analysis

import "strings"

// strongSupportive/moderateSupportive/weakSupportive and their contradictory
// counterparts are closed term lists weighed at 3/2/1 respectively,
// symmetric in both directions.
var (
	strongSupportive = []string{"confirms", "demonstrates", "proves", "establishes", "validates"}
	moderateSupportive = []string{"supports", "suggests", "indicates", "correlates with", "corroborates"}
	weakSupportive = []string{"consistent with", "aligns with", "hints at", "points to"}

	strongContradictory = []string{"refutes", "disproves", "contradicts", "invalidates", "falsifies"}
	moderateContradictory = []string{"challenges", "conflicts with", "undermines", "disputes"}
	weakContradictory = []string{"questions", "casts doubt on", "complicates"}
)

// negatedSupportivePatterns are explicit-negation forms over a supportive
// verb; a match converts that occurrence to a contradictory weight-2 hit
// and is subtracted from the net score.
var negatedSupportivePatterns = []string{
	"does not support", "did not support", "does not confirm", "did not confirm",
	"no evidence of", "no evidence for", "fails to support", "failed to support",
	"lack of support", "lacks support", "does not demonstrate", "did not demonstrate",
	"not consistent with", "does not suggest",
}

// closedStopwords supplements the length<=3 stopword filter the semantic
// overlap boost applies before computing word-set similarity.
var closedStopwords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"from": true, "have": true, "has": true, "were": true, "was": true,
	"are": true, "for": true, "been": true, "their": true, "which": true,
}

// Classification is the outcome of scoring one piece of evidence text
// against a hypothesis label. SupportHits and ContradictHits count the raw
// indicator-term matches behind NetScore; the Evidence stage feeds them into
// its statistical-power estimate.
type Classification struct {
	NetScore       float64
	Supports       bool
	Confidence     float64
	SupportHits    int
	ContradictHits int
}

// ClassifySupport scores evidenceText against hypothesisLabel and decides
// support/contradiction/neutral: net > 1.5 is clear support, net < -1.5 is
// clear contradiction, otherwise neutral with supports = (net >= 0). Every
// confidence is floored at 0.1.
func ClassifySupport(evidenceText, hypothesisLabel string) Classification {
	lower := strings.ToLower(evidenceText)

	var supportHits, contradictHits int
	net := weightedTermScore(lower, strongSupportive, 3, &supportHits)
	net += weightedTermScore(lower, moderateSupportive, 2, &supportHits)
	net += weightedTermScore(lower, weakSupportive, 1, &supportHits)
	net -= weightedTermScore(lower, strongContradictory, 3, &contradictHits)
	net -= weightedTermScore(lower, moderateContradictory, 2, &contradictHits)
	net -= weightedTermScore(lower, weakContradictory, 1, &contradictHits)

	for _, pattern := range negatedSupportivePatterns {
		if strings.Contains(lower, pattern) {
			net -= 2
			contradictHits++
		}
	}

	net += semanticOverlapBoost(evidenceText, hypothesisLabel)

	c := Classification{NetScore: net, SupportHits: supportHits, ContradictHits: contradictHits}
	switch {
	case net > 1.5:
		c.Supports = true
		c.Confidence = floor01(min(0.9, 0.5+net/10))
	case net < -1.5:
		c.Supports = false
		c.Confidence = floor01(min(0.9, 0.5+(-net)/10))
	default:
		c.Supports = net >= 0
		c.Confidence = floor01(0.3)
	}
	return c
}

func weightedTermScore(lowerText string, terms []string, weight float64, hits *int) float64 {
	var score float64
	for _, term := range terms {
		if strings.Contains(lowerText, term) {
			score += weight
			*hits++
		}
	}
	return score
}

// semanticOverlapBoost returns overlapRatio*2 where overlapRatio is the
// Jaccard similarity of the two texts' word sets after removing stopwords
// of length <= 3 and the closedStopwords set.
func semanticOverlapBoost(a, b string) float64 {
	setA := significantWords(a)
	setB := significantWords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA)
	for w := range setB {
		if !setA[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	ratio := float64(intersection) / float64(union)
	return ratio * 2
}

func significantWords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) <= 3 || closedStopwords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

func floor01(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	return v
}
