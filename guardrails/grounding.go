package guardrails

import "strings"

// GroundingScore estimates how well an answer is supported by its source
// text, as the fraction of answer trigrams found in the source. Used by the
// optional hallucination check for model-generated responses; it informs a
// signal, never a block.
func GroundingScore(answer, source string) float64 {
	answerWords := tokenize(answer)
	if len(answerWords) < 3 {
		return 1.0
	}

	sourceSet := make(map[string]bool)
	sourceWords := tokenize(source)
	for i := 0; i+2 < len(sourceWords); i++ {
		sourceSet[strings.Join(sourceWords[i:i+3], " ")] = true
	}

	total := 0
	hits := 0
	for i := 0; i+2 < len(answerWords); i++ {
		total++
		if sourceSet[strings.Join(answerWords[i:i+3], " ")] {
			hits++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(hits) / float64(total)
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
