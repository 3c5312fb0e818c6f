package guardrails

import (
	"strings"
	"unicode"
)

// GradeLevel computes the Flesch-Kincaid grade of text:
//
//	0.39*(words/sentences) + 11.8*(syllables/word) - 15.59
//
// Syllables come from a vowel-group heuristic, so the score is an estimate,
// not a measurement. Empty text scores 0.
func GradeLevel(text string) float64 {
	words := fields(text)
	if len(words) == 0 {
		return 0
	}

	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	wordsPerSentence := float64(len(words)) / float64(sentences)
	syllablesPerWord := float64(syllables) / float64(len(words))
	grade := 0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59
	if grade < 0 {
		return 0
	}
	return grade
}

func fields(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
	})
}

func countSentences(text string) int {
	count := 0
	inTerminator := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inTerminator {
				count++
			}
			inTerminator = true
		default:
			inTerminator = false
		}
	}
	return count
}

// countSyllables approximates syllables as contiguous vowel groups, with a
// trailing silent 'e' discounted. Every word counts as at least one.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count == 0 {
		return 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
