// Package typing holds the speed and accuracy arithmetic shared by the single-player,
// multiplayer and captcha flows.
package typing

import (
	"strings"
	"time"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
)

// WPM returns words per minute for typed over elapsed, counting every CharsPerWord
// characters as one word. Non-positive durations yield 0.
func WPM(typed string, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(len([]rune(typed))) / constants.CharsPerWord * 60 / elapsed.Seconds()
}

// Accuracy returns the percentage of typed words that match reference word for word.
func Accuracy(typed, reference string) float64 {
	typedWords := strings.Fields(typed)
	referenceWords := strings.Fields(reference)
	if len(typedWords) == 0 {
		if len(referenceWords) == 0 {
			return 100
		}
		return 0
	}
	correct := 0
	for i, word := range typedWords {
		if i < len(referenceWords) && word == referenceWords[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(typedWords)) * 100
}

// Progress returns the fraction of prompt covered by the correctly typed leading words of
// typed. Typing stops counting at the first wrong word.
func Progress(typed, prompt []string) float64 {
	if len(prompt) == 0 {
		return 0
	}
	correct := 0
	for i, word := range typed {
		if i >= len(prompt) || word != prompt[i] {
			break
		}
		correct++
	}
	return float64(correct) / float64(len(prompt))
}
