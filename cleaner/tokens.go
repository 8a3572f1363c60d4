package cleaner

import "unicode/utf8"

// EstimateTokens approximates a token count as runes / 3, a middle ground
// between English (~4 chars/token) and CJK (~1.5 chars/token) text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

// TruncateTokens cuts text so that EstimateTokens(result) <= maxTokens,
// never splitting a rune. A non-positive maxTokens disables truncation.
func TruncateTokens(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text, false
	}
	maxRunes := maxTokens * 3
	count := 0
	for i := range text {
		if count == maxRunes {
			return text[:i], true
		}
		count++
	}
	return text, false
}
