package chatguard

// EstimateTokens approximates the provider token count of text.
// An ASCII rune weighs a quarter token and any other rune a full token,
// which keeps accented Portuguese text on the conservative side.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r > 127 {
			weight += 4
			continue
		}
		weight++
	}
	return (weight + 3) / 4
}

// HistoryTokens sums the estimated token count of a history, estimating
// messages that carry no count.
func HistoryTokens(history []Message) int {
	total := 0
	for _, m := range history {
		if m.TokenCount > 0 {
			total += m.TokenCount
			continue
		}
		total += EstimateTokens(m.Content)
	}
	return total
}
