package llm

import (
	"unicode/utf8"
)

// Token accounting constants shared by the context builder.
const (
	// messageOverheadTokens covers role and formatting tokens per message.
	messageOverheadTokens = 4
	// replyPrimingTokens covers the tokens priming the expected reply.
	replyPrimingTokens = 2
)

// CountTokens estimates the token cost of a text string. The estimate is
// deterministic and shared across providers: roughly one token per four
// runes, rounded up. It is an approximation, not an exact accountant for
// any vendor's tokenizer.
func CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// CountMessageTokens estimates the total token cost of a message list,
// including per-message overhead and reply priming.
func CountMessageTokens(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens
		total += CountTokens(msg.Content)
		total += CountTokens(msg.Role)
	}
	total += replyPrimingTokens
	return total
}
