package llm

// BuildContext builds the message list actually sent to a provider,
// bounded by the token budget.
//
// The system prompt always comes first. The very first history entry is
// kept when possible so the assistant stays anchored to the conversation's
// origin; the rest of the budget is filled greedily with the most recent
// messages, newest to oldest. If after filling the first message no longer
// fits, it is dropped whole in favor of recency. Individual messages are
// never truncated.
func BuildContext(history []ChatMessage, systemPrompt string, budget int) []ChatMessage {
	systemMsg := ChatMessage{Role: "system", Content: systemPrompt}
	systemTokens := CountTokens(systemPrompt) + messageOverheadTokens

	if len(history) == 0 {
		return []ChatMessage{systemMsg}
	}

	remaining := budget - systemTokens

	first := ChatMessage{Role: history[0].Role, Content: history[0].Content}
	firstTokens := CountTokens(first.Content) + messageOverheadTokens

	var recent []ChatMessage
	used := 0

	rest := history[1:]
	for i := len(rest) - 1; i >= 0; i-- {
		entry := ChatMessage{Role: rest[i].Role, Content: rest[i].Content}
		msgTokens := CountTokens(entry.Content) + messageOverheadTokens
		if used+msgTokens+firstTokens > remaining {
			break
		}
		recent = append([]ChatMessage{entry}, recent...)
		used += msgTokens
	}

	if firstTokens <= remaining-used {
		out := make([]ChatMessage, 0, len(recent)+2)
		out = append(out, systemMsg, first)
		return append(out, recent...)
	}

	out := make([]ChatMessage, 0, len(recent)+1)
	out = append(out, systemMsg)
	return append(out, recent...)
}
