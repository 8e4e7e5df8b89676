package llm

// DefaultSystemPrompt is used when a conversation has no custom prompt.
const DefaultSystemPrompt = "You are a helpful, concise AI assistant. Provide clear, well-structured responses. " +
	"When appropriate, use markdown formatting for readability. " +
	"If you're unsure about something, say so rather than guessing."

// TitlePrompt instructs a provider to produce a short conversation title.
const TitlePrompt = "Generate a concise title (max 8 words) for a conversation that starts with the following message. " +
	"Return ONLY the title text, nothing else."

// thinkingPrefix requests a reasoning preamble before the final answer.
const thinkingPrefix = "Think step by step. Show your reasoning in <thinking> tags before giving your final answer.\n\n"

// BuildSystemPrompt resolves the effective system prompt for a generation
// call.
func BuildSystemPrompt(customPrompt string, thinking bool) string {
	prompt := customPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if thinking {
		prompt = thinkingPrefix + prompt
	}
	return prompt
}
