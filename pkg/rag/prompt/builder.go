package prompt

import (
	"strings"
)

// CleanChatSystemPrompt is the base template for conversational turns.
const CleanChatSystemPrompt = `You are a helpful AI assistant. Respond naturally and conversationally to the user's messages.

Guidelines:
- Be helpful, friendly, and engaging
- Provide accurate and relevant information
- Use any provided memory context to personalize your responses
- Respond ONLY with your conversational reply - no JSON, no metadata, no technical artifacts
- Keep responses concise but informative

Your response should be natural conversation only.`

// JSONChatSystemPrompt is used when the model is asked to return the reply
// and any new memories in one JSON object.
const JSONChatSystemPrompt = `You are a helpful AI assistant. Respond naturally and conversationally to the user's messages.

Guidelines:
- Be helpful, friendly, and engaging
- Provide accurate and relevant information
- Use any provided memory context to personalize your responses
- Keep responses concise but informative

Return a single JSON object and nothing else:
{"response": "<your conversational reply>", "memories": [{"content": "<fact about the user>", "category": "personal_facts|preferences|goals|events|skills|projects|name|friends|family", "importance": "high|medium|low", "type": "user|session"}]}
Use an empty "memories" array when the latest message contains nothing worth remembering.`

const memoryInstruction = "Use this context to provide personalized responses. Reference relevant memories naturally without explicitly mentioning that you're using stored information."

// Build appends memoryContext to baseTemplate under the usage instruction.
// An empty memoryContext returns baseTemplate unchanged.
func Build(baseTemplate, memoryContext string) string {
	if strings.TrimSpace(memoryContext) == "" {
		return baseTemplate
	}

	var prompt strings.Builder
	writeBase(&prompt, baseTemplate)
	writeMemoryContext(&prompt, memoryContext)
	prompt.WriteString(memoryInstruction)
	return prompt.String()
}

func writeBase(prompt *strings.Builder, baseTemplate string) {
	if baseTemplate == "" {
		return
	}
	prompt.WriteString(baseTemplate)
	prompt.WriteString("\n\n")
}

func writeMemoryContext(prompt *strings.Builder, memoryContext string) {
	prompt.WriteString(strings.TrimSpace(memoryContext))
	prompt.WriteString("\n\n")
}
