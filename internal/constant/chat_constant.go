package constant

const (
	// Seeded as the first message of every chat.
	ChatInitialSystemMessage = "You are a helpful assistant."

	// Persisted as the assistant reply when the completion is unavailable.
	ChatReplyUnavailable = "I'm sorry, I couldn't generate a response at this time."

	// Persisted when any other step of the turn fails.
	ChatReplyProcessingError = "I'm sorry, there was an error processing your request. Please try again later."

	// Memories pulled into the prompt per turn.
	ChatRelevantMemoryLimit = 10

	WsEventMessageCreated = "message.created"
)
