package dto

import (
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/memory"
)

// MemoryExtractionMessage is the payload of one extraction job. It carries a
// snapshot of the turn so the job never reads later messages. When Inline is
// set the reply already carried its memories and no extraction call is made.
type MemoryExtractionMessage struct {
	UserKey      string             `json:"user_key"`
	SessionKey   string             `json:"session_key"`
	ChatId       string             `json:"chat_id"`
	Conversation []llm.Message      `json:"conversation"`
	Reply        string             `json:"reply"`
	Inline       bool               `json:"inline,omitempty"`
	Candidates   []memory.Candidate `json:"candidates,omitempty"`
}

type MemoryStatsResponse struct {
	UserKey    string       `json:"user_key"`
	SessionKey string       `json:"session_key"`
	Stats      memory.Stats `json:"stats"`
}

type MemoryListResponse struct {
	Stats           memory.Stats    `json:"stats"`
	UserMemories    []memory.Record `json:"user_memories"`
	SessionMemories []memory.Record `json:"session_memories"`
}

type ClearMemoriesResponse struct {
	Scope memory.Scope `json:"scope"`
}

type ImportMemoriesResponse struct {
	Imported int `json:"imported"`
}
