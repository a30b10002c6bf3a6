package memory

import (
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/llm/completion"
	"context"
	"errors"
	"fmt"
	"strings"
)

// transcriptWindow bounds how many trailing messages the extractor sees.
const transcriptWindow = 20

const extractionSystemPrompt = `You extract durable facts about the user from a conversation.

Return a single JSON object: {"memories": [{"content": "...", "category": "...", "importance": "...", "type": "..."}]}

Rules:
- content: one short third-person statement, e.g. "User's name is Ana"
- category: one of personal_facts, preferences, goals, events, skills, projects, name, friends, family
- importance: high for identity and strong preferences, medium for useful context, low for passing details
- type: "user" for facts that stay true across conversations, "session" for facts about the current conversation only
- Only extract what the user said about themselves. Ignore the assistant's own statements.
- Return {"memories": []} when there is nothing worth remembering.`

// ExtractAndStoreMemories asks the model for candidate facts in the
// conversation and stores them. Every failure is logged and swallowed.
func (s *ownerService) ExtractAndStoreMemories(ctx context.Context, conversation []llm.Message, latestReply string) {
	defer func() {
		if r := recover(); r != nil {
			s.logExtractionError(&ExtractionError{Stage: "panic", Err: fmt.Errorf("%v", r)})
		}
	}()

	transcript := renderTranscript(conversation, latestReply)
	if transcript == "" {
		return
	}
	if s.m.completer == nil || s.m.decode == nil {
		s.logExtractionError(&ExtractionError{Stage: "setup", Err: errors.New("no extraction completer configured")})
		return
	}

	raw, err := s.m.completer.Complete(ctx, extractionSystemPrompt,
		[]llm.Message{{Role: "user", Content: transcript}},
		completion.Options{
			MaxTokens:      s.m.cfg.ExtractionMaxTokens,
			Temperature:    s.m.cfg.ExtractionTemperature,
			ResponseFormat: llm.ResponseFormatJSON,
		})
	if err != nil {
		s.logExtractionError(&ExtractionError{Stage: "completion", Err: err})
		return
	}

	candidates, err := s.m.decode(raw)
	if err != nil {
		s.m.logger.Debug("MemoryService", "Raw extraction payload", map[string]interface{}{"raw": raw})
		s.logExtractionError(&ExtractionError{Stage: "decode", Err: err})
		return
	}

	stored := s.StoreCandidates(ctx, candidates)
	s.m.logger.Debug("MemoryService", "Memory extraction finished", map[string]interface{}{
		"candidates": len(candidates),
		"stored":     stored,
	})
}

func (s *ownerService) logExtractionError(err *ExtractionError) {
	s.m.logger.Error("MemoryService", "Memory extraction failed", map[string]interface{}{
		"stage": err.Stage,
		"error": err.Error(),
	})
}

// renderTranscript prints the tail of the conversation as "Role: content"
// lines. latestReply is appended unless it is already the last message.
func renderTranscript(conversation []llm.Message, latestReply string) string {
	var msgs []llm.Message
	for _, m := range conversation {
		if m.Role == "system" || strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	latestReply = strings.TrimSpace(latestReply)
	if latestReply != "" {
		n := len(msgs)
		if n == 0 || msgs[n-1].Role != "assistant" || strings.TrimSpace(msgs[n-1].Content) != latestReply {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: latestReply})
		}
	}
	if len(msgs) > transcriptWindow {
		msgs = msgs[len(msgs)-transcriptWindow:]
	}

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Role == "assistant" {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(strings.TrimSpace(m.Content))
	}
	return b.String()
}
