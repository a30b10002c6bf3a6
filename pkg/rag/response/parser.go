// Package response turns raw completion text into a reply and memory
// candidates. Parsing never fails: malformed output degrades to the raw text.
package response

import (
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/memory"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Result struct {
	Reply      string
	Memories   []memory.Candidate
	ParseError string
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Memories json.RawMessage `json:"memories"`
}

// Parse interprets raw according to mode. In text mode the trimmed text is
// the reply. In json mode raw must hold {"response": string, "memories": [...]},
// optionally inside a ```json fence; anything else falls back to the text.
func Parse(raw string, mode llm.ResponseFormat) Result {
	if mode != llm.ResponseFormatJSON {
		return Result{Reply: verbatim(raw)}
	}

	var env envelope
	if err := json.Unmarshal([]byte(stripFence(raw)), &env); err != nil {
		return fallback(raw, fmt.Errorf("malformed JSON: %w", err))
	}

	var reply string
	if len(env.Response) == 0 {
		return fallback(raw, errors.New(`missing "response" field`))
	}
	if err := json.Unmarshal(env.Response, &reply); err != nil {
		return fallback(raw, errors.New(`"response" is not a string`))
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallback(raw, errors.New(`"response" is empty`))
	}

	result := Result{Reply: reply}
	if len(env.Memories) == 0 || string(env.Memories) == "null" {
		return result
	}

	var candidates []memory.Candidate
	if err := json.Unmarshal(env.Memories, &candidates); err != nil {
		result.ParseError = fmt.Sprintf("invalid memories: %v", err)
		return result
	}
	result.Memories = withContent(candidates)
	return result
}

// ParseMemories decodes the output of an extraction call, accepting either
// {"memories": [...]} or a bare array.
func ParseMemories(raw string) ([]memory.Candidate, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, errors.New("empty extraction output")
	}

	var candidates []memory.Candidate
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &candidates); err != nil {
			return nil, fmt.Errorf("decode memory array: %w", err)
		}
		return withContent(candidates), nil
	}

	var wrapper struct {
		Memories []memory.Candidate `json:"memories"`
	}
	if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
		return nil, fmt.Errorf("decode memory object: %w", err)
	}
	return withContent(wrapper.Memories), nil
}

func fallback(raw string, err error) Result {
	return Result{Reply: verbatim(raw), ParseError: err.Error()}
}

func verbatim(raw string) string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return raw
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func withContent(candidates []memory.Candidate) []memory.Candidate {
	kept := make([]memory.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
