// Package assistant wraps the LLM calls of the chat pipeline: intent
// classification, FAQ matching and free-form replies. Every call fails soft
// to a safe default so a degraded model never breaks request handling.
package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/ShopPipe/internal/models"
)

// HistoryLimit bounds how many recent messages are sent to the model.
const HistoryLimit = 20

var errNoJSON = errors.New("no JSON object in model output")

// decodeJSON unmarshals the first {...} span of raw into v. Models sometimes
// wrap JSON in prose or code fences.
func decodeJSON(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

// trimHistory keeps the last limit messages.
func trimHistory(history []models.Message, limit int) []models.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// transcript renders messages as "Customer:"/"Assistant:" lines.
func transcript(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		speaker := "Customer"
		if m.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.TrimSpace(m.Content))
	}
	return b.String()
}

// toChatMessages maps a transcript to OpenAI message params.
func toChatMessages(history []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleAssistant {
			out = append(out, openai.AssistantMessage(m.Content))
			continue
		}
		out = append(out, openai.UserMessage(m.Content))
	}
	return out
}

// lastUserMessage returns the content of the newest customer message.
func lastUserMessage(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
