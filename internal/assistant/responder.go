package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/ShopPipe/internal/genai"
	"github.com/BTreeMap/ShopPipe/internal/models"
	"github.com/BTreeMap/ShopPipe/internal/tone"
)

// FallbackReply is sent when the model cannot produce a reply.
const FallbackReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// ReplyRequest is everything the responder needs for one reply.
type ReplyRequest struct {
	StoreName string
	Settings  models.ChatSettings
	History   []models.Message
	// Context is extra grounding such as product search results.
	Context string
}

// Responder produces free-form assistant replies.
type Responder struct {
	client genai.ClientInterface
}

// NewResponder returns a responder over client.
func NewResponder(client genai.ClientInterface) *Responder {
	return &Responder{client: client}
}

// Reply never fails; it returns FallbackReply on any error.
func (r *Responder) Reply(ctx context.Context, req ReplyRequest) string {
	if r == nil || r.client == nil {
		return FallbackReply
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt(req))}
	messages = append(messages, toChatMessages(trimHistory(req.History, HistoryLimit))...)

	reply, err := r.client.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Warn("Responder.Reply: model call failed", "error", err, "store_id", req.Settings.StoreID)
		return FallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return FallbackReply
	}
	return reply
}

func systemPrompt(req ReplyRequest) string {
	var b strings.Builder
	storeName := req.StoreName
	if storeName == "" {
		storeName = "an online store"
	}
	fmt.Fprintf(&b, "You are the customer chat assistant for %s. Answer questions about the store, its products and orders. Never invent order details or prices you were not given.\n\n", storeName)
	b.WriteString(tone.BuildToneGuide(req.Settings))
	if c := strings.TrimSpace(req.Context); c != "" {
		b.WriteString("\n\n<CONTEXT>\n")
		b.WriteString(c)
		b.WriteString("\n</CONTEXT>")
	}
	return b.String()
}
