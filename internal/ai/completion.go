package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatter/internal/models"

	"github.com/sashabaranov/go-openai"
)

const (
	maxHistory     = 20
	maxSuggestions = 3
)

// Completer asks a chat model for reply suggestions.
type Completer struct {
	client *openai.Client
	model  string
	env    string
}

func NewCompleter(client *openai.Client, model, env string) *Completer {
	return &Completer{client: client, model: model, env: env}
}

// SuggestReplies returns up to three suggestions username might send next.
func (c *Completer) SuggestReplies(ctx context.Context, history []models.Message, username string) ([]string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    BuildPrompt(history, username),
		Temperature: 0.7,
		MaxTokens:   150,
		N:           1,
		User:        fmt.Sprintf("%s_smart_replies_%s", username, c.env),
	})
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion response has no choices")
	}

	return ParseSuggestions(resp.Choices[0].Message.Content), nil
}

// BuildPrompt lays out the conversation for the model: the requester's own
// lines become assistant turns, everyone else's user turns.
func BuildPrompt(history []models.Message, username string) []openai.ChatCompletionMessage {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("You are a helpful assistant generating reply suggestions for a group chat. "+
			"The current user is %q. Generate 3 concise, natural-sounding replies that %s might send. "+
			"Be conversational, friendly, and contextually relevant to the recent messages. "+
			"Keep suggestions under 150 characters each.", username, username),
	})

	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Username == username {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: fmt.Sprintf("%s: %s", m.Username, m.Content),
		})
	}

	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("Based on this conversation, generate 3 possible replies for %s. "+
			"Format the response as 3 separate lines with no numbering or prefixes.", username),
	})
	return msgs
}

// ParseSuggestions splits a completion into at most three non-empty lines.
func ParseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
