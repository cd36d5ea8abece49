package app

import (
	"fmt"
	"strings"

	"docchat/internal/ai"
	"docchat/internal/model"
)

const groundedSystemPrompt = "You are a helpful assistant for a Retrieval-Augmented Generation (RAG) system. " +
	"Answer only from the provided context. If the context is insufficient, say you do not have enough information. " +
	"Keep answers concise and cite sources like [1], [2] based on the provided chunks."

// buildPromptMessages renders the question and the ranked citations into the
// system and user turns sent to the model.
func buildPromptMessages(question string, citations []model.Citation) []ai.ChatMessage {
	blocks := make([]string, len(citations))
	for i, c := range citations {
		blocks[i] = fmt.Sprintf("[[%d]] (score: %.4f) pages %s-%s:\n%s",
			i+1, c.Score, pageLabel(c.PageStart), pageLabel(c.PageEnd), c.Content)
	}
	return []ai.ChatMessage{
		{Role: model.RoleSystem, Content: groundedSystemPrompt},
		{Role: model.RoleUser, Content: "Question: " + question + "\n\nContext:\n" + strings.Join(blocks, "\n\n")},
	}
}

func pageLabel(page int) string {
	if page <= 0 {
		return "?"
	}
	return fmt.Sprint(page)
}
