// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package agent

import (
	"github.com/dietbuddy/dietbuddy/pkg/providers"
	"github.com/dietbuddy/dietbuddy/pkg/store"
)

// buildWindow assembles the provider payload: system context first, then
// the recent conversation oldest-first. When a character budget is set,
// the oldest turns drop first. The newest message is never dropped, even
// when it alone blows the budget; truncating the turn being answered
// would be worse than an oversized prompt.
func buildWindow(systemPrompt string, history []store.Message, maxChars int) []providers.Message {
	start := 0
	if maxChars > 0 && len(history) > 0 {
		total := len(systemPrompt)
		for i := len(history) - 1; i >= 0; i-- {
			total += len(history[i].Content)
			if total > maxChars && i < len(history)-1 {
				start = i + 1
				break
			}
		}
	}

	messages := make([]providers.Message, 0, len(history)-start+1)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	for _, m := range history[start:] {
		messages = append(messages, providers.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}
