// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package coach

// Deterministic replies that skip the model entirely. The help reply is
// part of the text conversation and gets persisted like any assistant
// turn; media replies answer events that never enter the log.

const HelpReply = "Hey! Here's what I can do 😊\n\n" +
	"🍽️ Tell me what you ate, I'll track it and give tips\n" +
	"💧 Say 'water', I'll log your hydration\n" +
	"🤔 Ask 'what should I eat', I'll suggest meals\n" +
	"📊 Say 'summary', I'll show your weekly eating patterns\n" +
	"📋 Say 'today's log', I'll recap what you ate today\n\n" +
	"Or just chat with me about anything food related!"

// NonTextReply answers media the coach cannot read yet. The kind is the
// provider's message type string.
func NonTextReply(kind string) string {
	switch kind {
	case "image":
		return "Photo mila! 📸 Abhi sirf text se kaam chala lo, batao kya khaya, main track kar lunga!"
	case "audio":
		return "Voice note support aa raha hai jaldi! 🎤 Filhaal text mein batao kya khaya?"
	default:
		return "Hey! Mujhe text mein batao kya khaya ya kya khana hai 😊"
	}
}
