// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package coach

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// WhatsApp caps messages at 4096 chars; trimming at 4000 bytes leaves
// headroom whatever the encoding.
const maxReplyBytes = 4000

var (
	boldRe     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headerRe   = regexp.MustCompile(`(?m)^#{1,3}\s+`)
	emojiRunRe = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}]{4,}`)
)

// CleanReply strips the model artifacts the persona forbids but models
// emit anyway: markdown bold and headers, emoji pileups, and replies past
// the WhatsApp length cap. Runs before the reply is persisted so the log
// matches what went out.
func CleanReply(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = headerRe.ReplaceAllString(text, "")
	text = emojiRunRe.ReplaceAllStringFunc(text, func(run string) string {
		r := []rune(run)
		return string(r[:3])
	})

	if len(text) > maxReplyBytes {
		window := text[:maxReplyBytes]
		if cut := strings.LastIndex(window, "\n\n"); cut > 2000 {
			text = window[:cut]
		} else if cut := strings.LastIndex(window, ". "); cut > 0 {
			text = window[:cut+1]
		} else {
			cut := maxReplyBytes
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
	}

	return strings.TrimSpace(text)
}
