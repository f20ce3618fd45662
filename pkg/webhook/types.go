// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package webhook

// Wire shapes for WhatsApp Cloud API change notifications. Only the
// fields the pipeline reads are mapped; status callbacks arrive in the
// same envelope with an empty messages list.

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []contact        `json:"contacts"`
	Messages         []inboundMessage `json:"messages"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// profileName resolves the sender's push name, matching by wa_id with a
// fallback to the first contact; single-message payloads carry one.
func (v changeValue) profileName(from string) string {
	for _, c := range v.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(v.Contacts) > 0 {
		return v.Contacts[0].Profile.Name
	}
	return ""
}
