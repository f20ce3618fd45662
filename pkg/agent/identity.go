package agent

import (
	"fmt"
	"strings"
)

// Transport names used for identity namespacing and dispatcher lookup.
const (
	TransportWhatsApp = "whatsapp"
	TransportDiscord  = "discord"
	TransportCLI      = "cli"
)

// CanonicalIdentifier maps a transport-level sender to the stable store
// identifier. WhatsApp numbers normalize to bare digits; other transports
// get a prefix so ids can never collide across transports.
func CanonicalIdentifier(transport, sender string) (string, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", fmt.Errorf("empty sender id")
	}

	switch transport {
	case TransportWhatsApp:
		digits := normalizePhone(sender)
		if len(digits) < 7 || len(digits) > 15 {
			return "", fmt.Errorf("invalid phone number %q", sender)
		}
		return digits, nil
	case TransportDiscord:
		return "discord:" + sender, nil
	case TransportCLI:
		return "cli:" + strings.ToLower(sender), nil
	default:
		return "", fmt.Errorf("unknown transport %q", transport)
	}
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
