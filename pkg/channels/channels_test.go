package channels

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/config"
)

func TestIsAllowed(t *testing.T) {
	testcases := []struct {
		name      string
		allowList []string
		senderID  string
		username  string
		want      bool
	}{
		{"empty list allows everyone", nil, "123", "greg", true},
		{"id match", []string{"123"}, "123", "greg", true},
		{"username match", []string{"greg"}, "123", "greg", true},
		{"username match is case-insensitive", []string{"Greg"}, "123", "greg", true},
		{"leading @ tolerated", []string{"@greg"}, "123", "greg", true},
		{"no match", []string{"456", "priya"}, "123", "greg", false},
		{"blank entries ignored", []string{" ", ""}, "123", "greg", false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewBaseChannel("discord", tc.allowList)
			if got := c.IsAllowed(tc.senderID, tc.username); got != tc.want {
				t.Errorf("IsAllowed(%q, %q) = %v, want %v", tc.senderID, tc.username, got, tc.want)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Run("short message stays whole", func(t *testing.T) {
		chunks := splitMessage("hello", 1500)
		if len(chunks) != 1 || chunks[0] != "hello" {
			t.Fatalf("got %v", chunks)
		}
	})

	t.Run("splits on newline near the limit", func(t *testing.T) {
		first := strings.Repeat("a", 1450)
		second := strings.Repeat("b", 300)
		chunks := splitMessage(first+"\n"+second, 1500)
		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(chunks))
		}
		if chunks[0] != first {
			t.Errorf("first chunk should end at the newline, got %d bytes", len(chunks[0]))
		}
		if chunks[1] != second {
			t.Errorf("second chunk wrong: %d bytes", len(chunks[1]))
		}
	})

	t.Run("falls back to space then hard cut", func(t *testing.T) {
		content := strings.Repeat("a", 1460) + " " + strings.Repeat("b", 200)
		chunks := splitMessage(content, 1500)
		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(chunks))
		}
		if len(chunks[0]) != 1460 {
			t.Errorf("first chunk should end at the space, got %d bytes", len(chunks[0]))
		}

		solid := strings.Repeat("x", 3200)
		chunks = splitMessage(solid, 1500)
		if len(chunks) != 3 {
			t.Fatalf("unbroken text should hard-cut into 3 chunks, got %d", len(chunks))
		}
		for i, chunk := range chunks {
			if len(chunk) > 1500 {
				t.Errorf("chunk %d exceeds the limit: %d bytes", i, len(chunk))
			}
		}
	})
}

func TestAttachmentKind(t *testing.T) {
	testcases := []struct {
		name        string
		attachments []*discordgo.MessageAttachment
		want        string
	}{
		{"none", nil, "other"},
		{"image", []*discordgo.MessageAttachment{{ContentType: "image/png"}}, "image"},
		{"audio", []*discordgo.MessageAttachment{{ContentType: "audio/ogg"}}, "audio"},
		{"document", []*discordgo.MessageAttachment{{ContentType: "application/pdf"}}, "other"},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			if got := attachmentKind(tc.attachments); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewManager_DiscordDisabledByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	m, err := NewManager(cfg, &agent.Agent{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, ok := m.GetChannel("discord"); ok {
		t.Error("discord should not be registered when disabled")
	}

	cfg.Channels.Discord.Enabled = true
	if _, err := NewManager(cfg, &agent.Agent{}); err == nil {
		t.Error("enabling discord without a token should fail")
	}
}
