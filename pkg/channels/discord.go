package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/coach"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second

	// Discord allows 2000 characters per message; 1500 leaves room to
	// split on natural boundaries.
	discordChunkLimit = 1500

	processTimeout = 2 * time.Minute
)

// DiscordChannel runs the coach over Discord DMs. It feeds inbound
// messages into the agent pipeline and registers itself as the agent's
// dispatcher for the discord transport.
type DiscordChannel struct {
	*BaseChannel
	session  *discordgo.Session
	agent    *agent.Agent
	typing   map[string]*typingSession
	typingMu sync.Mutex
}

type typingSession struct {
	pending int
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, ag *agent.Agent) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	c := &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", cfg.AllowFrom),
		session:     session,
		agent:       ag,
		typing:      make(map[string]*typingSession),
	}
	ag.RegisterDispatcher(agent.TransportDiscord, c)
	return c, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

// Deliver implements the agent dispatch contract: resolve the DM channel
// for the identifier and send the reply in Discord-sized chunks.
func (c *DiscordChannel) Deliver(ctx context.Context, identifier, content string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	userID := strings.TrimPrefix(identifier, "discord:")
	if userID == identifier || userID == "" {
		return fmt.Errorf("not a discord identifier: %q", identifier)
	}

	dm, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}

	for _, chunk := range splitMessage(content, discordChunkLimit) {
		if err := c.sendChunk(ctx, dm.ID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}
	// The coach is a 1:1 conversation; guild chatter is not for us.
	if m.GuildID != "" {
		return
	}
	if !c.IsAllowed(m.Author.ID, m.Author.Username) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]any{
			"user_id": m.Author.ID,
		})
		return
	}

	identifier, err := agent.CanonicalIdentifier(agent.TransportDiscord, m.Author.ID)
	if err != nil {
		logger.WarnCF("discord", "Unusable sender id", map[string]any{"error": err.Error()})
		return
	}

	if strings.TrimSpace(m.Content) == "" {
		if len(m.Attachments) == 0 {
			return
		}
		// Attachments get the canned nudge back toward text; they never
		// enter the conversation log.
		go c.sendCanned(m.ChannelID, coach.NonTextReply(attachmentKind(m.Attachments)))
		return
	}

	ev := agent.InboundEvent{
		Transport:   agent.TransportDiscord,
		Identifier:  identifier,
		DisplayName: m.Author.Username,
		EventID:     m.ID,
		Text:        m.Content,
	}

	c.beginTyping(m.ChannelID)
	go func() {
		defer c.endTyping(m.ChannelID)

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		out := c.agent.HandleInbound(ctx, ev)
		if out.Err != nil {
			logger.WarnCF("discord", "Delivery classified "+string(out.Status), map[string]any{
				"event_id": ev.EventID,
				"error":    out.Err.Error(),
			})
		}
	}()
}

// attachmentKind maps the first attachment's content type onto the
// canned-reply kinds the coach knows about.
func attachmentKind(attachments []*discordgo.MessageAttachment) string {
	if len(attachments) == 0 {
		return "other"
	}
	ct := attachments[0].ContentType
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.HasPrefix(ct, "audio/"):
		return "audio"
	default:
		return "other"
	}
}

func (c *DiscordChannel) sendCanned(channelID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.sendChunk(ctx, channelID, content); err != nil {
		logger.WarnCF("discord", "Canned reply failed", map[string]any{"error": err.Error()})
	}
}

// splitMessage splits a long reply into chunks on natural boundaries,
// preferring a newline near the end, then a space, then a hard cut.
func splitMessage(content string, limit int) []string {
	var messages []string

	for len(content) > 0 {
		if len(content) <= limit {
			messages = append(messages, content)
			break
		}

		msgEnd := findLastNewline(content[:limit], 200)
		if msgEnd <= 0 {
			msgEnd = findLastSpace(content[:limit], 100)
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		messages = append(messages, content[:msgEnd])
		content = strings.TrimSpace(content[msgEnd:])
	}

	return messages
}

// findLastNewline finds the last newline within the trailing search
// window, or -1.
func findLastNewline(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}

// findLastSpace finds the last space or tab within the trailing search
// window, or -1.
func findLastSpace(s string, searchWindow int) int {
	searchStart := len(s) - searchWindow
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(s) - 1; i >= searchStart; i-- {
		if s[i] == ' ' || s[i] == '\t' {
			return i
		}
	}
	return -1
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if channelID == "" || c.session == nil {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.DebugCF("discord", "Typing indicator failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *DiscordChannel) beginTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	if sess, ok := c.typing[channelID]; ok {
		sess.pending++
		c.typingMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.typing[channelID] = &typingSession{
		pending: 1,
		cancel:  cancel,
	}
	c.typingMu.Unlock()

	c.sendTyping(channelID)

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsRunning() {
					return
				}
				c.sendTyping(channelID)
			}
		}
	}()
}

func (c *DiscordChannel) endTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	sess.pending--
	if sess.pending > 0 {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	for channelID, sess := range c.typing {
		sess.cancel()
		delete(c.typing, channelID)
	}
}
