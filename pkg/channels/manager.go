// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
)

// Manager owns the optional chat channels beyond the webhook. Channels
// talk to the agent directly; there is no intermediate queue.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

func NewManager(cfg *config.Config, ag *agent.Agent) (*Manager, error) {
	m := &Manager{channels: make(map[string]Channel)}

	if cfg.Channels.Discord.Enabled {
		if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
			return nil, fmt.Errorf("channels.discord.token is required when discord is enabled")
		}
		discord, err := NewDiscordChannel(cfg.Channels.Discord, ag)
		if err != nil {
			return nil, fmt.Errorf("initialize discord channel: %w", err)
		}
		m.channels["discord"] = discord
		logger.InfoC("channels", "Discord channel initialized")
	}

	return m, nil
}

// StartAll starts every configured channel. A failure stops the ones
// already started and reports the lot.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channelsCopy := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		channelsCopy[name] = channel
	}
	m.mu.RUnlock()

	if len(channelsCopy) == 0 {
		return nil
	}

	var started []string
	var startErrors []string
	for name, channel := range channelsCopy {
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		started = append(started, name)
	}

	if len(startErrors) > 0 {
		for _, name := range started {
			if err := channelsCopy[name].Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]any{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("failed to start channels: %s", strings.Join(startErrors, "; "))
	}

	logger.InfoCF("channels", "Channels started", map[string]any{
		"count": len(started),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
