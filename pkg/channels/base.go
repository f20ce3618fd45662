package channels

import (
	"context"
	"strings"
	"sync/atomic"
)

// Channel is one chat surface wired to the agent.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// BaseChannel carries what every channel shares: identity, the sender
// allowlist, and the running flag.
type BaseChannel struct {
	name      string
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed reports whether a sender passes the channel allowlist. An
// empty list allows everyone. Entries match the raw sender id or the
// username, case-insensitively, with a leading @ tolerated.
func (c *BaseChannel) IsAllowed(senderID, username string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID {
			return true
		}
		if username != "" && strings.EqualFold(candidate, username) {
			return true
		}
	}
	return false
}
