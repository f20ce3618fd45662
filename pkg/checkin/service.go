// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package checkin sends the scheduled daily nudge. A check-in is a real
// assistant turn: it is appended to the conversation log before sending,
// so the next model call knows it already asked.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
	"github.com/dietbuddy/dietbuddy/pkg/store"
)

const sendBatchTimeout = 2 * time.Minute

// Service wakes once a minute and fires when the cron schedule is due.
// Recipients are filtered to users still inside the provider's reply
// window, with an hour of slack so sends stay clear of the edge.
type Service struct {
	store    *store.Store
	sender   agent.Dispatcher
	schedule string
	message  string
	window   time.Duration
	loc      *time.Location

	now func() time.Time

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg *config.Config, st *store.Store, sender agent.Dispatcher) (*Service, error) {
	schedule := strings.TrimSpace(cfg.Checkin.Schedule)
	message := strings.TrimSpace(cfg.Checkin.Message)
	if message == "" {
		return nil, fmt.Errorf("checkin message is empty")
	}

	gron := gronx.New()
	if !gron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid checkin schedule %q", schedule)
	}

	window := time.Duration(cfg.WhatsApp.ReplyWindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &Service{
		store:    st,
		sender:   sender,
		schedule: schedule,
		message:  message,
		window:   window,
		loc:      cfg.Location(),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	logger.InfoCF("checkin", "Scheduler started", map[string]any{
		"schedule": s.schedule,
	})
}

// Close stops the scheduler. Idempotent.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	return nil
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	now := s.now().In(s.loc)
	// Gronx checkers carry the reference time between calls; a fresh one
	// per evaluation keeps ticks independent.
	gron := gronx.New()
	due, err := gron.IsDue(s.schedule, now)
	if err != nil {
		logger.WarnCF("checkin", "Schedule evaluation failed", map[string]any{"error": err.Error()})
		return
	}
	if !due {
		return
	}
	s.sendCheckins(now)
}

func (s *Service) sendCheckins(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), sendBatchTimeout)
	defer cancel()

	slack := time.Hour
	if s.window <= slack {
		slack = 0
	}
	cutoff := now.Add(-(s.window - slack))

	users, err := s.store.ActiveUsersSince(ctx, cutoff.UnixMilli())
	if err != nil {
		logger.ErrorCF("checkin", "Recipient query failed", map[string]any{"error": err.Error()})
		return
	}

	sent := 0
	for _, user := range users {
		if !isWhatsAppIdentifier(user.Identifier) {
			continue
		}

		last, err := s.store.LastCheckin(ctx, user.ID)
		if err != nil {
			logger.WarnCF("checkin", "Last-checkin lookup failed", map[string]any{
				"identifier": user.Identifier,
				"error":      err.Error(),
			})
			continue
		}
		if sameDay(last, now, s.loc) {
			continue
		}

		// Append first, then record, then send. The log is the source
		// of truth for what the coach said, delivered or not.
		if _, err := s.store.AppendMessage(ctx, user.ID, store.RoleAssistant, s.message, ""); err != nil {
			logger.WarnCF("checkin", "Check-in append failed", map[string]any{
				"identifier": user.Identifier,
				"error":      err.Error(),
			})
			continue
		}
		if err := s.store.RecordCheckin(ctx, user.ID, now.UnixMilli()); err != nil {
			logger.WarnCF("checkin", "Check-in record failed", map[string]any{"error": err.Error()})
		}

		if err := s.sender.Deliver(ctx, user.Identifier, s.message); err != nil {
			if errors.Is(err, agent.ErrOutsideReplyWindow) {
				logger.InfoCF("checkin", "Reply window closed before send", map[string]any{
					"identifier": user.Identifier,
				})
			} else {
				logger.WarnCF("checkin", "Check-in delivery failed", map[string]any{
					"identifier": user.Identifier,
					"error":      err.Error(),
				})
			}
			continue
		}
		sent++
	}

	if sent > 0 {
		logger.InfoCF("checkin", "Check-ins sent", map[string]any{
			"recipients": sent,
			"candidates": len(users),
		})
	}
}

// isWhatsAppIdentifier reports whether the identifier is a bare phone
// number. Prefixed identifiers belong to other transports and are not
// reachable through the WhatsApp sender.
func isWhatsAppIdentifier(identifier string) bool {
	return !strings.Contains(identifier, ":")
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
