// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package agent is the orchestrator: one inbound delivery in, one
// classified Outcome out. It owns the processing pipeline (admission,
// append, context assembly, inference, dispatch) and the per-user
// serialization that keeps the conversation log ordered.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/coach"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/dedup"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
	"github.com/dietbuddy/dietbuddy/pkg/providers"
	"github.com/dietbuddy/dietbuddy/pkg/store"
)

// InboundEvent is one transport delivery, already reduced to the fields
// the pipeline needs. EventID is the transport's delivery id and drives
// dedup; Identifier must be canonical (see CanonicalIdentifier).
type InboundEvent struct {
	Transport   string
	Identifier  string
	DisplayName string
	EventID     string
	Text        string
}

// MessageStore is the slice of the store the pipeline writes and reads.
// *store.Store implements it; tests substitute fault-injecting fakes.
type MessageStore interface {
	EnsureUser(ctx context.Context, identifier, displayName string) (store.User, error)
	AppendMessage(ctx context.Context, userID int64, role, content, eventID string) (store.Message, error)
	RecentMessages(ctx context.Context, userID int64, limit int) ([]store.Message, error)
	LogWater(ctx context.Context, userID int64, amountML int64, atMS int64) error
	LogFood(ctx context.Context, userID int64, mealType, description string, atMS int64) error
	IntakeSince(ctx context.Context, userID int64, sinceMS int64) (store.IntakeSummary, error)
}

// Admitter decides Fresh vs Duplicate for a delivery.
// *dedup.Deduplicator implements it.
type Admitter interface {
	Admit(ctx context.Context, userID int64, eventID string) (*dedup.Ticket, error)
}

// Dispatcher delivers one assistant reply over a transport. Identifier is
// the canonical store identifier; the dispatcher maps it back to whatever
// the transport needs.
type Dispatcher interface {
	Deliver(ctx context.Context, identifier, content string) error
}

type Agent struct {
	store    MessageStore
	admitter Admitter
	provider providers.LLMProvider
	coach    *coach.Coach

	model           string
	maxTokens       int
	temperature     float64
	window          int
	maxContextChars int
	modelTimeout    time.Duration
	fallbackReply   string
	loc             *time.Location

	locks *keyedLocks

	dispMu      sync.RWMutex
	dispatchers map[string]Dispatcher
}

// New wires the pipeline. Config values are snapshotted here; a reload
// needs a new Agent.
func New(cfg *config.Config, st MessageStore, adm Admitter, provider providers.LLMProvider) *Agent {
	loc := cfg.Location()
	model := cfg.Agent.Model
	if model == "" && provider != nil {
		model = provider.GetDefaultModel()
	}
	return &Agent{
		store:           st,
		admitter:        adm,
		provider:        provider,
		coach:           coach.New(loc),
		model:           model,
		maxTokens:       cfg.Agent.MaxTokens,
		temperature:     cfg.Agent.Temperature,
		window:          cfg.ContextWindow(),
		maxContextChars: cfg.Agent.MaxContextChars,
		modelTimeout:    cfg.ModelTimeout(),
		fallbackReply:   cfg.Agent.FallbackReply,
		loc:             loc,
		locks:           newKeyedLocks(),
		dispatchers:     make(map[string]Dispatcher),
	}
}

// RegisterDispatcher binds a transport name to its delivery client.
// Registering again replaces the previous binding.
func (a *Agent) RegisterDispatcher(transport string, d Dispatcher) {
	a.dispMu.Lock()
	defer a.dispMu.Unlock()
	a.dispatchers[transport] = d
}

func (a *Agent) dispatcher(transport string) Dispatcher {
	a.dispMu.RLock()
	defer a.dispMu.RUnlock()
	return a.dispatchers[transport]
}

// HandleInbound runs one delivery through the full pipeline and returns
// the classified result. Every failure mode maps to an Outcome status;
// there is no separate error return because the transport has already
// ack'd the delivery and classification is all that is left to report.
func (a *Agent) HandleInbound(ctx context.Context, ev InboundEvent) Outcome {
	started := time.Now()

	// Serialize per user. The lock spans admission through dispatch so
	// concurrent deliveries for the same user cannot interleave appends,
	// and admission order equals append order.
	a.locks.lock(ev.Identifier)
	defer a.locks.unlock(ev.Identifier)

	logger.InfoCF("agent", fmt.Sprintf("Processing message from %s:%s", ev.Transport, ev.Identifier),
		map[string]any{
			"transport": ev.Transport,
			"event_id":  ev.EventID,
			"chars":     len(ev.Text),
		})

	now := time.Now().In(a.loc)

	// 1. Resolve the user row. Nothing is reserved or written yet, so a
	//    failure here is fully retryable.
	user, err := a.store.EnsureUser(ctx, ev.Identifier, ev.DisplayName)
	if err != nil {
		logger.ErrorCF("agent", "User lookup failed", map[string]any{"error": err.Error()})
		return Outcome{Status: StatusStoreUnavailable, Err: err}
	}

	// 2. Admit the delivery. Duplicates end here, before any write and
	//    before the model is ever consulted.
	ticket, err := a.admitter.Admit(ctx, user.ID, ev.EventID)
	if err != nil {
		if errors.Is(err, dedup.ErrDuplicateEvent) {
			logger.InfoCF("agent", "Duplicate delivery dropped", map[string]any{
				"event_id": ev.EventID,
			})
			return Outcome{Status: StatusDuplicate, UserID: user.ID}
		}
		logger.ErrorCF("agent", "Admission check failed", map[string]any{"error": err.Error()})
		return Outcome{Status: StatusStoreUnavailable, UserID: user.ID, Err: err}
	}

	// 3. Append the inbound message, then commit the reservation. This
	//    order matters: committing before a failed append would let a
	//    store outage permanently blacklist a retryable event id.
	if _, err := a.store.AppendMessage(ctx, user.ID, store.RoleUser, ev.Text, ev.EventID); err != nil {
		ticket.Release()
		logger.ErrorCF("agent", "Inbound append failed", map[string]any{"error": err.Error()})
		return Outcome{Status: StatusStoreUnavailable, UserID: user.ID, Err: err}
	}
	if err := ticket.Commit(ctx); err != nil {
		// Append succeeded, so processing continues. The in-memory
		// reservation stays and still absorbs near-term redeliveries.
		logger.WarnCF("agent", "Dedup commit failed, continuing", map[string]any{
			"event_id": ev.EventID,
			"error":    err.Error(),
		})
	}

	// 4. Run the detectors: tracking writes are best-effort, the help
	//    command short-circuits the model entirely.
	assess := a.coach.Assess(ev.Text, now)
	if assess.Help {
		return a.persistAndDispatch(ctx, user, ev, coach.HelpReply, started)
	}
	if assess.Water {
		if err := a.store.LogWater(ctx, user.ID, assess.WaterML, now.UnixMilli()); err != nil {
			logger.WarnCF("agent", "Water log failed", map[string]any{"error": err.Error()})
		}
	}
	if assess.Food {
		if err := a.store.LogFood(ctx, user.ID, assess.MealType, ev.Text, now.UnixMilli()); err != nil {
			logger.WarnCF("agent", "Food log failed", map[string]any{"error": err.Error()})
		}
	}

	// 5. Assemble the prompt: persona and daily context plus the recent
	//    window, which includes the message appended above.
	intake, err := a.store.IntakeSince(ctx, user.ID, startOfDay(now).UnixMilli())
	if err != nil {
		logger.WarnCF("agent", "Intake summary unavailable", map[string]any{"error": err.Error()})
		intake = store.IntakeSummary{}
	}
	history, err := a.store.RecentMessages(ctx, user.ID, a.window)
	if err != nil {
		// The inbound is durably logged and the event id is spent, so
		// this retry path behaves like a model fault: apologize, do not
		// persist the apology.
		logger.ErrorCF("agent", "History read failed", map[string]any{"error": err.Error()})
		sent := a.sendFallback(ctx, ev)
		return Outcome{Status: StatusStoreUnavailable, UserID: user.ID, FallbackSent: sent, Err: err}
	}
	system := a.coach.SystemPrompt(now, user, int64(len(history)), intake)
	if inst := instructionFor(assess); inst != "" {
		system += "\n\n" + inst
	}
	messages := buildWindow(system, history, a.maxContextChars)

	// 6. Invoke the model under its own deadline. A timeout is an
	//    expected outcome here, not a fault.
	mctx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()
	resp, err := a.provider.Chat(mctx, messages, a.model, map[string]interface{}{
		"max_tokens":  a.maxTokens,
		"temperature": a.temperature,
	})
	if err != nil {
		status := StatusModelError
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusModelTimeout
			logger.WarnCF("agent", "Model call timed out", map[string]any{
				"timeout": a.modelTimeout.String(),
			})
		} else {
			logger.ErrorCF("agent", "Model call failed", map[string]any{"error": err.Error()})
		}
		sent := a.sendFallback(ctx, ev)
		return Outcome{Status: status, UserID: user.ID, FallbackSent: sent, Err: err}
	}

	reply := coach.CleanReply(resp.Content)
	if reply == "" {
		err := fmt.Errorf("model returned an empty reply")
		logger.WarnCF("agent", "Empty model reply", map[string]any{
			"finish_reason": resp.FinishReason,
		})
		sent := a.sendFallback(ctx, ev)
		return Outcome{Status: StatusModelError, UserID: user.ID, FallbackSent: sent, Err: err}
	}

	// 7. Persist the assistant turn, then dispatch.
	return a.persistAndDispatch(ctx, user, ev, reply, started)
}

// persistAndDispatch appends the assistant turn and pushes it out. The
// row is written before delivery and stays even when delivery fails: the
// log records the intended conversation, and the next context window must
// include this reply so the model never repeats itself.
func (a *Agent) persistAndDispatch(ctx context.Context, user store.User, ev InboundEvent, reply string, started time.Time) Outcome {
	if _, err := a.store.AppendMessage(ctx, user.ID, store.RoleAssistant, reply, ""); err != nil {
		logger.ErrorCF("agent", "Assistant append failed", map[string]any{"error": err.Error()})
		sent := a.sendFallback(ctx, ev)
		return Outcome{Status: StatusStoreUnavailable, UserID: user.ID, FallbackSent: sent, Err: err}
	}

	d := a.dispatcher(ev.Transport)
	if d == nil {
		err := fmt.Errorf("no dispatcher registered for transport %q", ev.Transport)
		logger.ErrorCF("agent", "Dispatch failed", map[string]any{"error": err.Error()})
		return Outcome{Status: StatusDispatchFailed, UserID: user.ID, Reply: reply, Err: err}
	}
	if err := d.Deliver(ctx, ev.Identifier, reply); err != nil {
		if errors.Is(err, ErrOutsideReplyWindow) {
			logger.WarnCF("agent", "Reply window closed", map[string]any{
				"identifier": ev.Identifier,
			})
			return Outcome{Status: StatusOutsideWindow, UserID: user.ID, Reply: reply, Err: err}
		}
		logger.ErrorCF("agent", "Dispatch failed", map[string]any{"error": err.Error()})
		return Outcome{Status: StatusDispatchFailed, UserID: user.ID, Reply: reply, Err: err}
	}

	logger.InfoCF("agent", "Replied", map[string]any{
		"transport":   ev.Transport,
		"reply_chars": len(reply),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return Outcome{Status: StatusReplied, UserID: user.ID, Reply: reply}
}

// sendFallback pushes the configured apology without persisting it. The
// log only ever holds real conversation turns.
func (a *Agent) sendFallback(ctx context.Context, ev InboundEvent) bool {
	fallback := strings.TrimSpace(a.fallbackReply)
	if fallback == "" {
		return false
	}
	d := a.dispatcher(ev.Transport)
	if d == nil {
		return false
	}
	if err := d.Deliver(ctx, ev.Identifier, fallback); err != nil {
		logger.WarnCF("agent", "Fallback delivery failed", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// instructionFor picks the single instruction the detectors earned, in
// precedence order. Help never reaches here.
func instructionFor(assess coach.Assessment) string {
	switch {
	case assess.Water:
		return coach.WaterLoggedInstruction
	case assess.Summary:
		return coach.SummaryInstruction
	case assess.Food:
		return coach.FoodLoggedInstruction
	case assess.MealSuggestion:
		return coach.MealSuggestionInstruction
	}
	return ""
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
