// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package webhook is the HTTP face of the service: the WhatsApp Cloud
// API webhook pair (verification handshake and event receiver), health
// probes, and a token-guarded admin surface over the conversation log.
package webhook

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/coach"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
	"github.com/dietbuddy/dietbuddy/pkg/store"
)

const (
	// processTimeout bounds one full pipeline run kicked off by a
	// webhook delivery. It must exceed the model timeout with room for
	// store writes and the outbound send.
	processTimeout = 2 * time.Minute

	cannedSendTimeout = 30 * time.Second

	// Cloud API events are small; anything bigger is not for us.
	maxBodyBytes = 1 << 20
)

// Server handles the inbound HTTP surface. Webhook deliveries are ack'd
// immediately and processed on their own goroutine; WhatsApp retries on
// slow responses, and retries are exactly what dedup is for, but there
// is no reason to invite them.
type Server struct {
	agent  *agent.Agent
	store  *store.Store
	sender agent.Dispatcher

	verifyToken string
	adminToken  string
	loc         *time.Location

	httpServer *http.Server
}

// New builds the server. sender delivers canned replies for non-text
// events, which never enter the conversation log; nil disables them.
func New(cfg *config.Config, ag *agent.Agent, st *store.Store, sender agent.Dispatcher) *Server {
	s := &Server{
		agent:       ag,
		store:       st,
		sender:      sender,
		verifyToken: cfg.WhatsApp.VerifyToken,
		adminToken:  cfg.Server.AdminToken,
		loc:         cfg.Location(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/admin/stats", s.withAdmin(s.handleStats))
	mux.HandleFunc("/admin/users", s.withAdmin(s.handleUsers))
	mux.HandleFunc("/admin/chat/", s.withAdmin(s.handleChat))
	mux.HandleFunc("/admin/weekly/", s.withAdmin(s.handleWeekly))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "dietbuddy",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().In(s.loc).Format(time.RFC3339),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerify(w, r)
	case http.MethodPost:
		s.handleReceive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerify answers Meta's subscription handshake: echo the challenge
// when the token matches, 403 otherwise. An unset token always fails.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && s.verifyToken != "" && q.Get("hub.verify_token") == s.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	logger.WarnCF("webhook", "Verification handshake rejected", map[string]any{
		"mode": q.Get("hub.mode"),
	})
	http.Error(w, "verification failed", http.StatusForbidden)
}

// handleReceive acks every delivery with 200 no matter what happens
// after parsing. Returning an error status would only make the provider
// redeliver events the pipeline has already classified.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload webhookPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		logger.WarnCF("webhook", "Undecodable webhook payload", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			s.routeChange(change.Value)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) routeChange(value changeValue) {
	// Status callbacks (sent/delivered/read) carry no user content.
	if len(value.Messages) == 0 {
		return
	}

	for _, msg := range value.Messages {
		identifier, err := agent.CanonicalIdentifier(agent.TransportWhatsApp, msg.From)
		if err != nil {
			logger.WarnCF("webhook", "Unusable sender id", map[string]any{
				"from":  msg.From,
				"error": err.Error(),
			})
			continue
		}

		if msg.Type == "text" && msg.Text != nil {
			ev := agent.InboundEvent{
				Transport:   agent.TransportWhatsApp,
				Identifier:  identifier,
				DisplayName: value.profileName(msg.From),
				EventID:     msg.ID,
				Text:        msg.Text.Body,
			}
			go s.process(ev)
			continue
		}

		// Media and anything else gets a canned nudge back toward text.
		// These events never enter the conversation log.
		go s.sendCanned(identifier, coach.NonTextReply(msg.Type))
	}
}

func (s *Server) process(ev agent.InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	out := s.agent.HandleInbound(ctx, ev)
	if out.Err != nil {
		logger.WarnCF("webhook", "Delivery classified "+string(out.Status), map[string]any{
			"event_id": ev.EventID,
			"error":    out.Err.Error(),
		})
	}
}

func (s *Server) sendCanned(identifier, reply string) {
	if s.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cannedSendTimeout)
	defer cancel()
	if err := s.sender.Deliver(ctx, identifier, reply); err != nil {
		logger.WarnCF("webhook", "Canned reply delivery failed", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
	}
}

// withAdmin guards the reporting endpoints. No configured token means
// the whole admin surface is off.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			http.Error(w, "admin api disabled", http.StatusForbidden)
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	midnight := startOfDay(time.Now().In(s.loc)).UnixMilli()

	totalUsers, err := s.store.CountUsers(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	totalMessages, err := s.store.CountMessages(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	messagesToday, err := s.store.CountMessagesSince(ctx, midnight)
	if err != nil {
		writeError(w, err)
		return
	}
	active, err := s.store.ActiveUsersSince(ctx, midnight)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":    totalUsers,
		"total_messages": totalMessages,
		"messages_today": messagesToday,
		"active_today":   len(active),
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	users, err := s.store.ListUsers(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"identifier":    u.Identifier,
			"display_name":  u.DisplayName,
			"message_count": u.MessageCount,
			"first_seen":    u.FirstSeen.In(s.loc).Format(time.RFC3339),
			"last_active":   u.LastActive.In(s.loc).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimPrefix(r.URL.Path, "/admin/chat/")
	if identifier == "" {
		http.Error(w, "identifier required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "unknown user", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}

	limit := queryInt(r, "limit", 30)
	messages, err := s.store.RecentMessages(ctx, user.ID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	intake, err := s.store.IntakeSince(ctx, user.ID, startOfDay(time.Now().In(s.loc)).UnixMilli())
	if err != nil {
		writeError(w, err)
		return
	}

	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, map[string]any{
			"role":    m.Role,
			"content": m.Content,
			"at":      m.CreatedAt.In(s.loc).Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identifier":     user.Identifier,
		"display_name":   user.DisplayName,
		"messages":       msgs,
		"water_ml_today": intake.WaterML,
		"food_today":     foodJSON(intake.Food, s.loc),
	})
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimPrefix(r.URL.Path, "/admin/weekly/")
	if identifier == "" {
		http.Error(w, "identifier required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	user, err := s.store.GetUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "unknown user", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}

	weekAgo := time.Now().In(s.loc).AddDate(0, 0, -7)
	intake, err := s.store.IntakeSince(ctx, user.ID, weekAgo.UnixMilli())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"identifier": user.Identifier,
		"days":       7,
		"water_ml":   intake.WaterML,
		"messages":   intake.MessageCount,
		"food":       foodJSON(intake.Food, s.loc),
	})
}

func foodJSON(entries []store.FoodEntry, loc *time.Location) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, fe := range entries {
		out = append(out, map[string]any{
			"meal_type":   fe.MealType,
			"description": fe.Description,
			"at":          fe.LoggedAt.In(loc).Format(time.RFC3339),
		})
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("webhook", "Response encode failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	logger.ErrorCF("webhook", "Admin query failed", map[string]any{"error": err.Error()})
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
