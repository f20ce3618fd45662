// DietBuddy - WhatsApp diet coaching agent
// License: MIT
// Copyright (c) 2026 DietBuddy contributors

// Package whatsapp is the WhatsApp Cloud API client. It turns assistant
// replies into Graph API sends and maps the provider's refusals onto the
// dispatch contract.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/config"
	"github.com/dietbuddy/dietbuddy/pkg/logger"
)

const (
	sendTimeout = 30 * time.Second

	// Graph error code for a send attempted after the customer service
	// window closed. Only a template message could go through, and the
	// coach never sends those.
	errCodeReEngagement = 131047
)

// Client sends text messages through one WhatsApp Business phone number.
// It implements the agent's Dispatcher contract.
type Client struct {
	apiBase       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
}

func NewClient(cfg *config.Config) (*Client, error) {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.WhatsApp.APIBase), "/")
	phoneNumberID := strings.TrimSpace(cfg.WhatsApp.PhoneNumberID)
	accessToken := strings.TrimSpace(cfg.WhatsApp.AccessToken)

	if apiBase == "" {
		return nil, fmt.Errorf("whatsapp api_base is required")
	}
	if phoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone_number_id is required (set whatsapp.phone_number_id or DIETBUDDY_WHATSAPP_PHONE_NUMBER_ID)")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("whatsapp access_token is required (set whatsapp.access_token or DIETBUDDY_WHATSAPP_ACCESS_TOKEN)")
	}

	return &Client{
		apiBase:       apiBase,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		httpClient:    &http.Client{Timeout: sendTimeout},
	}, nil
}

// Deliver sends one text reply. Identifier is the canonical phone in
// international digits, which is exactly what the Graph API expects.
func (c *Client) Deliver(ctx context.Context, identifier, content string) error {
	return c.SendText(ctx, identifier, content)
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.apiBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read send response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		gerr := parseGraphError(respBody)
		if gerr.Code == errCodeReEngagement {
			return fmt.Errorf("whatsapp rejected send to %s (code %d): %w", to, gerr.Code, agent.ErrOutsideReplyWindow)
		}
		return fmt.Errorf("whatsapp send failed: status=%d code=%d error=%s", resp.StatusCode, gerr.Code, gerr.Message)
	}

	logger.DebugCF("whatsapp", "Message sent", map[string]any{
		"to":    to,
		"chars": len(body),
	})
	return nil
}

type graphError struct {
	Message string
	Type    string
	Code    int
	Subcode int
}

func parseGraphError(body []byte) graphError {
	var payload struct {
		Error struct {
			Message      string `json:"message"`
			Type         string `json:"type"`
			Code         int    `json:"code"`
			ErrorSubcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && (payload.Error.Message != "" || payload.Error.Code != 0) {
		return graphError{
			Message: payload.Error.Message,
			Type:    payload.Error.Type,
			Code:    payload.Error.Code,
			Subcode: payload.Error.ErrorSubcode,
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return graphError{Message: msg}
}
