package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dietbuddy/dietbuddy/pkg/agent"
	"github.com/dietbuddy/dietbuddy/pkg/config"
)

func testClient(t *testing.T, apiBase string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.WhatsApp.APIBase = apiBase
	cfg.WhatsApp.PhoneNumberID = "109876543210000"
	cfg.WhatsApp.AccessToken = "wa-test-token"

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSendText_PostsGraphPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.test"}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	if err := c.Deliver(context.Background(), "919876543210", "Arre wah! 🎉"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotPath != "/109876543210000/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer wa-test-token" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotPayload["messaging_product"] != "whatsapp" || gotPayload["to"] != "919876543210" || gotPayload["type"] != "text" {
		t.Errorf("payload envelope wrong: %v", gotPayload)
	}
	text, ok := gotPayload["text"].(map[string]interface{})
	if !ok || text["body"] != "Arre wah! 🎉" {
		t.Errorf("payload body wrong: %v", gotPayload["text"])
	}
}

func TestSendText_ReEngagementCodeMapsToReplyWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Re-engagement message","type":"OAuthException","code":131047,"error_subcode":2494049}}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	err := c.SendText(context.Background(), "919876543210", "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, agent.ErrOutsideReplyWindow) {
		t.Fatalf("code 131047 should map to the reply-window sentinel, got %v", err)
	}
}

func TestSendText_OtherGraphErrorsStayPlainFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	err := c.SendText(context.Background(), "919876543210", "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, agent.ErrOutsideReplyWindow) {
		t.Fatal("an auth failure must not classify as outside the reply window")
	}
	if !strings.Contains(err.Error(), "status=401") || !strings.Contains(err.Error(), "Invalid OAuth access token") {
		t.Errorf("error should carry status and provider message, got %v", err)
	}
}

func TestSendText_NonJSONErrorBodyIsCarried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream gateway error"))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	err := c.SendText(context.Background(), "919876543210", "hello")
	if err == nil || !strings.Contains(err.Error(), "upstream gateway error") {
		t.Fatalf("raw body should survive as the error message, got %v", err)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	testcases := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"missing phone number id", func(cfg *config.Config) {
			cfg.WhatsApp.AccessToken = "tok"
		}},
		{"missing access token", func(cfg *config.Config) {
			cfg.WhatsApp.PhoneNumberID = "123"
		}},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(cfg)
			if _, err := NewClient(cfg); err == nil {
				t.Fatal("expected a config error")
			}
		})
	}
}
