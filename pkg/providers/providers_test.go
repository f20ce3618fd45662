package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dietbuddy/dietbuddy/pkg/config"
)

func TestCreateProvider_OpenRouter_DefaultSelection(t *testing.T) {
	var seenAuth string
	var seenPath string
	var seenReferer string
	var seenTitle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		seenReferer = r.Header.Get("HTTP-Referer")
		seenTitle = r.Header.Get("X-Title")
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got := req["model"]; got != defaultOpenRouterModel {
			t.Fatalf("expected default model %q, got %v", defaultOpenRouterModel, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.OpenRouter.APIBase = server.URL
	cfg.Agent.Provider = ""

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("expected response content ok, got %q", resp.Content)
	}
	if seenAuth != "Bearer or-key" {
		t.Fatalf("expected openrouter auth bearer, got %q", seenAuth)
	}
	if seenPath != "/chat/completions" {
		t.Fatalf("expected /chat/completions path, got %q", seenPath)
	}
	if seenReferer == "" || seenTitle == "" {
		t.Fatalf("expected attribution headers, got referer=%q title=%q", seenReferer, seenTitle)
	}
}

func TestCreateProvider_OpenAI_WithAPIKeyAndOptions(t *testing.T) {
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if got := req["model"]; got != "gpt-4o" {
			t.Fatalf("expected model override gpt-4o, got %v", got)
		}
		if got, ok := req["max_tokens"]; !ok || got != float64(128) {
			t.Fatalf("expected max_tokens 128, got %v", got)
		}
		if got, ok := req["temperature"]; !ok || got != 0.3 {
			t.Fatalf("expected temperature 0.3, got %v", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {"content": "counted"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderOpenAI
	cfg.Providers.OpenAI.APIKey = "sk-openai"
	cfg.Providers.OpenAI.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}

	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "count"}}, "gpt-4o", map[string]interface{}{"max_tokens": 128, "temperature": 0.3})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "counted" {
		t.Fatalf("expected content counted, got %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage total 15, got %+v", resp.Usage)
	}
	if seenAuth != "Bearer sk-openai" {
		t.Fatalf("expected openai auth bearer with api key, got %q", seenAuth)
	}
}

func TestChat_APIErrorIncludesProviderMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"No auth credentials found","type":"auth_error"}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.OpenRouter.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	_, err = provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", nil)
	if err == nil {
		t.Fatalf("expected API error")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "No auth credentials found") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "DIETBUDDY_PROVIDERS_OPENROUTER_API_KEY") {
		t.Fatalf("expected credential hint in error, got %v", err)
	}
}

func TestChat_MultiPartContentIsFlattened(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"Drink "},{"type":"text","text":"more water."}]},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.OpenRouter.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "Drink more water." {
		t.Fatalf("expected flattened content, got %q", resp.Content)
	}
}

func TestChat_EmptyChoicesYieldsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "or-key"
	cfg.Providers.OpenRouter.APIBase = server.URL

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	resp, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "" || resp.FinishReason != "stop" {
		t.Fatalf("expected empty stop response, got %+v", resp)
	}
}

func TestResolveOpenAIAuthConfig_RejectsMultipleCredentialSources(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("from-file"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderOpenAI
	cfg.Providers.OpenAI.APIKey = "api-key-wins"
	cfg.Providers.OpenAI.APIKeyFile = keyFile

	mode, source, err := resolveOpenAIAuthConfig(cfg)
	if err == nil {
		t.Fatalf("expected multi-credential configuration error")
	}
	if mode != "" || source != "" {
		t.Fatalf("expected empty mode/source on error, got mode=%q source=%q", mode, source)
	}
	if want := "multiple OpenAI credential sources configured"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error containing %q, got %v", want, err)
	}
}

func TestCreateProvider_OpenAI_UsesAPIKeyFile(t *testing.T) {
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-from-file"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderOpenAI
	cfg.Providers.OpenAI.APIBase = server.URL
	cfg.Providers.OpenAI.APIKeyFile = keyFile

	provider, err := CreateProvider(cfg)
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if _, err := provider.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}}, "", nil); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if seenAuth != "Bearer sk-from-file" {
		t.Fatalf("expected bearer from key file, got %q", seenAuth)
	}
}

func TestCreateProvider_UnsupportedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = "does-not-exist"

	if _, err := CreateProvider(cfg); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestValidateProviderConfig_MissingCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agent.Provider = ProviderOpenAI

	if err := ValidateProviderConfig(cfg); err == nil {
		t.Fatalf("expected missing credentials error for openai")
	}
}

func TestRegisterFactory_InvalidRegistrationDoesNotPanic(t *testing.T) {
	factoryMu.RLock()
	origFactories := make(map[string]providerFactory, len(factories))
	for k, v := range factories {
		origFactories[k] = v
	}
	origErr := registrationErr
	factoryMu.RUnlock()

	defer func() {
		factoryMu.Lock()
		factories = origFactories
		registrationErr = origErr
		factoryMu.Unlock()
	}()

	didPanic := false
	func() {
		defer func() {
			if recover() != nil {
				didPanic = true
			}
		}()
		RegisterFactory("", nil, nil, nil)
	}()
	if didPanic {
		t.Fatalf("RegisterFactory should not panic on invalid registration")
	}

	cfg := config.DefaultConfig()
	if _, err := CreateProvider(cfg); err == nil {
		t.Fatalf("expected provider creation to fail after invalid registration")
	}
}
