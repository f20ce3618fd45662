package providers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStaticTokenSource_RejectsEmptyToken(t *testing.T) {
	src := NewStaticTokenSource("   ", "providers.openrouter.api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestStaticTokenSource_ReportsConfigSource(t *testing.T) {
	src := NewStaticTokenSource("sk-123", "providers.openai.api_key")
	if got := src.Source(); got != "providers.openai.api_key" {
		t.Fatalf("expected config path source, got %q", got)
	}
}

func TestFileTokenSource_PlainKeyFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-rotated-123\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	src := NewFileTokenSource(keyFile)
	got, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got != "sk-rotated-123" {
		t.Fatalf("expected trimmed key, got %q", got)
	}
}

func TestFileTokenSource_ReadsFreshContentEachCall(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("sk-before"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	src := NewFileTokenSource(keyFile)
	if got, err := src.Token(context.Background()); err != nil || got != "sk-before" {
		t.Fatalf("first read: got %q err %v", got, err)
	}

	if err := os.WriteFile(keyFile, []byte("sk-after"), 0o600); err != nil {
		t.Fatalf("rewrite key file: %v", err)
	}
	if got, err := src.Token(context.Background()); err != nil || got != "sk-after" {
		t.Fatalf("second read: got %q err %v", got, err)
	}
}

func TestFileTokenSource_EmptyFileRejected(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("   \n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	src := NewFileTokenSource(keyFile)
	_, err := src.Token(context.Background())
	if err == nil {
		t.Fatalf("expected empty key file error")
	}
	if !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty-file message, got %v", err)
	}
}

func TestAPIKeyAuth_SetsBearerHeader(t *testing.T) {
	auth := NewAPIKeyAuth(NewStaticTokenSource("sk-abc", "providers.openai.api_key"))
	if auth.Mode() != authModeAPIKey {
		t.Fatalf("expected api_key mode, got %q", auth.Mode())
	}

	req, err := http.NewRequest(http.MethodPost, "http://localhost/chat/completions", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := auth.Apply(context.Background(), req); err != nil {
		t.Fatalf("apply auth: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-abc" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestAPIKeyAuth_NilSourceErrors(t *testing.T) {
	auth := NewAPIKeyAuth(nil)
	req, err := http.NewRequest(http.MethodPost, "http://localhost/chat/completions", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := auth.Apply(context.Background(), req); err == nil {
		t.Fatalf("expected nil source error")
	}
}
