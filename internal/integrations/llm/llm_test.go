package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newsletterbot/internal/config"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(config.Config{LLMProvider: "anthropic", AnthropicAPIKey: "ak", LLMMaxTokens: 4096})
	if c.Model != defaultAnthropicModel || c.APIKey != "ak" {
		t.Fatalf("unexpected anthropic client %+v", c)
	}
	c = NewClient(config.Config{LLMProvider: "openai", OpenAIAPIKey: "ok", LLMModel: "gpt-x"})
	if c.Model != "gpt-x" || c.APIKey != "ok" {
		t.Fatalf("unexpected openai client %+v", c)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var got openAIRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"## Informe ACB"}}],"usage":{"prompt_tokens":120,"completion_tokens":40}}`)
	}))
	defer srv.Close()

	c := NewClient(config.Config{LLMProvider: "openai", OpenAIAPIKey: "sk-test", LLMMaxTokens: 2048})
	c.OpenAIEndpoint = srv.URL
	c.HTTPClient = srv.Client()

	text, usage, err := c.Generate(context.Background(), "system", "user prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "## Informe ACB" {
		t.Fatalf("unexpected text %q", text)
	}
	if usage.TotalTokens() != 160 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user prompt" || got.MaxTokens != 2048 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenAIGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "api error", body: `{"error":{"message":"quota exceeded"}}`, want: "quota exceeded"},
		{name: "no choices", body: `{"choices":[]}`, want: "no choices"},
		{name: "not json", body: `<html>bad gateway</html>`, want: "parsing OpenAI response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := NewClient(config.Config{LLMProvider: "openai", OpenAIAPIKey: "sk"})
			c.OpenAIEndpoint = srv.URL
			_, _, err := c.Generate(context.Background(), "s", "u")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
