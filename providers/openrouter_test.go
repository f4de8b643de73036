package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Blackie360/Persona-Studio/models"
)

func TestGenerate_ReturnsImage(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"a stylized fox","images":[{"image_url":{"url":"data:image/png;base64,abc"}}]}}]}`))
	}))
	defer server.Close()

	generator := CreateOpenRouterGenerator("key", "test-model", 5000, time.Second).WithBaseURL(server.URL)

	image, err := generator.Generate(context.Background(), &models.GenerateRequest{
		Prompt:      "a fox",
		AvatarStyle: "watercolor",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if image.URL != "data:image/png;base64,abc" {
		t.Errorf("Generate() url = %q, want the returned image", image.URL)
	}
	if image.Description != "a stylized fox" {
		t.Errorf("Generate() description = %q, want a stylized fox", image.Description)
	}

	if got["model"] != "test-model" {
		t.Errorf("request model = %v, want test-model", got["model"])
	}
	messages := got["messages"].([]interface{})
	content := messages[0].(map[string]interface{})["content"].(string)
	if !strings.Contains(content, "watercolor") {
		t.Errorf("prompt %q should carry the avatar style", content)
	}
}

func TestGenerate_HalfRegenerationPrompt(t *testing.T) {
	var content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		messages := body["messages"].([]interface{})
		content = messages[0].(map[string]interface{})["content"].(string)
		w.Write([]byte(`{"choices":[{"message":{"images":[{"image_url":{"url":"u"}}]}}]}`))
	}))
	defer server.Close()

	generator := CreateOpenRouterGenerator("key", "test-model", 5000, time.Second).WithBaseURL(server.URL)

	_, err := generator.Generate(context.Background(), &models.GenerateRequest{
		Prompt:    "a fox",
		CostClass: models.CostClassHalf,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(content, "background and lighting") {
		t.Errorf("half regeneration prompt %q should only rework background and lighting", content)
	}
}

func TestGenerate_TruncatesLongPrompt(t *testing.T) {
	var content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		messages := body["messages"].([]interface{})
		content = messages[0].(map[string]interface{})["content"].(string)
		w.Write([]byte(`{"choices":[{"message":{"images":[{"image_url":{"url":"u"}}]}}]}`))
	}))
	defer server.Close()

	generator := CreateOpenRouterGenerator("key", "test-model", 10, time.Second).WithBaseURL(server.URL)

	long := strings.Repeat("x", 100)
	if _, err := generator.Generate(context.Background(), &models.GenerateRequest{Prompt: long}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(content, strings.Repeat("x", 11)) {
		t.Error("prompt should be truncated to the configured maximum")
	}
}

func TestGenerate_NoImageInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"refused"}}]}`))
	}))
	defer server.Close()

	generator := CreateOpenRouterGenerator("key", "test-model", 5000, time.Second).WithBaseURL(server.URL)

	if _, err := generator.Generate(context.Background(), &models.GenerateRequest{Prompt: "a fox"}); err == nil {
		t.Error("Generate() error = nil, want no-image failure")
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited upstream"}}`))
	}))
	defer server.Close()

	generator := CreateOpenRouterGenerator("key", "test-model", 5000, time.Second).WithBaseURL(server.URL)

	_, err := generator.Generate(context.Background(), &models.GenerateRequest{Prompt: "a fox"})
	if err == nil {
		t.Fatal("Generate() error = nil, want API error")
	}
	if !strings.Contains(err.Error(), "rate limited upstream") {
		t.Errorf("Generate() error = %v, want upstream message", err)
	}
}

func TestGenerate_MissingAPIKey(t *testing.T) {
	generator := CreateOpenRouterGenerator("", "test-model", 5000, time.Second)

	if _, err := generator.Generate(context.Background(), &models.GenerateRequest{Prompt: "a fox"}); err == nil {
		t.Error("Generate() without api key error = nil, want failure")
	}
}
