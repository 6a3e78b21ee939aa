// Genworker performs a single answer generation in an isolated process.
// The parent stages a JSON payload and invokes:
//
//	genworker <payload_json_path>
//
// The payload is {"prompt": str, "max_new_tokens": int}. On success the
// worker writes {"generated_text": str} to stdout; on failure it writes
// {"error": str} and exits non-zero.
//
// The worker talks to an OpenAI-compatible local inference server:
//
//	GENWORKER_BASE_URL  server base URL (default http://localhost:8000/v1)
//	GENWORKER_MODEL     model name (default flan-t5-small)
//	GENWORKER_API_KEY   API key, if the server requires one
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/taleemlabs/taleemd/internal/rag"
)

func main() {
	if len(os.Args) != 2 {
		fail("usage: genworker <payload_json_path>")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(fmt.Sprintf("reading payload: %v", err))
	}

	var payload rag.GenerationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		fail(fmt.Sprintf("decoding payload: %v", err))
	}
	if payload.Prompt == "" {
		fail("payload missing prompt")
	}
	if payload.MaxNewTokens <= 0 {
		payload.MaxNewTokens = 256
	}

	text, err := generate(context.Background(), payload)
	if err != nil {
		fail(fmt.Sprintf("generation: %v", err))
	}

	out, err := json.Marshal(rag.GenerationResult{GeneratedText: text})
	if err != nil {
		fail(fmt.Sprintf("encoding result: %v", err))
	}
	fmt.Println(string(out))
}

func generate(ctx context.Context, payload rag.GenerationPayload) (string, error) {
	cfg := openai.DefaultConfig(envOr("GENWORKER_API_KEY", "unused"))
	cfg.BaseURL = envOr("GENWORKER_BASE_URL", "http://localhost:8000/v1")
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     envOr("GENWORKER_MODEL", "flan-t5-small"),
		MaxTokens: payload.MaxNewTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: payload.Prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// fail writes an error result to stdout for the parent to parse and exits
// non-zero.
func fail(msg string) {
	out, err := json.Marshal(rag.GenerationResult{Error: msg})
	if err != nil {
		fmt.Println(`{"error": "internal encoding failure"}`)
		os.Exit(1)
	}
	fmt.Println(string(out))
	os.Exit(1)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
