// Package guideline generates per-site translation guidelines from the
// site title so every batch shares the same terminology decisions.
package guideline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context) (*Gemini, error) {
	apiKey := os.Getenv("GOOGLE_AI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_AI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{client: client}, nil
}

// Generate returns guideline text for translating the named site from
// source to target language.
func (g *Gemini) Generate(ctx context.Context, source, target, siteTitle string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx,
		"gemini-2.0-flash",
		[]*genai.Content{
			{
				Role: "user",
				Parts: []*genai.Part{
					{
						Text: "Analyze the website title: \"" + siteTitle + "\" and generate appropriate guidelines for translating its content from " + source + " to " + target + ".",
					},
				},
			},
		},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Role: "system",
				Parts: []*genai.Part{
					{
						Text: "You are a translation guidelines generator. Create concise guidelines for translating this website, wrapped in a codeblock ```guidelines```. Cover:\n" +
							"- likely audience and register\n" +
							"- terminology to keep in " + source + "\n" +
							"- tone and formality for " + target + "\n" +
							"Keep it under 200 words.",
					},
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("generating guidelines: %w", err)
	}

	return extractBlock(resp.Text()), nil
}

// extractBlock pulls the content of a ```guidelines``` codeblock, falling
// back to the whole text when the model skipped the fence.
func extractBlock(text string) string {
	const fence = "```guidelines"
	start := strings.Index(text, fence)
	if start == -1 {
		return strings.TrimSpace(text)
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}
