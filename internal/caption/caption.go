// Package caption describes matched frame images with a local vision LLM.
// It is an optional enrichment on search results, not part of the
// embedding pipeline.
package caption

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

const prompt = "Describe what is happening in this video frame in one or two sentences."

// Captioner wraps a vision agent that turns a frame image into a short
// natural-language description.
type Captioner struct {
	agent *agent.DefaultAgent
}

// New initializes a vision agent backed by a local Ollama server.
func New(ctx context.Context, baseURL string, port int, model string, logger *slog.Logger) (*Captioner, error) {
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: baseURL,
		Port:    port,
	}
	provider := ollama.NewProvider(opts)
	provider.UseModel(ctx, &types.Model{ID: model})

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a visual analysis assistant specialized in concise, factual frame descriptions.",
	}
	return &Captioner{agent: agent.NewAgent(agentConf)}, nil
}

// Describe captions the image at imagePath.
func (c *Captioner) Describe(ctx context.Context, imagePath string) (string, error) {
	response := c.agent.Run(
		ctx,
		agent.WithInput(prompt),
		agent.WithImagePath(imagePath),
	)
	if response.Err != nil {
		return "", fmt.Errorf("caption: %w", response.Err)
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("caption: no response messages received from model")
	}
	return response.Messages[len(response.Messages)-1].Content, nil
}
