package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bodul/xword/internal/config"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// VertexSettings selects the Vertex AI project, region and model used to
// read puzzle photos.
type VertexSettings struct {
	Project string
	Region  string
	Model   string
}

func vertexSettings(c config.Config) VertexSettings {
	return VertexSettings{Project: c.ProjectID, Region: c.Region, Model: c.GeminiModel}
}

// GeminiClient reads crossword photos through Gemini on Vertex AI.
type GeminiClient struct {
	client    *genai.Client
	modelName string
	log       *zap.Logger
}

// NewGeminiClient authenticates with Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
func NewGeminiClient(ctx context.Context, s VertexSettings, log *zap.Logger) (*GeminiClient, error) {
	if s.Project == "" {
		return nil, errors.New("gemini: GCP_PROJECT_ID is required")
	}
	if s.Region == "" {
		s.Region = defaultRegion
	}
	if s.Model == "" {
		s.Model = defaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  s.Project,
		Location: s.Region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client for %s/%s: %w", s.Project, s.Region, err)
	}
	log.Info("gemini client ready",
		zap.String("project", s.Project),
		zap.String("region", s.Region),
		zap.String("model", s.Model))

	return &GeminiClient{client: client, modelName: s.Model, log: log}, nil
}

// Close is a no-op; genai clients hold no resources that need releasing.
func (g *GeminiClient) Close() error {
	return nil
}
