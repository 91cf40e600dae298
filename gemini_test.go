package main

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAnalysisToPuzzle(t *testing.T) {
	a := analysis{
		Title: " Opening Night ",
		Rows:  []string{"cats#", "A#HOP", "RAT#E", "#NEST", "D O G#S"},
		Clues: map[string]string{
			"1A":  "Felines on stage",
			"9D":  "No such clue",
			"x":   "Garbage key",
			"5D ": " Animals kept at home ",
		},
	}
	p, err := a.toPuzzle("2026-10-17", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "Opening Night", p.Title)
	assert.Equal(t, 5, p.Size)
	assert.Equal(t, "CATS", p.Clues.Across[0].Answer)
	assert.Equal(t, "Felines on stage", p.Clues.Across[0].Text)
	for _, cl := range p.Clues.Down {
		if cl.Number == 5 {
			assert.Equal(t, "Animals kept at home", cl.Text)
		}
	}
}

func TestAnalysisToPuzzleRejectsRaggedGrid(t *testing.T) {
	a := analysis{Rows: []string{"ABC", "AB", "ABC"}}
	_, err := a.toPuzzle("2026-10-17", zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestAnalyzeImage(t *testing.T) {
	projectID := os.Getenv("GCP_PROJECT_ID")
	if projectID == "" {
		t.Skip("GCP_PROJECT_ID not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := NewGeminiClient(ctx, VertexSettings{Project: projectID}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	imageData, err := os.ReadFile("testdata/example.png")
	if err != nil {
		t.Skipf("no sample image: %v", err)
	}

	p, err := client.AnalyzeImage(ctx, imageData, "image/png", "2026-10-17")
	require.NoError(t, err)
	assert.Positive(t, p.Size)
	assert.NotEmpty(t, p.Clues.Across)
}
