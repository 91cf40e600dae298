package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bodul/xword/internal/crossword"
	"github.com/bodul/xword/internal/library"
)

const analyzePrompt = `Analyze this photo of a solved square crossword and its printed clue list.

Return the structure as JSON:
{
  "title": "<puzzle title, or empty>",
  "rows": ["CATS#", "A#HOP", ...],
  "clues": {"1A": "Clue text", "1D": "Clue text", ...}
}

Rules:
- "rows" has one string per grid row, top to bottom, every row the same length as the number of rows.
- Write each filled square as its uppercase letter and each black square as "#".
- Key every clue by its printed number followed by A for across or D for down.
- Copy clue texts exactly, without the trailing letter count.
- Reply with the JSON only, no commentary and no markdown.`

// analysis is the JSON Gemini is asked to produce.
type analysis struct {
	Title string            `json:"title"`
	Rows  []string          `json:"rows"`
	Clues map[string]string `json:"clues"`
}

// toPuzzle numbers the grid and attaches clue texts. Clues Gemini read
// that have no matching run in the grid are dropped and logged.
func (a analysis) toPuzzle(date string, log *zap.Logger) (*crossword.Puzzle, error) {
	rows := make([]string, len(a.Rows))
	for i, r := range a.Rows {
		rows[i] = strings.ToUpper(strings.ReplaceAll(r, " ", ""))
	}
	p, err := library.Build(date, rows, nil)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool)
	for _, cl := range p.Clues.All() {
		known[cl.ID().String()] = true
	}
	texts := make(map[string]string, len(a.Clues))
	for raw, text := range a.Clues {
		id, err := crossword.ParseClueID(raw)
		if err != nil || !known[id.String()] {
			log.Warn("dropping unmatched clue", zap.String("clue", raw))
			continue
		}
		texts[id.String()] = strings.TrimSpace(text)
	}
	p, err = library.Build(date, rows, texts)
	if err != nil {
		return nil, err
	}
	p.Title = strings.TrimSpace(a.Title)
	return p, nil
}

// AnalyzeImage sends a crossword photo to Gemini Flash and returns the
// puzzle it reads, dated date.
func (g *GeminiClient) AnalyzeImage(ctx context.Context, imageData []byte, mimeType, date string) (*crossword.Puzzle, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: analyzePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.1)),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}

	var a analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, fmt.Errorf("parse puzzle JSON: %w\nraw response: %s", err, text)
	}
	p, err := a.toPuzzle(date, g.log)
	if err != nil {
		return nil, fmt.Errorf("gemini puzzle: %w", err)
	}
	g.log.Info("puzzle read from image",
		zap.String("date", date),
		zap.Int("size", p.Size),
		zap.Int("clues", len(p.Clues.Across)+len(p.Clues.Down)))
	return p, nil
}
