package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodul/xword/internal/crossword"
	"github.com/bodul/xword/internal/library"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Read a crossword photo with Gemini and print it as a puzzle file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		difficulty, _ := cmd.Flags().GetString("difficulty")
		if date == "" {
			date = newReleasePolicy(cfg.Location(), cfg.SolutionHour).today()
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		mimeType := http.DetectContentType(data)
		if !allowedMIME[mimeType] {
			return fmt.Errorf("%s: unsupported image type %s", args[0], mimeType)
		}

		client, err := NewGeminiClient(cmd.Context(), vertexSettings(cfg), logger.Named("gemini"))
		if err != nil {
			return err
		}
		defer client.Close()

		p, err := client.AnalyzeImage(cmd.Context(), data, mimeType, date)
		if err != nil {
			return err
		}
		p.Difficulty = difficulty
		out, err := library.Marshal(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check puzzle files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var errs []error
		for _, path := range args {
			p, err := parseFile(path)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL\t%s\t%v\n", path, err)
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			clues := len(p.Clues.Across) + len(p.Clues.Down)
			fmt.Fprintf(cmd.OutOrStdout(), "ok\t%s\t%s\t%dx%d\t%d clues\n", path, p.Date, p.Size, p.Size, clues)
		}
		if len(errs) > 0 {
			return fmt.Errorf("%d of %d files invalid: %w", len(errs), len(args), errors.Join(errs...))
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete saved progress older than the longest retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.DBPath == "" {
			return errors.New("prune needs a database: set XWORD_DB_PATH or --db")
		}
		store, err := openProgress(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		before := time.Now().Add(-cfg.LongestRetention())
		n, err := store.Prune(cmd.Context(), before)
		if err != nil {
			return err
		}
		logger.Info("pruned progress", zap.Int("records", n), zap.Time("before", before))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", n)
		return nil
	},
}

func parseFile(path string) (*crossword.Puzzle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return library.Parse(data)
}

func init() {
	analyzeCmd.Flags().String("date", "", "puzzle date, YYYY-MM-DD (default today)")
	analyzeCmd.Flags().String("difficulty", library.DefaultDifficulty, "puzzle difficulty")
}
