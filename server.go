package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bodul/xword/internal/config"
	"github.com/bodul/xword/internal/crossword"
	"github.com/bodul/xword/internal/library"
	"github.com/bodul/xword/internal/progress"
)

const maxUploadSize = 10 << 20 // 10 MB

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// rateLimiter is a simple per-IP token bucket rate limiter.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*bucket
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	now      func() time.Time
}

type bucket struct {
	tokens   int
	lastSeen time.Time
}

func newRateLimiter(rate int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors: make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &bucket{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(b.lastSeen) / rl.interval)
	if refill > 0 {
		b.tokens = min(b.tokens+refill*rl.rate, rl.rate)
		b.lastSeen = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep forgets visitors not seen since before.
func (rl *rateLimiter) sweep(before time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.visitors {
		if b.lastSeen.Before(before) {
			delete(rl.visitors, ip)
		}
	}
}

// Server is the main HTTP server.
type Server struct {
	mux      *http.ServeMux
	cfg      config.Config
	log      *zap.Logger
	library  *library.Library
	progress progress.Store
	saver    *progress.AutoSaver
	sessions *SessionStore
	gemini   *GeminiClient
	sse      *Broadcaster
	release  releasePolicy
	uploadRL *rateLimiter
	inputRL  *rateLimiter
}

// NewServer creates a configured HTTP server. gemini may be nil, which
// disables photo imports.
func NewServer(cfg config.Config, lib *library.Library, store progress.Store, gemini *GeminiClient, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		log:      log,
		library:  lib,
		progress: store,
		sessions: NewSessionStore(),
		gemini:   gemini,
		sse:      NewBroadcaster(),
		release:  newReleasePolicy(cfg.Location(), cfg.SolutionHour),
		uploadRL: newRateLimiter(5, time.Minute),  // 5 uploads/min per IP
		inputRL:  newRateLimiter(60, time.Second), // 60 inputs/sec per IP
	}
	s.saver = progress.NewAutoSaver(store,
		progress.WithDelay(cfg.SaveDelay),
		progress.WithLogger(log.Named("autosave")),
		progress.WithErrorHandler(s.onSaveError),
	)
	s.routes()
	return s
}

func (s *Server) routes() {
	// Puzzle API
	s.mux.HandleFunc("GET /api/puzzles", s.handleListPuzzles)
	s.mux.HandleFunc("GET /api/puzzles/{date}", s.handleGetPuzzle)
	s.mux.HandleFunc("POST /api/puzzles", s.handleImportPuzzle)

	// Session API
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/input", s.handleInput)
	s.mux.HandleFunc("GET /api/sessions/{id}/solution", s.handleSolution)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
	s.mux.ServeHTTP(w, r)
}

// Janitor runs periodic cleanup until ctx is done: it prunes expired
// progress, drops idle sessions and forgets idle rate-limit buckets.
func (s *Server) Janitor(ctx context.Context) error {
	interval := s.cfg.PruneInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx, time.Now())
		}
	}
}

func (s *Server) sweep(ctx context.Context, now time.Time) {
	n, err := s.progress.Prune(ctx, now.Add(-s.cfg.LongestRetention()))
	if err != nil {
		s.log.Warn("prune progress failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("pruned progress", zap.Int("records", n))
	}

	expired := s.sessions.Expire(now.Add(-s.cfg.AnonymousRetention))
	if len(expired) > 0 {
		if err := s.saver.Flush(ctx); err != nil {
			s.log.Warn("flush before expiry failed", zap.Error(err))
		}
	}
	for _, sess := range expired {
		s.saver.Forget(sess.Key)
		s.sse.Close(sess.ID)
		s.log.Debug("session expired", zap.String("session", sess.ID))
	}

	s.uploadRL.sweep(now.Add(-5 * time.Minute))
	s.inputRL.sweep(now.Add(-5 * time.Minute))
}

// Shutdown writes every pending save.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

func (s *Server) onSaveError(key progress.Key, err error) {
	if sess := s.sessions.ByKey(key); sess != nil {
		s.publish(sess.ID, map[string]any{
			"type":  "save_failed",
			"error": "your progress could not be saved",
		})
	}
}

// publish sends one JSON event to a session's viewers.
func (s *Server) publish(sessionID string, evt any) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("encode event", zap.Error(err))
		return
	}
	s.sse.Broadcast(sessionID, string(data))
}

// --- Puzzle handlers ---

// GET /api/puzzles: list puzzles.
func (s *Server) handleListPuzzles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.library.List())
}

// GET /api/puzzles/{date}: one puzzle without answers.
func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	p, ok := s.library.Get(r.PathValue("date"), r.URL.Query().Get("difficulty"))
	if !ok {
		jsonError(w, "puzzle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p.Public())
}

// POST /api/puzzles: upload a photo, read it with Gemini, add the puzzle.
func (s *Server) handleImportPuzzle(w http.ResponseWriter, r *http.Request) {
	if !s.uploadRL.allow(r.RemoteAddr) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}

	if s.gemini == nil {
		jsonError(w, "image import is not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, "image too large (max 10 MB)", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "field 'image' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedMIME[mimeType] {
		jsonError(w, "accepted formats: JPEG or PNG", http.StatusBadRequest)
		return
	}

	date := strings.TrimSpace(r.FormValue("date"))
	if date == "" {
		date = s.release.today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "could not read image", http.StatusInternalServerError)
		return
	}

	p, err := s.gemini.AnalyzeImage(r.Context(), imageData, mimeType, date)
	if err != nil {
		s.log.Error("gemini analyze failed", zap.Error(err))
		jsonError(w, "could not read a crossword from the image", http.StatusUnprocessableEntity)
		return
	}
	p.Difficulty = r.FormValue("difficulty")
	if title := strings.TrimSpace(r.FormValue("title")); title != "" {
		p.Title = title
	}

	if err := s.library.Import(p, s.cfg.PuzzleDir); err != nil {
		if errors.Is(err, crossword.ErrInvalidPuzzle) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("import puzzle failed", zap.Error(err))
		jsonError(w, "could not save the puzzle", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, p.Public())
}

// --- Session handlers ---

// POST /api/sessions: open (or rejoin) a session on a puzzle.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date       string `json:"date"`
		Difficulty string `json:"difficulty"`
		Owner      string `json:"owner"`
		Member     bool   `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = s.release.today()
	}

	p, ok := s.library.Get(req.Date, req.Difficulty)
	if !ok {
		jsonError(w, "puzzle not found", http.StatusNotFound)
		return
	}

	owner := sanitizeOwner(req.Owner)
	if owner == "" {
		owner = "anon-" + generateID()
		req.Member = false
	}

	hints := s.cfg.HintsAllowed(p.Difficulty)
	engine, err := crossword.New(p,
		crossword.WithHints(hints),
		crossword.WithThemes(s.cfg.Themes...),
	)
	if err != nil {
		s.log.Error("mount puzzle failed", zap.String("puzzle", p.ID), zap.Error(err))
		jsonError(w, "puzzle is invalid", http.StatusInternalServerError)
		return
	}

	sess := newSession(generateID(), owner, req.Member, engine, hints, s.saver)
	if existing := s.sessions.ByKey(sess.Key); existing != nil {
		writeJSON(w, http.StatusOK, existing.State())
		return
	}

	resp := struct {
		SessionState
		Warning string `json:"warning,omitempty"`
	}{}
	rec, err := s.progress.Load(r.Context(), sess.Key, s.cfg.Retention(req.Member))
	switch {
	case err != nil:
		s.log.Warn("load progress failed", zap.Stringer("key", sess.Key), zap.Error(err))
		resp.Warning = "saved progress could not be loaded"
	case rec != nil:
		if err := sess.Restore(rec); err != nil {
			s.log.Warn("restore progress failed", zap.Stringer("key", sess.Key), zap.Error(err))
			resp.Warning = "saved progress does not match this puzzle"
		}
	}

	sess, created := s.sessions.Add(sess)
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	resp.SessionState = sess.State()
	s.log.Info("session opened",
		zap.String("session", sess.ID),
		zap.String("puzzle", p.ID),
		zap.Bool("member", sess.Member),
		zap.Bool("restored", rec != nil))
	writeJSON(w, status, resp)
}

// GET /api/sessions/{id}: current session state.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// POST /api/sessions/{id}/input: apply one player event.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if !s.inputRL.allow(r.RemoteAddr) {
		jsonError(w, "too many requests, try again later", http.StatusTooManyRequests)
		return
	}

	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}

	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}

	res, err := sess.Apply(r.Context(), in)
	if err != nil {
		code := inputStatus(err)
		if code == http.StatusInternalServerError {
			s.log.Error("input failed", zap.String("session", sess.ID), zap.String("action", in.Action), zap.Error(err))
			if in.Action == actionReset {
				s.publishResult(sess.ID, in.Action, res)
			}
		}
		jsonError(w, err.Error(), code)
		return
	}

	s.publishResult(sess.ID, in.Action, res)
	writeJSON(w, http.StatusOK, res)
}

// publishResult turns an applied input into viewer events.
func (s *Server) publishResult(sessionID, action string, res Result) {
	if action == actionReset {
		s.publish(sessionID, map[string]any{"type": "reset", "state": res.State})
		return
	}
	for _, c := range res.Change.Cells {
		s.publish(sessionID, map[string]any{"type": "cell_update", "row": c.Row, "col": c.Col, "value": c.Value})
	}
	s.publish(sessionID, map[string]any{"type": "cursor", "cursor": res.State.Cursor, "clue": res.State.CurrentClue})
	for _, id := range res.Change.Completed {
		s.publish(sessionID, map[string]any{"type": "clue_completed", "clue": id, "percent": res.State.Percent})
	}
	for _, id := range res.Change.Themed {
		s.publish(sessionID, map[string]any{"type": "themed_answer", "clue": id})
	}
	if res.Change.Solved {
		s.publish(sessionID, map[string]any{"type": "puzzle_completed", "completedAt": res.State.CompletedAt, "elapsedSeconds": res.State.ElapsedSeconds})
	}
}

// inputStatus maps an Apply error to an HTTP status.
func inputStatus(err error) int {
	var perr *progress.PersistenceError
	switch {
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	case errors.Is(err, crossword.ErrHintsDisabled),
		errors.Is(err, crossword.ErrHintUsed),
		errors.Is(err, crossword.ErrNoHint):
		return http.StatusConflict
	case errors.Is(err, crossword.ErrOutOfBounds),
		errors.Is(err, crossword.ErrBlockCell),
		errors.Is(err, crossword.ErrInvalidLetter),
		errors.Is(err, crossword.ErrNoCursor),
		errors.Is(err, errBadInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// GET /api/sessions/{id}/solution: the solution, once released.
func (s *Server) handleSolution(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	date := sess.Date()
	sol, err := sess.Solution(s.release.available(date))
	if errors.Is(err, crossword.ErrSolutionNotAvailable) {
		jsonError(w, s.release.message(date), http.StatusForbidden)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solution": sol})
}

// GET /api/sessions/{id}/events: SSE stream.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}

	pseudo := sanitizePseudo(r.URL.Query().Get("pseudo"))

	s.sse.ServeSSE(w, r, sess.ID, func(v *viewer) {
		if pseudo != "" {
			p := sess.AddViewer(pseudo)
			s.publish(sess.ID, map[string]any{"type": "viewer_joined", "pseudo": p.Pseudo, "color": p.Color})
		}
		data, _ := json.Marshal(map[string]any{"type": "session_state", "state": sess.State()})
		s.sse.Send(v, string(data))
	}, func() {
		if pseudo != "" {
			sess.RemoveViewer(pseudo)
			s.publish(sess.ID, map[string]any{"type": "viewer_left", "pseudo": pseudo})
		}
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizePseudo(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > 20 {
		s = string([]rune(s)[:20])
	}
	return s
}

// sanitizeOwner bounds an owner identity. Anything with a path separator is
// rejected since it becomes part of the progress key.
func sanitizeOwner(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "/\\") || utf8.RuneCountInString(s) > 64 {
		return ""
	}
	return s
}
