package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/adventurebook/server/internal/adventure"
	"github.com/adventurebook/server/internal/db"
	"github.com/adventurebook/server/internal/dice"
	"github.com/adventurebook/server/internal/game"
	mw "github.com/adventurebook/server/internal/middleware"
	"github.com/adventurebook/server/internal/validation"
)

// Server handles HTTP requests
type Server struct {
	router      chi.Router
	db          *db.DB
	sessions    map[string]*game.Session
	sessionsMu  sync.RWMutex
	rateLimiter *mw.RateLimiter
}

// NewServer creates a new API server
func NewServer(database *db.DB) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		db:          database,
		sessions:    make(map[string]*game.Session),
		rateLimiter: mw.NewRateLimiter(100, 100),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeadersMiddleware)
	s.router.Use(mw.MaxBodySizeMiddleware(1024 * 1024)) // 1MB max

	// Public endpoint (no auth required)
	s.router.Post("/api/adventures", s.createAdventure)

	// Protected endpoints (auth required)
	s.router.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Get("/api/adventures", s.listAdventures)
		r.Get("/api/adventures/{id}", s.getAdventure)
		r.Post("/api/sessions", s.createSession)
		r.Get("/api/sessions/{id}", s.getSession)
		r.Post("/api/sessions/{id}/choose", s.choose)
		r.Post("/api/sessions/{id}/name", s.setName)
		r.Get("/api/sessions/{id}/history", s.getHistory)
		r.Post("/api/sessions/{id}/save", s.saveSession)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response wraps API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (sanitized)
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

// checkSessionOwnership verifies user owns the session
func (s *Server) checkSessionOwnership(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	userID := mw.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user ID")
		return false
	}

	isOwner, err := s.db.IsSessionOwner(sessionID, userID)
	if err != nil || !isOwner {
		writeError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

// sessionByID returns the in-memory session, restoring it from the
// database if the server was restarted since it was saved
func (s *Server) sessionByID(id string) (*game.Session, error) {
	s.sessionsMu.RLock()
	sess, ok := s.sessions[id]
	s.sessionsMu.RUnlock()
	if ok {
		return sess, nil
	}

	adventureID, snap, events, err := s.db.LoadSession(id)
	if err != nil {
		return nil, err
	}
	adv, err := s.db.LoadAdventure(adventureID)
	if err != nil {
		return nil, err
	}
	sess, err = game.RestoreSession(id, adventureID, adv, dice.NewRoller(time.Now().UnixNano()), snap, events)
	if err != nil {
		return nil, err
	}

	s.sessionsMu.Lock()
	// Another request may have restored it first; keep the existing one.
	if existing, ok := s.sessions[id]; ok {
		sess = existing
	} else {
		s.sessions[id] = sess
	}
	s.sessionsMu.Unlock()
	return sess, nil
}

// createAdventure uploads and stores an adventure script
func (s *Server) createAdventure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Metadata string            `json:"metadata"`
		Pages    map[string]string `json:"pages"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Metadata == "" || len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, "Missing metadata or pages")
		return
	}

	adv, err := adventure.ParseMetadata(req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages := make(map[string]string, len(req.Pages))
	for pageID, text := range req.Pages {
		if err := validation.ValidatePageID(pageID); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid page ID "+pageID)
			return
		}
		page, err := adventure.ParsePage(text)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page "+pageID+": "+err.Error())
			return
		}
		adv.AddPage(pageID, page)
		pages[adventure.NormalizeID(pageID)] = text
	}
	// Every defect is reported, not just the first.
	if err := adventure.Validate(adv); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Generate server-side adventure ID (don't trust client)
	adventureID := uuid.New().String()

	if err := s.db.SaveAdventure(adventureID, adv.Title, req.Metadata, pages); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save adventure")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    db.AdventureInfo{ID: adventureID, Title: adv.Title},
	})
}

// listAdventures lists all stored adventures
func (s *Server) listAdventures(w http.ResponseWriter, r *http.Request) {
	infos, err := s.db.ListAdventures()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list adventures")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    infos,
	})
}

// getAdventure returns an adventure's metadata
func (s *Server) getAdventure(w http.ResponseWriter, r *http.Request) {
	adventureID := chi.URLParam(r, "id")

	if err := validation.ValidateAdventureID(adventureID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adventure ID")
		return
	}

	adv, err := s.db.LoadAdventure(adventureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Adventure not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load adventure")
		return
	}

	pageIDs := make([]string, 0, len(adv.Pages))
	for id := range adv.Pages {
		pageIDs = append(pageIDs, id)
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"id":          adventureID,
			"title":       adv.Title,
			"description": adv.Description,
			"start":       adv.Start,
			"pages":       pageIDs,
		},
	})
}

// createSession starts a playthrough of an adventure
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	userID := mw.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user ID")
		return
	}

	var req struct {
		AdventureID string `json:"adventure_id"`
		Seed        *int64 `json:"seed,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validation.ValidateAdventureID(req.AdventureID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid adventure ID")
		return
	}

	adv, err := s.db.LoadAdventure(req.AdventureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Adventure not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load adventure")
		return
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	// Generate server-side session ID (don't trust client)
	sessionID := uuid.New().String()

	sess, err := game.NewSession(sessionID, req.AdventureID, adv, dice.NewRoller(seed))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	if err := s.db.SaveSessionOwnership(sessionID, userID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	s.sessionsMu.Lock()
	s.sessions[sessionID] = sess
	s.sessionsMu.Unlock()

	view, err := sess.View()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data: map[string]interface{}{
			"session_id":   sessionID,
			"adventure_id": req.AdventureID,
			"page":         view,
			"records":      sess.Records(),
			"names":        sess.Names(),
		},
	})
}

// loadSessionForRequest validates the ID, checks ownership and fetches
// the session; it writes the error response itself on failure
func (s *Server) loadSessionForRequest(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	sessionID := chi.URLParam(r, "id")

	if err := validation.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return nil, false
	}

	if !s.checkSessionOwnership(w, r, sessionID) {
		return nil, false
	}

	sess, err := s.sessionByID(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Session not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return nil, false
	}
	return sess, true
}

// getSession returns the current page view and live values
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSessionForRequest(w, r)
	if !ok {
		return
	}

	view, err := sess.View()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"adventure_id": sess.AdventureID,
			"page":         view,
			"records":      sess.Records(),
			"names":        sess.Names(),
		},
	})
}

// choose selects a choice on the session's current page
func (s *Server) choose(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSessionForRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Choice int `json:"choice"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validation.ValidateChoiceIndex(req.Choice); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid choice index")
		return
	}

	if sess.GameOver() {
		writeError(w, http.StatusConflict, "Session is already over")
		return
	}

	outcome, err := sess.Choose(req.Choice)
	if err != nil {
		if errors.Is(err, game.ErrNavigation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply choice")
		return
	}

	view, err := sess.View()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"outcome": outcome,
			"page":    view,
			"records": sess.Records(),
			"names":   sess.Names(),
		},
	})
}

// setName sets a declared name to a player-supplied value
func (s *Server) setName(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSessionForRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Keyword string `json:"keyword"`
		Value   string `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validation.ValidateNameValue(req.Value); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid name value")
		return
	}

	if err := sess.SetName(req.Keyword, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown name keyword")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    sess.Names(),
	})
}

// getHistory returns the session's event log
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSessionForRequest(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    sess.Events(),
	})
}

// saveSession persists the session snapshot and history
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSessionForRequest(w, r)
	if !ok {
		return
	}

	if err := s.db.SaveSession(sess.ID, sess.AdventureID, sess.Snapshot(), sess.Events()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    "Session saved",
	})
}
