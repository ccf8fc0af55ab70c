package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
)

const (
	defaultLimit     = 10
	maxLimit         = 50
	maxCommentLength = 500
)

type userKey struct{}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server serves the feed wire contract from a Store.
type Server struct {
	store  *Store
	logger *log.Logger
}

// NewServer creates a server backed by store.
func NewServer(store *Store, opts ...ServerOption) *Server {
	s := &Server{
		store:  store,
		logger: logging.WithPrefix("backend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/feed", s.handleFeed)
	mux.HandleFunc("PUT /v1/items/{id}/like", s.requireAuth(s.handleLike(true)))
	mux.HandleFunc("DELETE /v1/items/{id}/like", s.requireAuth(s.handleLike(false)))
	mux.HandleFunc("GET /v1/items/{id}/comments", s.handleComments)
	mux.HandleFunc("POST /v1/items/{id}/comments", s.requireAuth(s.handleAddComment))
	mux.HandleFunc("POST /v1/items/{id}/shares", s.requireAuth(s.handleShare))
	mux.HandleFunc("POST /oauth/token", s.handleToken)

	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("feed service listening", "addr", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("feed service shutting down")
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxLimit)
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	// The feed is public; a valid token only adds the caller's liked flags.
	var userID string
	if token := bearerToken(r); token != "" {
		if user, err := s.store.UserForToken(r.Context(), token); err == nil {
			userID = user.ID
		}
	}

	items, hasMore, err := s.store.Page(r.Context(), userID, limit, offset)
	if err != nil {
		s.internalError(w, "page query failed", err)
		return
	}

	writeJSON(w, http.StatusOK, feedResponse{Items: items, Offset: offset, HasMore: hasMore})
}

func (s *Server) handleLike(liked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		committed, count, err := s.store.SetLike(r.Context(), r.PathValue("id"), user.ID, liked)
		if err != nil {
			s.storeError(w, "set like failed", err)
			return
		}
		writeJSON(w, http.StatusOK, likeResponse{Liked: committed, LikeCount: count})
	}
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.store.Comments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, "comments query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, commentsResponse{Comments: comments})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "comment text is empty")
		return
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "comment text is too long")
		return
	}

	comment, err := s.store.AddComment(r.Context(), r.PathValue("id"), userFrom(r.Context()), text)
	if err != nil {
		s.storeError(w, "add comment failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if err := s.store.IncrementShare(r.Context(), r.PathValue("id")); err != nil {
		s.storeError(w, "share failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToken implements the refresh_token grant of RFC 6749 section 6.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	token, err := s.store.Refresh(r.Context(), r.PostForm.Get("refresh_token"))
	if errors.Is(err, ErrInvalidToken) {
		writeError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	if err != nil {
		s.internalError(w, "token refresh failed", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reelcast"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.store.UserForToken(r.Context(), token)
		if errors.Is(err, ErrInvalidToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reelcast", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if err != nil {
			s.internalError(w, "token lookup failed", err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func (s *Server) storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.internalError(w, msg, err)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

func userFrom(ctx context.Context) feed.Author {
	user, _ := ctx.Value(userKey{}).(feed.Author)
	return user
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type feedResponse struct {
	Items   []feed.Item `json:"items"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentsResponse struct {
	Comments []feed.Comment `json:"comments"`
}
