package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/issueboard/internal/board"
	"github.com/joescharf/issueboard/internal/identity"
	"github.com/joescharf/issueboard/internal/llm"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
	"github.com/joescharf/issueboard/internal/workflow"
)

// genericFailure is shown whenever the store fails; details go to the log.
const genericFailure = "something went wrong, please try again"

// Server provides the REST API handlers.
type Server struct {
	board    *board.Service
	identity *identity.Service
	llm      *llm.Client

	// keepAlive is how often an idle event stream sends a comment line.
	keepAlive time.Duration
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(b *board.Service, id *identity.Service, llmClient *llm.Client) *Server {
	return &Server{
		board:     b,
		identity:  id,
		llm:       llmClient,
		keepAlive: 15 * time.Second,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/v1/auth/signup", s.signup)
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.HandleFunc("POST /api/v1/auth/logout", s.logout)
	mux.Handle("GET /api/v1/auth/me", s.authed(s.me))

	mux.Handle("GET /api/v1/issues", s.authed(s.listIssues))
	mux.Handle("POST /api/v1/issues", s.authed(s.createIssue))
	mux.Handle("POST /api/v1/issues/similar", s.authed(s.similarIssues))
	mux.Handle("GET /api/v1/issues/stream", s.authed(s.streamIssues))
	mux.Handle("POST /api/v1/issues/pending/{token}/confirm", s.authed(s.confirmIssue))
	mux.Handle("DELETE /api/v1/issues/pending/{token}", s.authed(s.cancelIssue))
	mux.Handle("GET /api/v1/issues/{id}", s.authed(s.getIssue))
	mux.Handle("PUT /api/v1/issues/{id}", s.authed(s.updateIssue))
	mux.Handle("DELETE /api/v1/issues/{id}", s.authed(s.deleteIssue))

	return requestLogger(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets the event stream flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBoardError maps a board, identity or workflow error onto a response.
func writeBoardError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusUnprocessableEntity, ve.Reason)
	case errors.Is(err, board.ErrUnauthenticated), errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "not logged in")
	case errors.Is(err, board.ErrPrecondition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "issue not found")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, genericFailure)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- Auth ---

type ctxKey struct{}

func principalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(ctxKey{}).(models.Principal)
	return p
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// EventSource cannot set headers, so the stream also accepts ?token=.
	return r.URL.Query().Get("token")
}

// authed resolves the bearer token to a principal before calling next.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.identity.Resolve(r.Context(), bearerToken(r))
		if err != nil {
			writeBoardError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, p)))
	})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm_password"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.Confirm)
	switch {
	case errors.Is(err, identity.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrPasswordMismatch),
		errors.Is(err, identity.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeBoardError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, sess)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := s.identity.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.Logout(r.Context(), bearerToken(r)); err != nil {
		writeBoardError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFrom(r.Context()))
}

// --- Issues ---

type listResponse struct {
	Issues []*models.Issue `json:"issues"`
	Count  int             `json:"count"`
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	issues, err := s.board.List(r.Context(), principalFrom(r.Context()), q.Get("status"), q.Get("priority"))
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Issues: issues, Count: len(issues)})
}

type createRequest struct {
	models.IssueFields
	// Draft asks the LLM for a description when none is given.
	Draft bool `json:"draft"`
}

type pendingResponse struct {
	Error        string             `json:"error"`
	Matches      []models.IssueRef  `json:"matches"`
	ConfirmToken string             `json:"confirm_token"`
	Fields       models.IssueFields `json:"fields"`
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	fields, err := canonicalFields(req.IssueFields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Draft && s.llm != nil && fields.Description == "" && strings.TrimSpace(fields.Title) != "" {
		desc, err := s.llm.DraftDescription(r.Context(), fields.Title)
		if err != nil {
			slog.Warn("draft description", "error", err)
		} else {
			fields.Description = desc
		}
	}

	res, err := s.board.Submit(r.Context(), principalFrom(r.Context()), fields)
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	if res.State == board.PendingConfirmation {
		writeJSON(w, http.StatusConflict, pendingResponse{
			Error:        "similar issues already exist",
			Matches:      res.Matches,
			ConfirmToken: res.Token,
			Fields:       res.Fields,
		})
		return
	}
	writeJSON(w, http.StatusCreated, res.Issue)
}

type similarRequest struct {
	Title string `json:"title"`
}

type similarResponse struct {
	Matches []models.IssueRef `json:"matches"`
}

func (s *Server) similarIssues(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !decode(w, r, &req) {
		return
	}
	matches, err := s.board.CheckSimilar(r.Context(), principalFrom(r.Context()), req.Title)
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	if matches == nil {
		matches = []models.IssueRef{}
	}
	writeJSON(w, http.StatusOK, similarResponse{Matches: matches})
}

func (s *Server) confirmIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.board.Confirm(r.Context(), principalFrom(r.Context()), r.PathValue("token"))
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) cancelIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Cancel(principalFrom(r.Context()), r.PathValue("token")); err != nil {
		writeBoardError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.board.Get(r.Context(), principalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var patch models.IssuePatch
	if !decode(w, r, &patch) {
		return
	}
	patch, err := canonicalPatch(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issue, err := s.board.Update(r.Context(), principalFrom(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		writeBoardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Delete(r.Context(), principalFrom(r.Context()), r.PathValue("id")); err != nil {
		writeBoardError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// canonicalFields accepts enum spellings such as "in_progress" or "high".
func canonicalFields(f models.IssueFields) (models.IssueFields, error) {
	if f.Status != "" {
		st, err := models.ParseStatus(string(f.Status))
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	if f.Priority != "" {
		p, err := models.ParsePriority(string(f.Priority))
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	return f, nil
}

func canonicalPatch(p models.IssuePatch) (models.IssuePatch, error) {
	if p.Status != nil {
		st, err := models.ParseStatus(string(*p.Status))
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	if p.Priority != nil {
		pr, err := models.ParsePriority(string(*p.Priority))
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	return p, nil
}
