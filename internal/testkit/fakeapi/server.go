// Package fakeapi is an in-process Records API for tests. It behaves like the
// production backend: bearer JWT sessions, a required document on upload,
// admin-only listing of every record and owner-or-admin document access.
package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"immun/internal/shared/models"
)

const maxUploadBytes = 16 << 20

var allowedExtensions = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

type contextKey string

const userIDContextKey contextKey = "userID"

type Option func(*Server)

// WithClock overrides the time used for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.tokens.now = now }
}

// WithTokenTTL sets the access token lifetime. Defaults to one hour.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokens.ttl = ttl }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

type failure struct {
	status int
	reason string
}

// Server is a running fake Records API.
type Server struct {
	store  *store
	tokens tokens
	logger *slog.Logger
	http   *httptest.Server

	mu       sync.Mutex
	failures map[string]failure
	hits     map[string]int
}

// Start runs a fake API for the duration of tb.
func Start(tb testing.TB, opts ...Option) *Server {
	tb.Helper()
	s, err := New(opts...)
	if err != nil {
		tb.Fatalf("start fake records api: %v", err)
	}
	tb.Cleanup(s.Close)
	return s
}

// New starts a fake API. Close must be called when done.
func New(opts ...Option) (*Server, error) {
	st, err := openStore(":memory:")
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:    st,
		tokens:   tokens{secret: []byte("fakeapi-secret"), ttl: time.Hour, now: time.Now},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		failures: map[string]failure{},
		hits:     map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.http = httptest.NewServer(s.routes())
	return s, nil
}

func (s *Server) URL() string { return s.http.URL }

func (s *Server) Close() {
	s.http.Close()
	_ = s.store.Close()
}

// AddUser registers an account.
func (s *Server) AddUser(ctx context.Context, username, password string, admin bool) (models.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{Username: username, Email: username + "@example.com", IsAdmin: admin}
	if admin {
		u.Role = "admin"
	}
	return s.store.createUser(ctx, u, hash)
}

// Token issues an access token for userID without a login round trip.
func (s *Server) Token(userID models.ID) (string, error) {
	return s.tokens.issue(userID)
}

// FailNext makes the next request to path answer status with an {"error"}
// body carrying reason; an empty reason sends no body.
func (s *Server) FailNext(path string, status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, reason: reason}
}

// Hits reports how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(s.countAndInject)

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Post("/api/auth/register", s.handleRegister)
	mux.Post("/api/auth/login", s.handleLogin)

	mux.Group(func(pr chi.Router) {
		pr.Use(s.authMiddleware)
		pr.Get("/api/auth/me", s.handleMe)
		pr.Post("/api/records/upload", s.handleUpload)
		pr.Get("/api/records/my-records", s.handleMyRecords)
		pr.Get("/api/records/all-records", s.handleAllRecords)
		pr.Get("/api/records/document/{id}", s.handleDocument)
	})
	return mux
}

func (s *Server) countAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.hits[req.URL.Path]++
		f, inject := s.failures[req.URL.Path]
		delete(s.failures, req.URL.Path)
		s.mu.Unlock()
		s.logger.Debug("fake api request", "method", req.Method, "path", req.URL.Path,
			"request_id", req.Header.Get("X-Request-ID"))
		if inject {
			if f.reason == "" {
				w.WriteHeader(f.status)
				return
			}
			writeError(w, f.status, f.reason)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		authz := req.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		userID, err := s.tokens.parse(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired or is invalid"})
			return
		}
		ctx := context.WithValue(req.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func userID(ctx context.Context) models.ID {
	id, _ := ctx.Value(userIDContextKey).(models.ID)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"is_admin"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	hash, err := hashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	u, err := s.store.createUser(req.Context(), models.User{
		Username: body.Username, Email: body.Email, Role: body.Role, IsAdmin: body.IsAdmin,
	}, hash)
	if errors.Is(err, ErrUsernameTaken) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "user": u})
}

func (s *Server) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	resp, err := s.authenticate(req.Context(), body.Username, body.Password)
	if errors.Is(err, errInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, req *http.Request) {
	acc, err := s.store.userByID(req.Context(), userID(req.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, acc.User)
}

func (s *Server) handleUpload(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := req.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeError(w, http.StatusBadRequest, "File type not allowed")
		return
	}
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := newRecord{
		UserID:      userID(req.Context()),
		VaccineName: req.FormValue("vaccine_name"),
		Provider:    req.FormValue("provider"),
		Document: document{
			Filename:    filepath.Base(header.Filename),
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		},
	}
	if rec.Document.ContentType == "" {
		rec.Document.ContentType = "application/octet-stream"
	}
	if rec.VaccineName == "" {
		writeError(w, http.StatusBadRequest, "vaccine_name is required")
		return
	}
	if rec.DateAdministered, err = models.ParseDate(req.FormValue("date_administered")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_administered")
		return
	}
	if v := req.FormValue("next_due_date"); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid next_due_date")
			return
		}
		rec.NextDueDate = &d
	}
	if _, err := s.store.insertRecord(req.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Record uploaded successfully"})
}

func (s *Server) handleMyRecords(w http.ResponseWriter, req *http.Request) {
	records, err := s.store.listRecords(req.Context(), userID(req.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for i := range records {
		records[i].UserID = ""
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAllRecords(w http.ResponseWriter, req *http.Request) {
	acc, err := s.store.userByID(req.Context(), userID(req.Context()))
	if err != nil || !acc.IsAdmin {
		writeError(w, http.StatusForbidden, "Unauthorized")
		return
	}
	records, err := s.store.listRecords(req.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDocument(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	doc, err := s.store.document(req.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	caller := userID(req.Context())
	if doc.OwnerID != caller {
		acc, err := s.store.userByID(req.Context(), caller)
		if err != nil || !acc.IsAdmin {
			writeError(w, http.StatusForbidden, "Unauthorized")
			return
		}
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
