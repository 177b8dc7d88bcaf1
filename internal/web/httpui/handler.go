// Package httpui serves the dashboards as HTML pages on a local address.
package httpui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"immun/internal/client/api"
	"immun/internal/dashboard"
	"immun/internal/shared/models"
)

const maxUploadBytes = 16 << 20

// DocumentSource streams record documents from the Records API.
type DocumentSource interface {
	FetchDocument(ctx context.Context, id models.ID) (*api.Document, error)
}

// Handler renders the user and, for admins, the admin dashboard.
type Handler struct {
	user      *dashboard.Shell
	admin     *dashboard.Shell
	docs      DocumentSource
	logger    *slog.Logger
	signedOut atomic.Bool
}

// NewHandler wires the screens. admin is nil when the account may not see
// every user's records.
func NewHandler(user, admin *dashboard.Shell, docs DocumentSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{user: user, admin: admin, docs: docs, logger: logger}
}

// DocumentPath is the local route serving the document of record id.
func DocumentPath(id models.ID) string {
	return "/documents/" + id.String()
}

func (h *Handler) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(recoveryMiddleware(h.logger), loggingMiddleware(h.logger))

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	mux.Group(func(r chi.Router) {
		r.Use(h.requireSession, limitBody(maxUploadBytes+1<<20), csrfMiddleware)
		r.Get("/", h.userPage)
		r.Post("/refresh", h.refresh(h.user, "/"))
		r.Post("/feedback/dismiss", h.dismiss(h.user, "/"))
		r.Post("/upload/open", h.openUpload)
		r.Post("/upload/cancel", h.cancelUpload)
		r.Post("/upload", h.submitUpload)
		r.Get("/documents/{id}", h.document)
		r.Post("/logout", h.logout)

		r.Get("/admin", h.adminPage)
		r.Post("/admin/refresh", h.adminRefresh)
		r.Post("/admin/feedback/dismiss", h.adminDismiss)
	})
	return mux
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.signedOut.Load() {
			h.renderSignedOut(w, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type pageData struct {
	Lang        string
	View        dashboard.View
	CSRF        string
	HasAdmin    bool
	RefreshPath string
	DismissPath string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, shell *dashboard.Shell, base string) {
	data := pageData{
		Lang:        shell.Formatter().Locale().String(),
		View:        shell.View(),
		CSRF:        csrfToken(w, r),
		HasAdmin:    h.admin != nil,
		RefreshPath: base + "refresh",
		DismissPath: base + "feedback/dismiss",
	}
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.Error("render dashboard", "variant", shell.Variant(), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) renderSignedOut(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, "signedout", nil); err != nil {
		h.logger.Error("render signed out page", "error", err)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (h *Handler) userPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.user, "/")
}

func (h *Handler) adminPage(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	h.render(w, r, h.admin, "/admin/")
}

func (h *Handler) adminRefresh(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	h.refresh(h.admin, "/admin")(w, r)
}

// refresh reloads a screen's list; a failure is shown as feedback.
func (h *Handler) refresh(shell *dashboard.Shell, back string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := shell.Refresh(r.Context()); err != nil {
			h.logger.Warn("refresh records", "variant", shell.Variant(), "error", err)
		}
		redirect(w, r, back)
	}
}

func (h *Handler) adminDismiss(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		http.Error(w, "admin access required", http.StatusForbidden)
		return
	}
	h.dismiss(h.admin, "/admin")(w, r)
}

// dismiss clears the banner of a screen.
func (h *Handler) dismiss(shell *dashboard.Shell, back string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shell.DismissFeedback()
		redirect(w, r, back)
	}
}

func (h *Handler) openUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.user.Upload().Open(); err != nil {
		h.logger.Warn("open upload dialog", "error", err)
	}
	redirect(w, r, "/")
}

func (h *Handler) cancelUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.user.Upload().Close(); err != nil {
		h.logger.Warn("close upload dialog", "error", err)
	}
	redirect(w, r, "/")
}

// submitUpload copies the posted form into the draft and submits it.
func (h *Handler) submitUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid upload form", http.StatusBadRequest)
		return
	}
	attachment, err := formAttachment(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	upload := h.user.Upload()
	// A form posted from a stale page still carries the user's values.
	if err := upload.Open(); err != nil {
		h.logger.Warn("open upload dialog", "error", err)
		redirect(w, r, "/")
		return
	}
	err = upload.Update(func(d *models.UploadDraft) {
		d.VaccineName = r.PostFormValue("vaccine_name")
		d.Provider = r.PostFormValue("provider")
		d.DateAdministered, _ = models.ParseDate(r.PostFormValue("date_administered"))
		d.NextDueDate = nil
		if next, err := models.ParseDate(r.PostFormValue("next_due_date")); err == nil {
			d.NextDueDate = &next
		}
		if attachment != nil {
			d.Attachment = attachment
		}
	})
	if err != nil {
		h.logger.Warn("update upload draft", "error", err)
		redirect(w, r, "/")
		return
	}

	err = upload.Submit(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrDraftIncomplete), errors.Is(err, dashboard.ErrSubmitInFlight):
		h.logger.Info("upload not submitted", "reason", err)
	default:
		h.logger.Warn("upload record", "error", err)
	}
	redirect(w, r, "/")
}

// formAttachment returns the posted file held in memory, or nil when the
// form has no file.
func formAttachment(r *http.Request) (*models.Attachment, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer file.Close()
	if header.Filename == "" {
		return nil, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return models.BytesAttachment(header.Filename, data), nil
}

// document streams a record's document with the session's credentials.
func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id := models.ID(chi.URLParam(r, "id"))
	doc, err := h.docs.FetchDocument(r.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		h.logger.Warn("fetch document", "record_id", id, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer doc.Body.Close()

	if doc.ContentType != "" {
		w.Header().Set("Content-Type", doc.ContentType)
	}
	if doc.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.ContentLength, 10))
	}
	if doc.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, doc.Body); err != nil {
		h.logger.Debug("stream document", "record_id", id, "error", err)
	}
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.signedOut.Store(true)
	if h.admin != nil {
		h.admin.Close()
	}
	h.user.Logout()
	h.renderSignedOut(w, http.StatusOK)
}
