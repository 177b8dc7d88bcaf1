// Package dashboard holds the screen logic shared by the immun front ends:
// the user and admin record dashboards, the record list loader and the
// upload workflow. It knows nothing about HTTP or terminals.
package dashboard

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/language"

	"immun/internal/shared/models"
)

// AuthContext is the signed-in identity a dashboard acts for.
type AuthContext interface {
	Username() string
	Logout()
}

// RecordsClient is the part of the Records API the dashboards call.
type RecordsClient interface {
	ListOwnRecords(ctx context.Context) ([]models.ImmunizationRecord, error)
	ListAllRecords(ctx context.Context) ([]models.ImmunizationRecord, error)
	UploadRecord(ctx context.Context, draft models.UploadDraft) error
	DocumentURL(id models.ID) string
}

type Variant int

const (
	UserVariant Variant = iota
	AdminVariant
)

func (v Variant) String() string {
	if v == AdminVariant {
		return "admin"
	}
	return "user"
}

type options struct {
	locale      language.Tag
	loc         *time.Location
	documentURL func(models.ID) string
}

type Option func(*options)

// WithLocale sets the locale used for dates. Defaults to en-US.
func WithLocale(tag language.Tag) Option {
	return func(o *options) { o.locale = tag }
}

// WithLocation sets the time zone creation timestamps are shown in.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithDocumentURL overrides where Document links point. By default they
// point at the Records API.
func WithDocumentURL(fn func(models.ID) string) Option {
	return func(o *options) { o.documentURL = fn }
}

// Shell is one dashboard screen. It is safe for concurrent use.
type Shell struct {
	variant     Variant
	auth        AuthContext
	format      Formatter
	documentURL func(models.ID) string
	b           *board
	loader      *Loader
	upload      *UploadWorkflow
}

// NewUserDashboard builds the dashboard listing the signed-in user's own
// records, with an upload dialog.
func NewUserDashboard(auth AuthContext, client RecordsClient, opts ...Option) *Shell {
	s := newShell(UserVariant, auth, client, client.ListOwnRecords, opts)
	s.upload = newUploadWorkflow(s.b, client, s.loader)
	return s
}

// NewAdminDashboard builds the read-only dashboard listing every user's
// records.
func NewAdminDashboard(auth AuthContext, client RecordsClient, opts ...Option) *Shell {
	return newShell(AdminVariant, auth, client, client.ListAllRecords, opts)
}

func newShell(v Variant, auth AuthContext, client RecordsClient, list ListFunc, opts []Option) *Shell {
	o := options{locale: language.AmericanEnglish, documentURL: client.DocumentURL}
	for _, opt := range opts {
		opt(&o)
	}
	b := newBoard()
	return &Shell{
		variant:     v,
		auth:        auth,
		format:      NewFormatter(o.locale, o.loc),
		documentURL: o.documentURL,
		b:           b,
		loader:      newLoader(b, list),
	}
}

func (s *Shell) Variant() Variant { return s.variant }

// Mount performs the initial load.
func (s *Shell) Mount(ctx context.Context) error {
	return s.loader.Load(ctx)
}

// Refresh re-fetches the record list.
func (s *Shell) Refresh(ctx context.Context) error {
	return s.loader.Load(ctx)
}

// Upload returns the upload workflow, or nil on the admin dashboard.
func (s *Shell) Upload() *UploadWorkflow { return s.upload }

// Records returns a copy of the currently held list.
func (s *Shell) Records() []models.ImmunizationRecord {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return slices.Clone(s.b.records)
}

func (s *Shell) Feedback() Feedback {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.feedback
}

// DismissFeedback clears the current message.
func (s *Shell) DismissFeedback() {
	s.b.mu.Lock()
	s.b.feedback = Feedback{}
	s.b.mu.Unlock()
}

func (s *Shell) Formatter() Formatter { return s.format }

func (s *Shell) DocumentURL(id models.ID) string { return s.documentURL(id) }

// UploadView is the upload dialog state as rendered.
type UploadView struct {
	Open       bool
	Submitting bool
	CanSubmit  bool
	Draft      models.UploadDraft
}

// View is everything a front end needs to draw the screen.
type View struct {
	Variant  Variant
	Title    string
	Username string
	Feedback Feedback
	Table    Table
	// Upload is nil on the admin dashboard.
	Upload *UploadView
}

func (s *Shell) View() View {
	s.b.mu.Lock()
	records := s.b.records
	fb := s.b.feedback
	s.b.mu.Unlock()

	username := s.auth.Username()
	v := View{Variant: s.variant, Username: username, Feedback: fb}
	switch s.variant {
	case AdminVariant:
		v.Title = "Admin Dashboard"
		v.Table = buildTable(adminColumns, records, s.format, s.documentURL)
	default:
		v.Title = fmt.Sprintf("Welcome, %s!", username)
		v.Table = buildTable(userColumns, records, s.format, s.documentURL)
	}
	if s.upload != nil {
		s.upload.b.mu.Lock()
		v.Upload = &UploadView{
			Open:       s.upload.state != StateClosed,
			Submitting: s.upload.state == StateSubmitting,
			CanSubmit:  s.upload.state == StateEditing && s.upload.draft.Ready(),
			Draft:      s.upload.draft,
		}
		s.upload.b.mu.Unlock()
	}
	return v
}

// Close cancels in-flight work; late results are discarded.
func (s *Shell) Close() {
	s.b.close()
}

// Logout closes the screen and ends the session.
func (s *Shell) Logout() {
	s.Close()
	s.auth.Logout()
}
