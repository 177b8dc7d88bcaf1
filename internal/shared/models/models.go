package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ID is an opaque identifier assigned by the Records API. The API may encode it
// as a JSON number or string; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

// Admin reports whether the account may read every user's records.
func (u User) Admin() bool {
	return u.IsAdmin || strings.EqualFold(u.Role, "admin")
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// ImmunizationRecord is one immunization event as returned by the list
// endpoints. UserID is only populated by the all-records listing.
type ImmunizationRecord struct {
	ID               ID        `json:"id"`
	UserID           ID        `json:"user_id,omitempty"`
	VaccineName      string    `json:"vaccine_name"`
	DateAdministered Date      `json:"date_administered"`
	NextDueDate      *Date     `json:"next_due_date"`
	Provider         string    `json:"provider"`
	DocumentRef      string    `json:"document_path,omitempty"`
	CreatedAt        Timestamp `json:"created_at"`
}

// UploadDraft is the unsaved form state of a record upload. A zero
// DateAdministered, a nil NextDueDate and a nil Attachment mean "not set".
type UploadDraft struct {
	VaccineName      string
	DateAdministered Date
	NextDueDate      *Date
	Provider         string
	Attachment       *Attachment
}

// Ready reports whether the required fields are filled in.
func (d UploadDraft) Ready() bool {
	return strings.TrimSpace(d.VaccineName) != "" && !d.DateAdministered.IsZero()
}

// IsEmpty reports whether the draft holds no user input.
func (d UploadDraft) IsEmpty() bool {
	return d.VaccineName == "" && d.DateAdministered.IsZero() && d.NextDueDate == nil &&
		d.Provider == "" && d.Attachment == nil
}

// Attachment references a document to send with an upload. It can be opened
// more than once so a failed submission can be retried with the same draft.
type Attachment struct {
	Filename string
	open     func() (io.ReadCloser, error)
}

// FileAttachment references a file on disk; it is read at submission time.
func FileAttachment(path string) *Attachment {
	return &Attachment{
		Filename: filepath.Base(path),
		open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesAttachment wraps an in-memory document.
func BytesAttachment(filename string, data []byte) *Attachment {
	return &Attachment{
		Filename: filename,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func (a *Attachment) Open() (io.ReadCloser, error) {
	if a == nil || a.open == nil {
		return nil, fmt.Errorf("attachment has no content")
	}
	return a.open()
}

// ContentType guesses the media type from the file extension.
func (a *Attachment) ContentType() string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(a.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
