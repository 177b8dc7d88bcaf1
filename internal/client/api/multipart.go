package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"immun/internal/shared/models"
)

// Form field names understood by the upload endpoint.
const (
	FieldVaccineName      = "vaccine_name"
	FieldDateAdministered = "date_administered"
	FieldNextDueDate      = "next_due_date"
	FieldProvider         = "provider"
	FieldFile             = "file"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeDraft builds the multipart upload body. Unset fields (no dates, no
// attachment) are left out entirely rather than sent empty; text fields are
// always present, provider possibly empty.
func EncodeDraft(d models.UploadDraft) (*bytes.Buffer, string, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)

	if err := w.WriteField(FieldVaccineName, d.VaccineName); err != nil {
		return nil, "", err
	}
	if !d.DateAdministered.IsZero() {
		if err := w.WriteField(FieldDateAdministered, d.DateAdministered.String()); err != nil {
			return nil, "", err
		}
	}
	if d.NextDueDate != nil && !d.NextDueDate.IsZero() {
		if err := w.WriteField(FieldNextDueDate, d.NextDueDate.String()); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField(FieldProvider, d.Provider); err != nil {
		return nil, "", err
	}
	if d.Attachment != nil {
		if err := writeAttachment(w, d.Attachment); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func writeAttachment(w *multipart.Writer, a *models.Attachment) error {
	src, err := a.Open()
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", a.Filename, err)
	}
	defer src.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldFile, quoteEscaper.Replace(a.Filename)))
	h.Set("Content-Type", a.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("read attachment %s: %w", a.Filename, err)
	}
	return nil
}
