package models

import (
	"encoding/json"
	"io"
	"testing"
	"time"
)

func TestDecodeRecordFromAPI(t *testing.T) {
	payload := `[{
		"id": 7,
		"user_id": 3,
		"vaccine_name": "Flu Shot",
		"date_administered": "2024-10-01",
		"next_due_date": null,
		"provider": null,
		"document_path": "uploads/3_card.pdf",
		"created_at": "2024-10-02T09:15:00.123456"
	}]`
	var recs []ImmunizationRecord
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("len: %d", len(recs))
	}
	r := recs[0]
	if r.ID != "7" || r.UserID != "3" {
		t.Fatalf("ids: %q %q", r.ID, r.UserID)
	}
	if r.DateAdministered != NewDate(2024, time.October, 1) {
		t.Fatalf("date: %v", r.DateAdministered)
	}
	if r.NextDueDate != nil {
		t.Fatalf("next due should be absent: %v", r.NextDueDate)
	}
	if r.Provider != "" {
		t.Fatalf("provider: %q", r.Provider)
	}
	if r.CreatedAt.Hour() != 9 || r.CreatedAt.Location() != time.UTC {
		t.Fatalf("created_at: %v", r.CreatedAt)
	}
}

func TestParseDateKeepsWrittenDay(t *testing.T) {
	d, err := ParseDate("2025-03-31T23:30:00-05:00")
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "2025-03-31" {
		t.Fatalf("got %s", d)
	}
	if _, err := ParseDate("31/03/2025"); err == nil {
		t.Fatalf("expected error for non-ISO date")
	}
}

func TestDraftReadyAndEmpty(t *testing.T) {
	var d UploadDraft
	if !d.IsEmpty() || d.Ready() {
		t.Fatalf("zero draft: empty=%v ready=%v", d.IsEmpty(), d.Ready())
	}
	d.VaccineName = "  "
	d.DateAdministered = NewDate(2024, time.October, 1)
	if d.Ready() {
		t.Fatalf("blank vaccine name must not be ready")
	}
	d.VaccineName = "MMR"
	if !d.Ready() || d.IsEmpty() {
		t.Fatalf("filled draft: empty=%v ready=%v", d.IsEmpty(), d.Ready())
	}
}

func TestAttachmentReopens(t *testing.T) {
	a := BytesAttachment("card.pdf", []byte("%PDF-1.4"))
	for i := 0; i < 2; i++ {
		rc, err := a.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(b) != "%PDF-1.4" {
			t.Fatalf("read %d: %q", i, b)
		}
	}
	if a.ContentType() != "application/pdf" {
		t.Fatalf("content type: %s", a.ContentType())
	}
	if (&Attachment{Filename: "scan.unknownext"}).ContentType() != "application/octet-stream" {
		t.Fatalf("fallback content type")
	}
}
