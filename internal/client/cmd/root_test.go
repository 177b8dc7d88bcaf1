package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immun/internal/client/session"
	"immun/internal/dashboard"
	"immun/internal/testkit/fakeapi"
)

type harness struct {
	t      *testing.T
	srv    *fakeapi.Server
	opened []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fakeapi.Start(t)
	t.Setenv("IMMUN_STATE_DIR", t.TempDir())
	t.Setenv("IMMUN_API_URL", srv.URL())
	t.Setenv("IMMUN_LOCALE", "en-US")
	return &harness{t: t, srv: srv}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	c := &cli{now: time.Now, openURL: func(u string) error {
		h.opened = append(h.opened, u)
		return nil
	}}
	root := newRootCmd(c, "1.0.0", "2026-10-01")
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (h *harness) login(username, password string, admin bool) {
	h.t.Helper()
	_, err := h.srv.AddUser(context.Background(), username, password, admin)
	require.NoError(h.t, err)
	out, err := h.run(username+"\n"+password+"\n", "login")
	require.NoError(h.t, err)
	require.Contains(h.t, out, "Logged in as "+username)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestRoot_VersionAndVault(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "version")
	require.NoError(t, err)
	assert.Equal(t, "immun 1.0.0 (2026-10-01)\n", out)

	out, err = h.run("", "vault", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not initialized")

	_, err = h.run("", "vault", "init")
	require.NoError(t, err)
	out, err = h.run("", "vault", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Vault: ready")

	_, err = h.run("", "vault", "init")
	require.Error(t, err)
}

func TestRecordsRequireSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "records", "list")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestLoginUploadAndList(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)

	out, err := h.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Username: alice")
	assert.Contains(t, out, "Role:     user")
	assert.Contains(t, out, "Email:    alice@example.com")
	assert.Contains(t, out, "Expires:  ")

	doc := writeFile(t, "flu.pdf", []byte("%PDF-1.4"))
	out, err = h.run("", "records", "upload", "--vaccine", "Flu Shot", "--date", "2024-10-01", "--file", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, alice!")
	assert.Contains(t, out, "Record uploaded successfully")
	assert.Contains(t, out, "Flu Shot")
	assert.Equal(t, 1, h.srv.Hits("/api/records/upload"))
	assert.Equal(t, 1, h.srv.Hits("/api/records/my-records"))

	out, err = h.run("", "records", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Vaccine Name")
	assert.Contains(t, out, "10/1/2024")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "/api/records/document/1")
	assert.NotContains(t, out, "Error:")
}

func TestUploadFailures(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)

	out, err := h.run("", "records", "upload", "--vaccine", "Flu Shot", "--date", "2024-10-01")
	require.ErrorIs(t, err, errUploadFailed)
	assert.NotContains(t, err.Error(), "No file provided")
	assert.Equal(t, 1, strings.Count(out, "No file provided"))
	assert.Contains(t, out, "Error: No file provided")
	assert.Zero(t, h.srv.Hits("/api/records/my-records"))

	_, err = h.run("", "records", "upload", "--date", "2024-10-01")
	assert.ErrorIs(t, err, dashboard.ErrDraftIncomplete)

	_, err = h.run("", "records", "upload", "--vaccine", "MMR", "--date", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--date")
	assert.Equal(t, 1, h.srv.Hits("/api/records/upload"))
}

func TestListFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)

	h.srv.FailNext("/api/records/my-records", http.StatusInternalServerError, "")
	out, err := h.run("", "records", "list")
	require.Error(t, err)
	assert.Contains(t, out, "Error: Failed to fetch records")
	assert.Contains(t, out, "No records.")
}

func TestDocumentCommand(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)
	doc := writeFile(t, "card.png", []byte("\x89PNG"))
	_, err := h.run("", "records", "upload", "--vaccine", "MMR", "--date", "2024-05-02", "--provider", "Clinic", "--file", doc)
	require.NoError(t, err)

	out, err := h.run("", "records", "document", "1")
	require.NoError(t, err)
	assert.Equal(t, h.srv.URL()+"/api/records/document/1\n", out)

	_, err = h.run("", "records", "document", "1", "--open")
	require.NoError(t, err)
	assert.Equal(t, []string{h.srv.URL() + "/api/records/document/1"}, h.opened)

	dest := filepath.Join(t.TempDir(), "out.png")
	_, err = h.run("", "records", "document", "1", "--output", dest)
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(got))
}

func TestAdminRecords(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)
	doc := writeFile(t, "scan.jpg", []byte("jpeg"))
	_, err := h.run("", "records", "upload", "--vaccine", "Tetanus", "--date", "2023-01-09", "--file", doc)
	require.NoError(t, err)
	_, err = h.run("", "admin", "records")
	assert.True(t, errors.Is(err, errNotAdmin))

	h.login("admin", "admin123", true)
	out, err := h.run("", "admin", "records")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin Dashboard")
	assert.Contains(t, out, "User ID")
	assert.Contains(t, out, "Created At")
	assert.Contains(t, out, "Tetanus")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login("alice", "pw", false)

	out, err := h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, session.ErrNoSession)

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}
