package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immun/internal/client/api"
	"immun/internal/shared/models"
)

type fakeAuth struct {
	name    string
	logouts int
}

func (a *fakeAuth) Username() string { return a.name }
func (a *fakeAuth) Logout()          { a.logouts++ }

type fakeClient struct {
	mu        sync.Mutex
	own       []models.ImmunizationRecord
	all       []models.ImmunizationRecord
	listErr   error
	uploadErr error
	listCalls int
	uploads   []models.UploadDraft

	// optional hooks replacing the canned behaviour
	onList   func(ctx context.Context, call int) ([]models.ImmunizationRecord, error)
	onUpload func(ctx context.Context) error
}

func (c *fakeClient) list(ctx context.Context, recs []models.ImmunizationRecord) ([]models.ImmunizationRecord, error) {
	c.mu.Lock()
	c.listCalls++
	call := c.listCalls
	hook := c.onList
	err := c.listErr
	c.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *fakeClient) ListOwnRecords(ctx context.Context) ([]models.ImmunizationRecord, error) {
	return c.list(ctx, c.own)
}

func (c *fakeClient) ListAllRecords(ctx context.Context) ([]models.ImmunizationRecord, error) {
	return c.list(ctx, c.all)
}

func (c *fakeClient) UploadRecord(ctx context.Context, draft models.UploadDraft) error {
	c.mu.Lock()
	c.uploads = append(c.uploads, draft)
	hook := c.onUpload
	err := c.uploadErr
	c.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return err
}

func (c *fakeClient) DocumentURL(id models.ID) string {
	return "http://records.test/api/records/document/" + id.String()
}

func (c *fakeClient) calls() (lists, uploads int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls, len(c.uploads)
}

func sampleRecord() models.ImmunizationRecord {
	due := models.NewDate(2025, time.October, 1)
	return models.ImmunizationRecord{
		ID:               "7",
		UserID:           "3",
		VaccineName:      "Hepatitis B",
		DateAdministered: models.NewDate(2024, time.March, 5),
		NextDueDate:      &due,
		Provider:         "City Clinic",
		CreatedAt:        models.Timestamp{Time: time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)},
	}
}

func fluShotDraft(d *models.UploadDraft) {
	d.VaccineName = "Flu Shot"
	d.DateAdministered = models.NewDate(2024, time.October, 1)
}

func TestMountLoadsOwnRecords(t *testing.T) {
	client := &fakeClient{own: []models.ImmunizationRecord{sampleRecord()}}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)

	require.NoError(t, s.Mount(context.Background()))

	v := s.View()
	assert.Equal(t, "Welcome, alice!", v.Title)
	assert.True(t, v.Feedback.Empty())
	require.Len(t, v.Table.Rows, 1)
	assert.Equal(t, models.ID("7"), v.Table.Rows[0].RecordID)
	require.NotNil(t, v.Upload)
	assert.False(t, v.Upload.Open)
}

func TestListFailureKeepsPreviousList(t *testing.T) {
	client := &fakeClient{listErr: errors.New("connection refused")}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)

	require.Error(t, s.Mount(context.Background()))
	assert.Empty(t, s.Records())
	assert.Equal(t, Feedback{Kind: FeedbackError, Message: FetchFailedMessage}, s.Feedback())

	client.mu.Lock()
	client.listErr = nil
	client.own = []models.ImmunizationRecord{sampleRecord()}
	client.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background()))
	require.Len(t, s.Records(), 1)

	client.mu.Lock()
	client.listErr = &api.Error{StatusCode: 403, Status: "403 Forbidden", ReasonText: "Unauthorized"}
	client.mu.Unlock()
	require.Error(t, s.Refresh(context.Background()))
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, FetchFailedMessage, s.Feedback().Message)
}

func TestSubmitSuccessClosesAndRefreshesOnce(t *testing.T) {
	client := &fakeClient{}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	require.NoError(t, s.Mount(context.Background()))

	up := s.Upload()
	require.NoError(t, up.Open())
	require.NoError(t, up.Update(fluShotDraft))
	require.True(t, up.CanSubmit())

	require.NoError(t, up.Submit(context.Background()))

	lists, uploads := client.calls()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 2, lists, "mount plus exactly one refresh")

	sent := client.uploads[0]
	assert.Equal(t, "Flu Shot", sent.VaccineName)
	assert.Nil(t, sent.NextDueDate)
	assert.Nil(t, sent.Attachment)
	assert.Equal(t, "", sent.Provider)

	assert.Equal(t, StateClosed, up.State())
	assert.True(t, up.Draft().IsEmpty())
	assert.Equal(t, Feedback{Kind: FeedbackSuccess, Message: UploadSucceededMessage}, s.Feedback())
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "server reason",
			err:  &api.Error{Op: "upload record", StatusCode: 400, Status: "400 Bad Request", ReasonText: "No file provided"},
			want: "No file provided",
		},
		{
			name: "error without reason",
			err:  &api.Error{Op: "upload record", StatusCode: 500, Status: "500 Internal Server Error"},
			want: UploadFailedMessage,
		},
		{
			name: "transport failure",
			err:  errors.New("dial tcp: connection refused"),
			want: UploadFailedMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{uploadErr: tt.err}
			s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
			up := s.Upload()
			require.NoError(t, up.Open())
			attachment := models.BytesAttachment("card.pdf", []byte("%PDF"))
			require.NoError(t, up.Update(func(d *models.UploadDraft) {
				fluShotDraft(d)
				d.Provider = "Pharmacy"
				d.Attachment = attachment
			}))
			before := up.Draft()

			err := up.Submit(context.Background())
			require.ErrorIs(t, err, tt.err)

			assert.Equal(t, StateEditing, up.State())
			assert.Equal(t, before, up.Draft())
			assert.Equal(t, Feedback{Kind: FeedbackError, Message: tt.want}, s.Feedback())
			lists, _ := client.calls()
			assert.Zero(t, lists)
		})
	}
}

func TestSubmitClearsPreviousFeedback(t *testing.T) {
	client := &fakeClient{uploadErr: errors.New("boom")}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	up := s.Upload()
	require.NoError(t, up.Open())
	require.NoError(t, up.Update(fluShotDraft))
	require.Error(t, up.Submit(context.Background()))
	require.True(t, s.Feedback().IsError())

	client.mu.Lock()
	client.uploadErr = nil
	client.mu.Unlock()
	require.NoError(t, up.Submit(context.Background()))
	assert.True(t, s.Feedback().IsSuccess())
}

func TestRefreshFailureAfterUpload(t *testing.T) {
	client := &fakeClient{listErr: errors.New("unavailable")}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	up := s.Upload()
	require.NoError(t, up.Open())
	require.NoError(t, up.Update(fluShotDraft))

	require.NoError(t, up.Submit(context.Background()))
	assert.Equal(t, StateClosed, up.State())
	assert.Equal(t, FetchFailedMessage, s.Feedback().Message)
}

func TestSubmitGuards(t *testing.T) {
	client := &fakeClient{}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	up := s.Upload()

	assert.ErrorIs(t, up.Submit(context.Background()), ErrNotOpen)
	assert.ErrorIs(t, up.Update(fluShotDraft), ErrNotOpen)

	require.NoError(t, up.Open())
	require.NoError(t, up.Update(func(d *models.UploadDraft) { d.VaccineName = "  " }))
	assert.False(t, up.CanSubmit())
	assert.ErrorIs(t, up.Submit(context.Background()), ErrDraftIncomplete)

	_, uploads := client.calls()
	assert.Zero(t, uploads)
}

func TestSecondSubmitWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{onUpload: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	up := s.Upload()
	require.NoError(t, up.Open())
	require.NoError(t, up.Update(fluShotDraft))

	done := make(chan error, 1)
	go func() { done <- up.Submit(context.Background()) }()
	<-started

	assert.Equal(t, StateSubmitting, up.State())
	assert.ErrorIs(t, up.Submit(context.Background()), ErrSubmitInFlight)
	assert.ErrorIs(t, up.Close(), ErrSubmitInFlight)
	assert.ErrorIs(t, up.Update(fluShotDraft), ErrSubmitInFlight)
	assert.True(t, s.View().Upload.Submitting)

	close(release)
	require.NoError(t, <-done)
	_, uploads := client.calls()
	assert.Equal(t, 1, uploads)
}

func TestCloseDiscardsDraft(t *testing.T) {
	s := NewUserDashboard(&fakeAuth{name: "alice"}, &fakeClient{})
	up := s.Upload()
	require.NoError(t, up.Open())
	require.NoError(t, up.Update(fluShotDraft))
	require.NoError(t, up.Close())

	assert.Equal(t, StateClosed, up.State())
	assert.True(t, up.Draft().IsEmpty())

	require.NoError(t, up.Open())
	assert.True(t, up.Draft().IsEmpty())
}

func TestLateLoadAfterCloseIsIgnored(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{onList: func(ctx context.Context, _ int) ([]models.ImmunizationRecord, error) {
		close(started)
		<-ctx.Done()
		return []models.ImmunizationRecord{sampleRecord()}, nil
	}}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)

	done := make(chan error, 1)
	go func() { done <- s.Mount(context.Background()) }()
	<-started
	s.Close()

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Empty(t, s.Records())
	assert.True(t, s.Feedback().Empty())
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrClosed)
}

func TestOnlyLatestLoadApplies(t *testing.T) {
	first := make(chan struct{})
	release := make(chan struct{})
	stale := sampleRecord()
	stale.VaccineName = "stale"
	fresh := sampleRecord()
	fresh.VaccineName = "fresh"
	client := &fakeClient{onList: func(_ context.Context, call int) ([]models.ImmunizationRecord, error) {
		if call == 1 {
			close(first)
			<-release
			return []models.ImmunizationRecord{stale}, nil
		}
		return []models.ImmunizationRecord{fresh}, nil
	}}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client)

	done := make(chan error, 1)
	go func() { done <- s.Mount(context.Background()) }()
	<-first
	require.NoError(t, s.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-done)

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].VaccineName)
}

func TestAdminAndUserRenderRecordsAlike(t *testing.T) {
	rec := sampleRecord()
	bare := sampleRecord()
	bare.ID = "8"
	bare.NextDueDate = nil
	bare.Provider = ""
	client := &fakeClient{
		own: []models.ImmunizationRecord{rec, bare},
		all: []models.ImmunizationRecord{rec, bare},
	}
	user := NewUserDashboard(&fakeAuth{name: "alice"}, client)
	admin := NewAdminDashboard(&fakeAuth{name: "root"}, client, WithLocation(time.UTC))
	require.NoError(t, user.Mount(context.Background()))
	require.NoError(t, admin.Mount(context.Background()))

	uv, av := user.View(), admin.View()
	assert.Equal(t, []Column{ColumnVaccineName, ColumnDateAdministered, ColumnNextDueDate, ColumnProvider, ColumnDocument}, uv.Table.Columns)
	assert.Equal(t, []Column{ColumnUserID, ColumnVaccineName, ColumnDateAdministered, ColumnNextDueDate, ColumnProvider, ColumnDocument, ColumnCreatedAt}, av.Table.Columns)
	assert.Equal(t, "Admin Dashboard", av.Title)
	assert.Nil(t, av.Upload)
	assert.Nil(t, admin.Upload())

	// user cells are the admin cells minus User ID and Created At
	for i := range uv.Table.Rows {
		assert.Equal(t, uv.Table.Rows[i].Cells, av.Table.Rows[i].Cells[1:6])
	}
	assert.Equal(t, []Cell{
		{Text: "Hepatitis B"},
		{Text: "3/5/2024"},
		{Text: "10/1/2025"},
		{Text: "City Clinic"},
		{Text: "View Document", Href: "http://records.test/api/records/document/7"},
	}, uv.Table.Rows[0].Cells)
	assert.Equal(t, NotApplicable, uv.Table.Rows[1].Cells[2].Text)
	assert.Equal(t, NotApplicable, uv.Table.Rows[1].Cells[3].Text)
	assert.Equal(t, "3", av.Table.Rows[0].Cells[0].Text)
	assert.Equal(t, "3/5/2024, 2:30:00 PM", av.Table.Rows[0].Cells[6].Text)
}

func TestDocumentURLOverride(t *testing.T) {
	client := &fakeClient{own: []models.ImmunizationRecord{sampleRecord()}}
	s := NewUserDashboard(&fakeAuth{name: "alice"}, client, WithDocumentURL(func(id models.ID) string {
		return "/documents/" + id.String()
	}))
	require.NoError(t, s.Mount(context.Background()))
	assert.Equal(t, "/documents/7", s.View().Table.Rows[0].Cells[4].Href)
}

func TestLogoutClosesAndDelegates(t *testing.T) {
	auth := &fakeAuth{name: "alice"}
	s := NewUserDashboard(auth, &fakeClient{})
	s.Logout()
	assert.Equal(t, 1, auth.logouts)
	assert.ErrorIs(t, s.Mount(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.Upload().Open(), ErrClosed)
}
