package dashboard

import (
	"context"
	"errors"

	"immun/internal/shared/models"
)

var (
	ErrNotOpen         = errors.New("upload dialog is not open")
	ErrSubmitInFlight  = errors.New("an upload is already being submitted")
	ErrDraftIncomplete = errors.New("vaccine name and date administered are required")
	ErrClosed          = errors.New("dashboard is closed")
)

type State int

const (
	StateClosed State = iota
	StateEditing
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// Uploader sends a draft to the Records API.
type Uploader interface {
	UploadRecord(ctx context.Context, draft models.UploadDraft) error
}

// reasoner is satisfied by API errors that carry a server-provided message.
type reasoner interface {
	Reason() string
}

// UploadWorkflow drives the upload dialog of the user dashboard:
//
//	Closed --Open--> Editing --Submit--> Submitting --ok--> Closed (+ refresh)
//	                    ^                    |
//	                    +------failure-------+
//
// At most one submission is in flight at a time.
type UploadWorkflow struct {
	b        *board
	uploader Uploader
	loader   *Loader
	state    State
	draft    models.UploadDraft
}

func newUploadWorkflow(b *board, uploader Uploader, loader *Loader) *UploadWorkflow {
	return &UploadWorkflow{b: b, uploader: uploader, loader: loader}
}

func (w *UploadWorkflow) State() State {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.state
}

// Draft returns a copy of the current draft.
func (w *UploadWorkflow) Draft() models.UploadDraft {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.draft
}

// Open shows the dialog. Opening an already open dialog keeps its draft.
func (w *UploadWorkflow) Open() error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if w.b.closed {
		return ErrClosed
	}
	if w.state == StateClosed {
		w.state = StateEditing
	}
	return nil
}

// Close dismisses the dialog and discards the draft.
func (w *UploadWorkflow) Close() error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	if w.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	w.state = StateClosed
	w.draft = models.UploadDraft{}
	return nil
}

// Update applies fn to the draft while the dialog is being edited.
func (w *UploadWorkflow) Update(fn func(*models.UploadDraft)) error {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	switch w.state {
	case StateClosed:
		return ErrNotOpen
	case StateSubmitting:
		return ErrSubmitInFlight
	}
	fn(&w.draft)
	return nil
}

// CanSubmit reports whether the submit control should be enabled.
func (w *UploadWorkflow) CanSubmit() bool {
	w.b.mu.Lock()
	defer w.b.mu.Unlock()
	return w.state == StateEditing && w.draft.Ready()
}

// Submit sends the draft once. On success the dialog closes, the draft is
// reset and the record list is refreshed; on failure the dialog stays open
// with the draft untouched and the error feedback set. The returned error is
// the upload error; a failed refresh is reported through feedback only.
func (w *UploadWorkflow) Submit(ctx context.Context) error {
	w.b.mu.Lock()
	if w.b.closed {
		w.b.mu.Unlock()
		return ErrClosed
	}
	switch w.state {
	case StateClosed:
		w.b.mu.Unlock()
		return ErrNotOpen
	case StateSubmitting:
		w.b.mu.Unlock()
		return ErrSubmitInFlight
	}
	if !w.draft.Ready() {
		w.b.mu.Unlock()
		return ErrDraftIncomplete
	}
	w.b.feedback = Feedback{}
	w.state = StateSubmitting
	draft := w.draft
	w.b.mu.Unlock()

	uctx, cancel := w.b.bind(ctx)
	err := w.uploader.UploadRecord(uctx, draft)
	cancel()

	w.b.mu.Lock()
	if w.b.closed {
		w.b.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		w.state = StateEditing
		w.b.feedback = errorFeedback(uploadFailureMessage(err))
		w.b.mu.Unlock()
		return err
	}
	w.state = StateClosed
	w.draft = models.UploadDraft{}
	w.b.feedback = successFeedback(UploadSucceededMessage)
	w.b.mu.Unlock()

	_ = w.loader.Load(ctx)
	return nil
}

func uploadFailureMessage(err error) string {
	var r reasoner
	if errors.As(err, &r) && r.Reason() != "" {
		return r.Reason()
	}
	return UploadFailedMessage
}
