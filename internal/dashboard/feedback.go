package dashboard

const (
	FetchFailedMessage     = "Failed to fetch records"
	UploadFailedMessage    = "Failed to upload record"
	UploadSucceededMessage = "Record uploaded successfully"
)

type FeedbackKind int

const (
	FeedbackNone FeedbackKind = iota
	FeedbackError
	FeedbackSuccess
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackError:
		return "error"
	case FeedbackSuccess:
		return "success"
	default:
		return "none"
	}
}

// Feedback is the single user-facing message shown above the table. Setting
// one kind replaces the other.
type Feedback struct {
	Kind    FeedbackKind
	Message string
}

func errorFeedback(msg string) Feedback   { return Feedback{Kind: FeedbackError, Message: msg} }
func successFeedback(msg string) Feedback { return Feedback{Kind: FeedbackSuccess, Message: msg} }

func (f Feedback) IsError() bool   { return f.Kind == FeedbackError }
func (f Feedback) IsSuccess() bool { return f.Kind == FeedbackSuccess }
func (f Feedback) Empty() bool     { return f.Kind == FeedbackNone }
