package wizard

// Message IDs shown to the user. They are keys of the i18n bundle.
const (
	MsgLoginSuccessful         = "LoginSuccessful"
	MsgLoginFailed             = "LoginFailed"
	MsgNetworkError            = "NetworkError"
	MsgSessionExpired          = "SessionExpired"
	MsgCatalogFailed           = "CatalogFailed"
	MsgIncompleteForm          = "IncompleteForm"
	MsgMetadataStarted         = "MetadataStarted"
	MsgMetadataFailed          = "MetadataFailed"
	MsgQuestionConfigSubmitted = "QuestionConfigSubmitted"
	MsgQuestionConfigFailed    = "QuestionConfigFailed"
	MsgWorksheetStarted        = "WorksheetStarted"
	MsgWorksheetFailed         = "WorksheetFailed"
	MsgWorksheetReady          = "WorksheetReady"
	MsgStillProcessing         = "StillProcessing"
	MsgPollGaveUp              = "PollGaveUp"
)

// Message is a user-facing message. Detail carries server-provided text,
// shown verbatim after the localized message.
type Message struct {
	ID     string `json:"id"`
	Detail string `json:"detail,omitempty"`
}
