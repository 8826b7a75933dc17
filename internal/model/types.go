package model

// TokenSet holds the persisted Gmail OAuth credentials for the single
// connected account. A non-nil set always has a non-empty AccessToken;
// RefreshToken may be empty if Google withheld one, in which case the set
// becomes unusable once ExpiresAt passes.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch millis
	UserEmail    string `json:"userEmail"`
}

// EmailPayload is one logical outgoing email. It is ephemeral: built at send
// time from a CapsuleEntry or the compose screen, never persisted.
type EmailPayload struct {
	To        string
	Subject   string
	Body      string
	PhotoURIs []string
}

// Status is the outbox lifecycle state of a capsule entry. There is no
// persisted "sent" state: a successful send removes the entry from the store.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// CapsuleEntry is one composed memory queued for delivery. Recipient fields
// and the display-ready dayNumber/age/subject/body are frozen at composition
// time so a later profile edit never silently repoints a queued entry.
type CapsuleEntry struct {
	ID           string   `json:"id"`
	ChildID      string   `json:"childId"`
	ChildName    string   `json:"childName"`
	ChildEmail   string   `json:"childEmail"`
	Text         string   `json:"text,omitempty"`
	PhotoURIs    []string `json:"photoUris,omitempty"`
	CreatedAt    string   `json:"createdAt"` // RFC 3339
	Status       Status   `json:"status"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	DayNumber    int      `json:"dayNumber"`
	Age          string   `json:"age"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
}

// ChildProfile is a recipient. Birthday is a date-only "YYYY-MM-DD" string to
// keep day math timezone-stable.
type ChildProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Birthday  string `json:"birthday"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	IsDefault bool   `json:"isDefault"`
}

// Prompt is one writing suggestion, valid for a single age bucket.
type Prompt struct {
	ID        int    `json:"id"`
	AgeBucket string `json:"ageBucket"`
	Text      string `json:"text"`
}

// AgeBucket classifies a child's age in days for prompt selection.
type AgeBucket struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	MinDays int    `json:"minDays"`
	MaxDays int    `json:"maxDays"`
}

// RetryReport summarizes one bulk auto-retry pass over the outbox.
type RetryReport struct {
	Attempted int
	Succeeded int
	Failed    int
}
