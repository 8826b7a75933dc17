package outbox

import (
	"os"
	"strings"

	"capsulemail/internal/model"
)

// FileChecker reports whether a photo reference still resolves to a readable
// file. Picker URIs point into a cache the OS may purge at any time, so this
// is checked immediately before every send.
type FileChecker interface {
	Exists(uri string) bool
}

// OSChecker checks photo references against the local filesystem.
type OSChecker struct{}

func (OSChecker) Exists(uri string) bool {
	info, err := os.Stat(strings.TrimPrefix(uri, "file://"))
	return err == nil && !info.IsDir()
}

// Validator finds photo references on an entry that no longer resolve.
type Validator struct {
	files FileChecker
}

func NewValidator(files FileChecker) *Validator {
	return &Validator{files: files}
}

// InvalidPhotoURIs returns the entry's photo references that can no longer be
// read. An empty result means the entry is safe to send.
func (v *Validator) InvalidPhotoURIs(e model.CapsuleEntry) []string {
	var invalid []string
	for _, uri := range e.PhotoURIs {
		if !v.files.Exists(uri) {
			invalid = append(invalid, uri)
		}
	}
	return invalid
}
