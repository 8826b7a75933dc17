// Package compose renders an outgoing email payload into an RFC 2822 message
// and encodes it for the Gmail API's raw field.
package compose

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"capsulemail/internal/model"
)

// FileReader resolves local photo references to their bytes. Implementations
// can back this with the OS filesystem or a test fixture.
type FileReader interface {
	ReadFile(uri string) ([]byte, error)
}

// OSFiles reads attachments from the local filesystem, accepting both plain
// paths and file:// URIs.
type OSFiles struct{}

func (OSFiles) ReadFile(uri string) ([]byte, error) {
	return os.ReadFile(strings.TrimPrefix(uri, "file://"))
}

const base64LineLength = 76

type Composer struct {
	files          FileReader
	maxAttachments int
}

func New(files FileReader, maxAttachments int) *Composer {
	if maxAttachments <= 0 {
		maxAttachments = 5
	}
	return &Composer{files: files, maxAttachments: maxAttachments}
}

// Message renders the payload as a complete RFC 2822 message string. Photos
// beyond the attachment limit are dropped; photos that cannot be read are
// skipped so the message still sends with whatever attachments succeeded.
func (c *Composer) Message(from string, p model.EmailPayload) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + p.To + "\r\n")
	b.WriteString("Subject: " + p.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	photos := p.PhotoURIs
	if len(photos) > c.maxAttachments {
		photos = photos[:c.maxAttachments]
	}

	if len(photos) == 0 {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(p.Body)
		return b.String()
	}

	// Boundary only needs to be unique within this one message.
	boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
	b.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(p.Body + "\r\n\r\n")

	for _, uri := range photos {
		data, err := c.files.ReadFile(uri)
		if err != nil {
			log.Printf("compose: skipping unreadable attachment %s: %v", uri, err)
			continue
		}
		filename := path.Base(strings.TrimPrefix(uri, "file://"))
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + MIMETypeForFile(filename) + "\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + filename + "\"\r\n\r\n")
		writeBase64Wrapped(&b, data)
		b.WriteString("\r\n")
	}

	// No trailing CRLF after the closing boundary.
	b.WriteString("--" + boundary + "--")
	return b.String()
}

// MIMETypeForFile infers an image content type from the filename extension.
// Unrecognized extensions deliberately fall back to JPEG, matching picker
// output on the platforms we run on; there is no content sniffing.
func MIMETypeForFile(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

// EncodeRawURL produces the Gmail "raw" form of a message: URL-safe base64
// over the UTF-8 bytes, with padding stripped.
func EncodeRawURL(message string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(message))
}

// writeBase64Wrapped emits standard base64 split into 76-character lines per
// RFC 2045.
func writeBase64Wrapped(b *strings.Builder, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for i := 0; i < len(encoded); i += base64LineLength {
		end := i + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		b.WriteString("\r\n")
	}
}
