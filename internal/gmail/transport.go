// Package gmail sends composed messages through the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"capsulemail/internal/auth"
	"capsulemail/internal/compose"
	"capsulemail/internal/model"
)

const notAuthenticatedMessage = "Not authenticated. Please connect Gmail first."

// Authenticator supplies a valid access token and the connected account,
// which is the From address of every send.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, error)
	ConnectedEmail() string
}

// SendResult is the outcome of one send attempt. Failures are described by a
// user-facing message rather than a Go error: the caller persists the message
// on the outbox entry and moves on.
type SendResult struct {
	Success bool
	Error   string
}

// Client sends email for the connected account.
type Client struct {
	auth     Authenticator
	composer *compose.Composer

	// endpoint overrides the Gmail API base URL; empty means production.
	endpoint string
}

func NewClient(auth Authenticator, composer *compose.Composer, endpoint string) *Client {
	return &Client{auth: auth, composer: composer, endpoint: endpoint}
}

// Send composes the payload and submits it as the connected user. It never
// returns a Go error; every failure mode collapses into a SendResult so the
// retry path treats auth failures, API rejections, and network errors alike.
func (c *Client) Send(ctx context.Context, payload model.EmailPayload) SendResult {
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNotAuthenticated) {
			log.Printf("gmail: acquiring access token: %v", err)
		}
		return SendResult{Error: notAuthenticatedMessage}
	}

	raw := compose.EncodeRawURL(c.composer.Message(c.auth.ConnectedEmail(), payload))

	svc, err := c.service(ctx, token)
	if err != nil {
		log.Printf("gmail: building service: %v", err)
		return SendResult{Error: "Failed to send: " + err.Error()}
	}

	_, err = svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return SendResult{Error: sendErrorMessage(err)}
	}
	return SendResult{Success: true}
}

func (c *Client) service(ctx context.Context, token string) (*gmailapi.Service, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gmailapi.NewService(ctx, opts...)
}

// sendErrorMessage prefers the provider's own error message and falls back to
// a status-code summary when the response body carried none.
func sendErrorMessage(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Failed to send (status %d)", apiErr.Code)
	}
	return "Failed to send: " + err.Error()
}
