package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"capsulemail/internal/auth"
	"capsulemail/internal/compose"
	"capsulemail/internal/model"
)

type fakeAuth struct {
	token string
	err   error
	email string
}

func (f *fakeAuth) AccessToken(ctx context.Context) (string, error) { return f.token, f.err }
func (f *fakeAuth) ConnectedEmail() string                          { return f.email }

type emptyFiles struct{}

func (emptyFiles) ReadFile(uri string) ([]byte, error) { return nil, nil }

// fakeGmail records send requests and serves a configurable response.
type fakeGmail struct {
	srv     *httptest.Server
	hits    atomic.Int64
	status  int
	body    string
	lastRaw string
}

func newFakeGmail(t *testing.T) *fakeGmail {
	t.Helper()
	f := &fakeGmail{status: http.StatusOK, body: `{"id":"msg-1"}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		var req struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			f.lastRaw = req.Raw
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		w.Write([]byte(f.body))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testClient(a Authenticator, endpoint string) *Client {
	return NewClient(a, compose.New(emptyFiles{}, 5), endpoint)
}

var testPayload = model.EmailPayload{
	To:      "kid@example.com",
	Subject: "Day 7",
	Body:    "hello from day 7",
}

func TestSendSuccess(t *testing.T) {
	g := newFakeGmail(t)
	c := testClient(&fakeAuth{token: "tok", email: "parent@gmail.com"}, g.srv.URL)

	res := c.Send(context.Background(), testPayload)
	if !res.Success || res.Error != "" {
		t.Fatalf("got %+v, want success", res)
	}
	if g.hits.Load() != 1 {
		t.Fatalf("expected one API call, got %d", g.hits.Load())
	}

	decoded, err := base64.RawURLEncoding.DecodeString(g.lastRaw)
	if err != nil {
		t.Fatalf("raw field is not URL-safe base64: %v", err)
	}
	msg := string(decoded)
	for _, want := range []string{"From: parent@gmail.com", "To: kid@example.com", "Subject: Day 7"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("raw message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendNotAuthenticated(t *testing.T) {
	g := newFakeGmail(t)
	c := testClient(&fakeAuth{err: auth.ErrNotAuthenticated}, g.srv.URL)

	res := c.Send(context.Background(), testPayload)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Not authenticated. Please connect Gmail first." {
		t.Fatalf("error got %q", res.Error)
	}
	if g.hits.Load() != 0 {
		t.Fatalf("no API call should happen without a token, got %d", g.hits.Load())
	}
}

func TestSendProviderErrorMessage(t *testing.T) {
	g := newFakeGmail(t)
	g.status = http.StatusForbidden
	g.body = `{"error":{"code":403,"message":"Quota exceeded for quota metric"}}`
	c := testClient(&fakeAuth{token: "tok", email: "parent@gmail.com"}, g.srv.URL)

	res := c.Send(context.Background(), testPayload)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Quota exceeded for quota metric" {
		t.Fatalf("error got %q", res.Error)
	}
}

func TestSendStatusFallback(t *testing.T) {
	g := newFakeGmail(t)
	g.status = http.StatusInternalServerError
	g.body = `{}`
	c := testClient(&fakeAuth{token: "tok", email: "parent@gmail.com"}, g.srv.URL)

	res := c.Send(context.Background(), testPayload)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Failed to send (status 500)" {
		t.Fatalf("error got %q", res.Error)
	}
}
