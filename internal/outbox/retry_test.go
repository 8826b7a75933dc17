package outbox

import (
	"context"
	"testing"

	"capsulemail/internal/gmail"
	"capsulemail/internal/model"
)

type fakeSender struct {
	result   gmail.SendResult
	calls    int
	payloads []model.EmailPayload
	onSend   func() // runs while the send is in flight
}

func (f *fakeSender) Send(ctx context.Context, p model.EmailPayload) gmail.SendResult {
	f.calls++
	f.payloads = append(f.payloads, p)
	if f.onSend != nil {
		f.onSend()
	}
	return f.result
}

// fakeChecker treats listed URIs as existing.
type fakeChecker map[string]bool

func (f fakeChecker) Exists(uri string) bool { return f[uri] }

type offline struct{}

func (offline) Online(ctx context.Context) bool { return false }

func testRetrier(t *testing.T, sender *fakeSender, files fakeChecker) (*Retrier, *Store) {
	t.Helper()
	s := testStore(t)
	r := NewRetrier(s, sender, NewValidator(files), AlwaysOnline{})
	return r, s
}

func TestRetryEntrySuccessRemoves(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	r, s := testRetrier(t, sender, fakeChecker{"file:///cache/a.jpg": true})

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusFailed)
	e.PhotoURIs = []string{"file:///cache/a.jpg"}
	s.Add(ctx, e)

	res, err := r.RetryEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("RetryEntry: %v", err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome got %v", res.Outcome)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls got %d", sender.calls)
	}
	p := sender.payloads[0]
	if p.To != e.ChildEmail || p.Subject != e.Subject || p.Body != e.Body {
		t.Fatalf("payload not built from frozen fields: %+v", p)
	}

	count, _ := s.PendingCount(ctx)
	if count != 0 {
		t.Fatalf("pending count got %d want 0 after successful send", count)
	}
}

func TestRetryEntryFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Error: "Quota exceeded"}}
	r, s := testRetrier(t, sender, fakeChecker{})

	s.Add(ctx, entry("e1", "2026-08-01T10:00:00Z", model.StatusPending))

	res, err := r.RetryEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("RetryEntry: %v", err)
	}
	if res.Outcome != OutcomeFailed || res.Error != "Quota exceeded" {
		t.Fatalf("result got %+v", res)
	}
	got, _ := s.Get(ctx, "e1")
	if got.Status != model.StatusFailed || got.ErrorMessage != "Quota exceeded" {
		t.Fatalf("entry got %+v", got)
	}
}

func TestRetryEntryExpiredPhotoSkipsSend(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	r, s := testRetrier(t, sender, fakeChecker{"file:///cache/ok.jpg": true})

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusPending)
	e.PhotoURIs = []string{"file:///cache/ok.jpg", "file:///cache/purged.jpg"}
	s.Add(ctx, e)

	res, err := r.RetryEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("RetryEntry: %v", err)
	}
	if res.Outcome != OutcomePhotoExpired {
		t.Fatalf("outcome got %v", res.Outcome)
	}
	if sender.calls != 0 {
		t.Fatalf("send must not be attempted, got %d calls", sender.calls)
	}
	got, _ := s.Get(ctx, "e1")
	if got.Status != model.StatusFailed {
		t.Fatalf("status got %q", got.Status)
	}
	if got.ErrorMessage != "Photo expired. Please re-select the photo." {
		t.Fatalf("message got %q", got.ErrorMessage)
	}
}

func TestAutoRetryPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	r, s := testRetrier(t, sender, fakeChecker{})

	s.Add(ctx, entry("newest", "2026-08-03T10:00:00Z", model.StatusFailed))
	s.Add(ctx, entry("oldest", "2026-08-01T10:00:00Z", model.StatusPending))
	s.Add(ctx, entry("sending", "2026-08-02T10:00:00Z", model.StatusSending))

	report, err := r.AutoRetryPending(ctx)
	if err != nil {
		t.Fatalf("AutoRetryPending: %v", err)
	}
	if report.Attempted != 2 || report.Succeeded != 2 || report.Failed != 0 {
		t.Fatalf("report got %+v", report)
	}
	if len(sender.payloads) != 2 {
		t.Fatalf("payloads got %d", len(sender.payloads))
	}
	if sender.payloads[0].Body != "Day 12 • Age 2 months\n\nnote oldest\n\n#timecapsule" {
		t.Fatalf("first attempt was not the oldest entry: %q", sender.payloads[0].Body)
	}

	// The in-flight entry must be left alone.
	if _, err := s.Get(ctx, "sending"); err != nil {
		t.Fatalf("sending entry disturbed: %v", err)
	}
}

func TestRetryEntryClearsErrorBeforeSend(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	r, s := testRetrier(t, sender, fakeChecker{})

	e := entry("e1", "2026-08-01T10:00:00Z", model.StatusFailed)
	e.ErrorMessage = "Quota exceeded"
	s.Add(ctx, e)

	var midStatus model.Status
	var midError string
	sender.onSend = func() {
		got, err := s.Get(ctx, "e1")
		if err != nil {
			t.Fatalf("Get mid-send: %v", err)
		}
		midStatus, midError = got.Status, got.ErrorMessage
	}

	if _, err := r.RetryEntry(ctx, "e1"); err != nil {
		t.Fatalf("RetryEntry: %v", err)
	}
	if midStatus != model.StatusSending {
		t.Fatalf("status during send got %q want %q", midStatus, model.StatusSending)
	}
	if midError != "" {
		t.Fatalf("stale error not cleared before send: %q", midError)
	}
}

func TestAutoRetryPendingSkipsEntryTakenInFlight(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	r, s := testRetrier(t, sender, fakeChecker{})

	s.Add(ctx, entry("a", "2026-08-01T10:00:00Z", model.StatusPending))
	s.Add(ctx, entry("b", "2026-08-02T10:00:00Z", model.StatusFailed))

	// While the first entry is on the wire, something else (a manual retry)
	// puts the second one in flight. The batch must not touch it again.
	sender.onSend = func() {
		sender.onSend = nil
		sending := model.StatusSending
		if err := s.Update(ctx, "b", Patch{Status: &sending}); err != nil {
			t.Fatalf("mark b sending: %v", err)
		}
	}

	report, err := r.AutoRetryPending(ctx)
	if err != nil {
		t.Fatalf("AutoRetryPending: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("in-flight entry was re-attempted: %d sends", sender.calls)
	}
	if report.Attempted != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("report got %+v", report)
	}
	got, _ := s.Get(ctx, "b")
	if got.Status != model.StatusSending {
		t.Fatalf("in-flight entry disturbed: %+v", got)
	}
}

func TestAutoRetryPendingMixedOutcomes(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Error: "Failed to send (status 500)"}}
	r, s := testRetrier(t, sender, fakeChecker{})

	s.Add(ctx, entry("a", "2026-08-01T10:00:00Z", model.StatusPending))
	s.Add(ctx, entry("b", "2026-08-02T10:00:00Z", model.StatusFailed))

	report, err := r.AutoRetryPending(ctx)
	if err != nil {
		t.Fatalf("AutoRetryPending: %v", err)
	}
	if report.Attempted != 2 || report.Succeeded != 0 || report.Failed != 2 {
		t.Fatalf("report got %+v", report)
	}
	count, _ := s.PendingCount(ctx)
	if count != 2 {
		t.Fatalf("pending count got %d want 2", count)
	}
}

func TestAutoRetryPendingOffline(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{result: gmail.SendResult{Success: true}}
	s := testStore(t)
	r := NewRetrier(s, sender, NewValidator(fakeChecker{}), offline{})

	s.Add(ctx, entry("e1", "2026-08-01T10:00:00Z", model.StatusFailed))

	report, err := r.AutoRetryPending(ctx)
	if err != nil {
		t.Fatalf("AutoRetryPending: %v", err)
	}
	if report != (model.RetryReport{}) {
		t.Fatalf("offline report must be zero, got %+v", report)
	}
	if sender.calls != 0 {
		t.Fatalf("no sends while offline, got %d", sender.calls)
	}
	got, _ := s.Get(ctx, "e1")
	if got.Status != model.StatusFailed || got.ErrorMessage != "" {
		t.Fatalf("offline pass must not touch entries: %+v", got)
	}
}
