package progress

import (
	"context"
	"testing"
)

type recordingUpdater struct {
	jobID      int64
	message    string
	percentage *int
	calls      int
}

func (u *recordingUpdater) UpdateProgress(_ context.Context, id int64, message string, percentage *int) error {
	u.jobID = id
	u.message = message
	u.percentage = percentage
	u.calls++
	return nil
}

func TestResolveJobIDOrder(t *testing.T) {
	t.Setenv(EnvJobID, "30")

	if got := ResolveJobID(10, "20"); got != 10 {
		t.Fatalf("explicit id should win, got %d", got)
	}
	if got := ResolveJobID(0, "20"); got != 20 {
		t.Fatalf("flag should beat env, got %d", got)
	}
	if got := ResolveJobID(0, ""); got != 30 {
		t.Fatalf("env should be the fallback, got %d", got)
	}

	t.Setenv(EnvJobID, "")
	if got := ResolveJobID(0, ""); got != 0 {
		t.Fatalf("expected zero with nothing set, got %d", got)
	}
	if got := ResolveJobID(0, "not-a-number"); got != 0 {
		t.Fatalf("garbage flag value should resolve to zero, got %d", got)
	}
}

func TestReporterNoopWithoutJobID(t *testing.T) {
	u := &recordingUpdater{}
	r := New(u, 0, nil)
	if r.Enabled() {
		t.Fatalf("reporter with job id 0 should be disabled")
	}
	r.Report(context.Background(), "halfway", 50)
	if u.calls != 0 {
		t.Fatalf("disabled reporter must not call the updater")
	}
}

func TestReporterWrites(t *testing.T) {
	u := &recordingUpdater{}
	r := New(u, 7, nil)
	r.Report(context.Background(), "processing deals", 40)
	if u.calls != 1 || u.jobID != 7 || u.message != "processing deals" {
		t.Fatalf("unexpected update: %+v", u)
	}
	if u.percentage == nil || *u.percentage != 40 {
		t.Fatalf("expected percentage 40, got %v", u.percentage)
	}

	r.ReportMessage(context.Background(), "wrapping up")
	if u.calls != 2 || u.percentage != nil {
		t.Fatalf("message-only update should clear percentage pointer: %+v", u)
	}
}
