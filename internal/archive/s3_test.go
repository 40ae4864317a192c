package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeUploader struct {
	key  string
	body []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	f.key = key
	f.body = body
	return "s3://test/" + key, f.err
}

func TestStoreUploadsSnapshot(t *testing.T) {
	up := &fakeUploader{}
	a := &Archiver{up: up, prefix: "hubsync", log: zap.NewNop().Sugar()}

	a.Store(context.Background(), "sales-summary", map[string]int{"rows": 12})

	if !strings.HasPrefix(up.key, "hubsync/sales-summary/") || !strings.HasSuffix(up.key, ".json") {
		t.Fatalf("key = %q", up.key)
	}
	var snap snapshot
	if err := json.Unmarshal(up.body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.JobKey != "sales-summary" || snap.RunID == "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStoreSwallowsUploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("denied")}
	a := &Archiver{up: up, prefix: "hubsync", log: zap.NewNop().Sugar()}
	a.Store(context.Background(), "sales-summary", nil)
	// no panic, no error surfaced
}

func TestNilArchiverIsNoop(t *testing.T) {
	var a *Archiver
	a.Store(context.Background(), "sales-summary", nil)
}
