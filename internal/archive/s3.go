package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Archiver writes one JSON snapshot per successful engine run so the
// dashboard numbers can be audited after the tables get overwritten. A
// nil Archiver, or one built without a bucket, is a silent no-op.
type Archiver struct {
	up     uploader
	prefix string
	log    *zap.SugaredLogger
}

// New builds an archiver. An empty bucket disables archiving.
func New(ctx context.Context, bucket, prefix string, log *zap.SugaredLogger) (*Archiver, error) {
	if bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &Archiver{
		up:     &s3Uploader{client: client, bucket: bucket},
		prefix: prefix,
		log:    log,
	}, nil
}

type snapshot struct {
	JobKey     string    `json:"job_key"`
	RunID      string    `json:"run_id"`
	ArchivedAt time.Time `json:"archived_at"`
	Payload    any       `json:"payload"`
}

// Store uploads one run's output. Best effort: failures are logged and
// never fail the run that produced the data.
func (a *Archiver) Store(ctx context.Context, jobKey string, payload any) {
	if a == nil {
		return
	}
	runID := uuid.NewString()
	body, err := json.Marshal(snapshot{
		JobKey:     jobKey,
		RunID:      runID,
		ArchivedAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		a.log.Warnw("snapshot marshal failed", "job_key", jobKey, "error", err)
		return
	}

	key := fmt.Sprintf("%s/%s/%s/%s.json", a.prefix, jobKey, time.Now().UTC().Format("2006/01/02"), runID)
	loc, err := a.up.Upload(ctx, key, body, "application/json")
	if err != nil {
		a.log.Warnw("snapshot upload failed", "job_key", jobKey, "key", key, "error", err)
		return
	}
	a.log.Infow("run snapshot archived", "job_key", jobKey, "location", loc)
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
