package jetstream

import (
	"context"
	"workshop-enrollment/common/constant"

	"github.com/nats-io/nats.go/jetstream"
)

// CreateQueueStream declares the work-queue stream every consumer reads from.
// maxBytes <= 0 leaves the stream unbounded.
func CreateQueueStream(ctx context.Context, js jetstream.JetStream, maxBytes int64) (jetstream.Stream, error) {
	if maxBytes <= 0 {
		maxBytes = -1
	}

	cfg := jetstream.StreamConfig{
		Name:      constant.QueueStreamName,
		Retention: jetstream.WorkQueuePolicy,
		Subjects:  []string{constant.AllWildcard},
		MaxBytes:  maxBytes,
	}

	return js.CreateOrUpdateStream(ctx, cfg)
}
