package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"beam/internal/modules/job"
	"beam/internal/types"
)

// RedisFeed publishes job status changes on the job's Redis channel so
// requester clients can follow their job live.
type RedisFeed struct {
	redis *redis.Client
	log   zerolog.Logger
}

func NewRedisFeed(redis *redis.Client, log zerolog.Logger) *RedisFeed {
	return &RedisFeed{redis: redis, log: log}
}

func (f *RedisFeed) PublishStatus(ctx context.Context, jobID types.ID, status job.Status) {
	payload, err := json.Marshal(map[string]string{
		"job_id": string(jobID),
		"status": string(status),
		"at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	channel := fmt.Sprintf("job:%s:status", string(jobID))
	if err := f.redis.Publish(ctx, channel, payload).Err(); err != nil {
		f.log.Warn().Err(err).Str("channel", channel).Msg("status publish failed")
	}
}
