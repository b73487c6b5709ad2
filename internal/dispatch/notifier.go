package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"beam/internal/modules/beaming"
	"beam/internal/types"
)

// LogNotifier records offers in the log. Useful for development and as a
// fallback when no realtime channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyCandidate(_ context.Context, courierID types.ID, offer beaming.Offer) {
	n.log.Info().
		Str("courier_id", string(courierID)).
		Str("job_id", string(offer.JobID)).
		Float64("distance_m", offer.DistanceM).
		Msg("job offer")
}

// Fanout delivers each offer through every configured notifier.
type Fanout []beaming.Notifier

func (f Fanout) NotifyCandidate(ctx context.Context, courierID types.ID, offer beaming.Offer) {
	for _, n := range f {
		n.NotifyCandidate(ctx, courierID, offer)
	}
}
