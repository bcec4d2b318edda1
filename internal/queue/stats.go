package queue

import (
	"fmt"

	"github.com/hibiken/asynq"
)

// LaneInspector abstracts the asynq inspector's queue introspection for
// testability. Production code uses *asynq.Inspector.
type LaneInspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
}

// LaneCounts is the per-state job count snapshot exposed by the status
// endpoint. Broker states map onto the job lifecycle as:
// pending=waiting, active=active, completed=completed, archived=failed
// (permanently failed, retained for operator inspection), and
// scheduled+retry=delayed (parked until their next attempt time).
type LaneCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Stats reads per-lane job counts from the broker.
type Stats struct {
	inspector LaneInspector
}

// NewStats creates a Stats reader over the given inspector.
func NewStats(inspector LaneInspector) *Stats {
	return &Stats{inspector: inspector}
}

// Counts returns the current per-state job counts for the lane.
func (s *Stats) Counts(lane string) (LaneCounts, error) {
	info, err := s.inspector.GetQueueInfo(lane)
	if err != nil {
		return LaneCounts{}, fmt.Errorf("queue: reading counts for lane %s: %w", lane, err)
	}

	return LaneCounts{
		Waiting:   info.Pending,
		Active:    info.Active,
		Completed: info.Completed,
		Failed:    info.Archived,
		Delayed:   info.Scheduled + info.Retry,
	}, nil
}
