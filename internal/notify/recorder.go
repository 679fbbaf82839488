package notify

import (
	"github.com/rs/zerolog/log"

	"github.com/ayusman/catwatch/internal/alert"
	"github.com/ayusman/catwatch/internal/store"
)

// Recorder writes each alert to the history store.
type Recorder struct {
	alerts *store.AlertRepository
}

// NewRecorder creates a Recorder backed by s.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{alerts: s.Alerts()}
}

// Notify implements alert.Notifier.
func (r *Recorder) Notify(e alert.Event) {
	rec := &store.Alert{
		ID:             e.ID,
		Seq:            e.Seq,
		Detector:       e.Detector,
		Candidates:     len(e.Candidates),
		BestConfidence: e.BestConfidence(),
		SnapshotPath:   e.SnapshotPath,
		SnapshotError:  e.SnapshotErr,
		FiredAt:        e.Time,
	}
	if err := r.alerts.Create(rec); err != nil {
		log.Error().Err(err).Str("alert_id", e.ID).Msg("Failed to record alert")
	}
}
