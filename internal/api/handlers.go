package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HealthReport is the body of /health.
type HealthReport struct {
	Status       string    `json:"status"`
	SnapshotID   string    `json:"snapshot_id,omitempty"`
	CollectedAt  time.Time `json:"collected_at,omitempty"`
	FailedGroups []string  `json:"failed_groups,omitempty"`
	ActiveAlerts int       `json:"active_alerts"`
}

// durationParam parses ?duration=, falling back to the retention window.
func (s *Server) durationParam(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("duration")
	if raw == "" {
		return s.source.Config().RetentionDuration, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.sendError(w, http.StatusMethodNotAllowed, "method not allowed: "+r.Method)
}

func (s *Server) handleCurrentSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.source.GetCurrentSnapshot()
	if snap == nil {
		s.sendError(w, http.StatusNotFound, "no snapshot collected yet")
		return
	}
	s.sendData(w, snap)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	d, err := s.durationParam(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	snaps := s.source.GetHistoricalSnapshots(d)
	if snaps == nil {
		snaps = []*monitoring.Snapshot{}
	}
	s.sendData(w, snaps)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if _, _, ok := monitoring.SplitMetricPath(metric); !ok {
		s.sendError(w, http.StatusBadRequest, "metric must be of the form group.metric")
		return
	}

	d, err := s.durationParam(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	s.sendData(w, s.source.GetTrend(d, metric))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.source.GetActiveAlerts()
	if alerts == nil {
		alerts = []monitoring.AlertRecord{}
	}
	s.sendData(w, alerts)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := s.source.AcknowledgeAlert(id)
	switch {
	case errors.Is(err, monitoring.ErrAlertNotFound):
		s.sendError(w, http.StatusNotFound, "alert not found: "+id)
	case err != nil:
		s.logger.Error("Failed to acknowledge alert", zap.String("rule_id", id), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to acknowledge alert")
	default:
		s.sendData(w, map[string]string{"rule_id": id, "status": "acknowledged"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendData(w, s.source.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{ActiveAlerts: len(s.source.GetActiveAlerts())}

	snap := s.source.GetCurrentSnapshot()
	if snap == nil {
		report.Status = "starting"
		s.sendJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    report,
			Error:   "no snapshot collected yet",
			Time:    time.Now(),
		})
		return
	}

	report.SnapshotID = snap.ID()
	report.CollectedAt = snap.Timestamp()
	report.FailedGroups = snap.FailedGroups()

	if len(report.FailedGroups) > 0 {
		report.Status = "degraded"
		s.sendJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    report,
			Error:   "collector groups failed",
			Time:    time.Now(),
		})
		return
	}

	report.Status = "healthy"
	s.sendData(w, report)
}
