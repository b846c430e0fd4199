package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/monitor"
	"github.com/semmidev/backuppilot/internal/infrastructure/scheduler"
	"github.com/semmidev/backuppilot/internal/usecase"
)

type jobResultResponse struct {
	JobID       uint   `json:"jobId,omitempty"`
	DatabaseID  uint   `json:"databaseId"`
	Database    string `json:"database"`
	Success     bool   `json:"success"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Location    string `json:"location,omitempty"`
	Size        int64  `json:"size"`
	DurationMs  int64  `json:"durationMs"`
	Error       string `json:"error,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

func toJobResult(r usecase.JobResult) jobResultResponse {
	resp := jobResultResponse{
		JobID:       r.JobID,
		DatabaseID:  r.TargetID,
		Database:    r.TargetName,
		Success:     r.Success,
		Placeholder: r.Placeholder,
		Location:    r.Location,
		Size:        r.Size,
		DurationMs:  r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
		resp.Kind = string(domain.KindOf(r.Err))
	}
	return resp
}

type jobResponse struct {
	ID            uint       `json:"id"`
	DatabaseID    uint       `json:"databaseId"`
	DestinationID uint       `json:"destinationId"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	Location      string     `json:"location,omitempty"`
	Size          int64      `json:"size"`
	Log           string     `json:"log,omitempty"`
}

func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (s *Server) manualBackup(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DatabaseID    uint  `json:"databaseId"`
		DestinationID *uint `json:"destinationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if input.DatabaseID == 0 {
		badRequest(w, "databaseId is required")
		return
	}

	res := s.backups.RunBackup(context.WithoutCancel(r.Context()), usecase.BackupRequest{
		TargetID:      input.DatabaseID,
		DestinationID: input.DestinationID,
	})
	if res.Err != nil && res.JobID == 0 {
		writeError(w, res.Err)
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = StatusFor(domain.KindOf(res.Err))
	}
	writeJSON(w, status, toJobResult(res))
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JobFilter{Limit: 50}

	if v := q.Get("databaseId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "invalid databaseId")
			return
		}
		dbID := uint(id)
		filter.DatabaseID = &dbID
	}
	if v := q.Get("destinationId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "invalid destinationId")
			return
		}
		destID := uint(id)
		filter.DestinationID = &destID
	}
	if v := q.Get("status"); v != "" {
		filter.Status = domain.JobStatus(v)
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	jobs, err := s.backups.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobResponse{
			ID:            j.ID,
			DatabaseID:    j.DatabaseID,
			DestinationID: j.DestinationID,
			Status:        string(j.Status),
			StartedAt:     j.StartedAt,
			FinishedAt:    j.FinishedAt,
			Location:      j.Location,
			Size:          j.Size,
			Log:           j.Log,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// downloadBackup streams the artifact of a successful job on a LOCAL
// destination.
func (s *Server) downloadBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "jobId")
	if !ok {
		badRequest(w, "invalid job id")
		return
	}

	artifact, err := s.backups.LocalArtifact(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Open(artifact.Path)
	if err != nil {
		s.logger.Errorf("Failed to open artifact of job %d: %v", id, err)
		writeError(w, domain.Errorf(domain.KindNotFound, "backup file for job %d not found on disk", id))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	http.ServeContent(w, r, artifact.Name, artifact.ModTime, f)
}

func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, errorBody{
		Error: "restore is not implemented",
		Kind:  string(domain.KindUnsupportedKind),
	})
}

func (s *Server) triggerSchedule(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ScheduleID uint `json:"scheduleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if input.ScheduleID == 0 {
		badRequest(w, "scheduleId is required")
		return
	}

	report, err := s.backups.TriggerSchedule(r.Context(), input.ScheduleID)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]jobResultResponse, 0, len(report.Results))
	for _, res := range report.Results {
		results = append(results, toJobResult(res))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduleId": report.ScheduleID,
		"schedule":   report.ScheduleName,
		"message":    report.Message,
		"successful": report.Successful,
		"total":      report.Total,
		"results":    results,
	})
}

type entryResponse struct {
	ScheduleID uint      `json:"scheduleId"`
	Name       string    `json:"name"`
	Cron       string    `json:"cron"`
	Next       time.Time `json:"next"`
}

func statusResponse(st scheduler.Status) map[string]interface{} {
	entries := make([]entryResponse, 0, len(st.Entries))
	for _, e := range st.Entries {
		entries = append(entries, entryResponse{ScheduleID: e.ScheduleID, Name: e.Name, Cron: e.Cron, Next: e.Next})
	}
	return map[string]interface{}{
		"running":     st.Running,
		"activeCount": st.ActiveCount,
		"schedules":   entries,
	}
}

func (s *Server) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(s.scheduler.Status()))
}

// refreshScheduler reconciles every timer and reports the result.
// Registration problems for single schedules are reported alongside the
// status instead of failing the request.
func (s *Server) refreshScheduler(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.ReconcileAll(r.Context())
	body := statusResponse(s.scheduler.Status())
	if err != nil {
		body["warnings"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) reconcileSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid schedule id")
		return
	}
	if err := s.scheduler.ReconcileOne(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(s.scheduler.Status()))
}

func (s *Server) nextRun(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("cron")
	if expr == "" {
		badRequest(w, "cron is required")
		return
	}
	next, err := scheduler.NextRunEstimate(expr, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cron": expr, "valid": true, "next": next})
}

type reachabilityResponse struct {
	DatabaseID uint      `json:"databaseId"`
	Database   string    `json:"database"`
	Engine     string    `json:"engine"`
	Reachable  bool      `json:"reachable"`
	LatencyMs  int64     `json:"latencyMs"`
	CheckedAt  time.Time `json:"checkedAt"`
	Error      string    `json:"error,omitempty"`
}

func toReachability(results []monitor.Reachability) []reachabilityResponse {
	out := make([]reachabilityResponse, 0, len(results))
	for _, res := range results {
		item := reachabilityResponse{
			DatabaseID: res.TargetID,
			Database:   res.TargetName,
			Engine:     string(res.Engine),
			Reachable:  res.Reachable,
			LatencyMs:  res.Latency.Milliseconds(),
			CheckedAt:  res.CheckedAt,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	return out
}

func (s *Server) monitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.monitor.IsRunning(),
		"results": toReachability(s.monitor.LastResults()),
	})
}

// monitorControl accepts {"action": "start" | "stop" | "check"}.
func (s *Server) monitorControl(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	switch input.Action {
	case "start":
		if err := s.monitor.Start(s.monitorInterval); err != nil {
			if !errors.Is(err, monitor.ErrAlreadyRunning) {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: string(domain.KindOf(err))})
			return
		}
	case "stop":
		s.monitor.Stop()
	case "check":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"running": s.monitor.IsRunning(),
			"results": toReachability(s.monitor.CheckOnce(r.Context())),
		})
		return
	default:
		badRequest(w, "action must be start, stop or check")
		return
	}
	s.monitorStatus(w, r)
}

func (s *Server) testStorage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid destination id")
		return
	}

	report := s.backups.DestinationHealth(r.Context(), id)
	if report.Name == "" && report.Err != nil {
		writeError(w, report.Err)
		return
	}

	body := map[string]interface{}{
		"destinationId": report.DestinationID,
		"name":          report.Name,
		"type":          report.Kind,
		"connected":     report.Connected,
		"method":        report.Method,
		"detail":        report.Detail,
	}
	if report.Err != nil {
		body["error"] = report.Err.Error()
		body["kind"] = domain.KindOf(report.Err)
		body["remediation"] = domain.RemediationOf(report.Err)
	}
	writeJSON(w, http.StatusOK, body)
}
