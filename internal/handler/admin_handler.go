package handler

import (
	"net/http"

	"qbsync-server/internal/registry"
	"qbsync-server/internal/repository"
	"qbsync-server/internal/service"
	"qbsync-server/pkg/response"

	"github.com/gorilla/mux"
)

// AdminHandler exposes the operator's read-mostly view: session progress,
// snapshot sizes, and a crosswalk reload that picks up edited mapping files
// without a restart.
type AdminHandler struct {
	orchestrator *service.OrchestratorService
	snapshots    repository.SnapshotRepository
	crosswalk    repository.CrosswalkRepository
	registry     *registry.Registry
}

func NewAdminHandler(
	orchestrator *service.OrchestratorService,
	snapshots repository.SnapshotRepository,
	crosswalk repository.CrosswalkRepository,
	reg *registry.Registry,
) *AdminHandler {
	return &AdminHandler{
		orchestrator: orchestrator,
		snapshots:    snapshots,
		crosswalk:    crosswalk,
		registry:     reg,
	}
}

type sessionSummary struct {
	Ticket       string `json:"ticket"`
	Progress     int    `json:"progress"`
	CurrentTask  string `json:"current_task,omitempty"`
	CompanyFile  string `json:"company_file,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.orchestrator.Sessions()
	if err != nil {
		response.InternalError(w, "failed to list sessions")
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summary := sessionSummary{
			Ticket:       s.Ticket,
			Progress:     s.Progress(),
			CompanyFile:  s.CompanyFile,
			LastError:    s.LastError,
			CreatedAt:    s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			LastActivity: s.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
		}
		if task := s.ActiveTask(); task != nil {
			summary.CurrentTask = string(task.EntityType)
		}
		summaries = append(summaries, summary)
	}

	response.Success(w, summaries)
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ticket := mux.Vars(r)["ticket"]

	session, err := h.orchestrator.Session(ticket)
	if err != nil {
		response.NotFound(w, "session not found")
		return
	}

	response.Success(w, session)
}

type snapshotSummary struct {
	EntityType   string `json:"entity_type"`
	Records      int    `json:"records"`
	Placeholders int    `json:"placeholders"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

func (h *AdminHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	summaries := make([]snapshotSummary, 0)
	for _, entityType := range h.registry.Types() {
		summary := snapshotSummary{EntityType: string(entityType)}
		if snapshot, err := h.snapshots.Get(entityType); err == nil {
			summary.Records = len(snapshot.Records)
			summary.Placeholders = len(snapshot.Placeholders())
			if !snapshot.UpdatedAt.IsZero() {
				summary.UpdatedAt = snapshot.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
			}
		}
		summaries = append(summaries, summary)
	}

	response.Success(w, summaries)
}

func (h *AdminHandler) ReloadCrosswalk(w http.ResponseWriter, r *http.Request) {
	if err := h.crosswalk.Reload(); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	response.Success(w, map[string]string{"message": "mappings reloaded"})
}

func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"})
}
