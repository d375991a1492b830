package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prudhvinik1/crmsync/internal/crm"
	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/prudhvinik1/crmsync/internal/orchestrator"
	"github.com/prudhvinik1/crmsync/internal/repositories"
	"github.com/prudhvinik1/crmsync/internal/services"
	"github.com/prudhvinik1/crmsync/internal/utils"
)

// DefinitionLookup resolves the sync definition of a local type.
type DefinitionLookup func(localType string) *models.SyncDefinition

// SyncHandler is the HTTP trigger for sync requests.
type SyncHandler struct {
	sync        *services.SyncService
	definitions DefinitionLookup
	lookups     repositories.KeyLookupRepository
	status      repositories.SyncStatusRepository
	keyFormat   string
	log         *logging.Logger
}

// NewSyncHandler builds the handler. status may be nil when no Redis is
// configured. keyFormat is the local primary key format used to normalize
// ids in status lookups.
func NewSyncHandler(
	sync *services.SyncService,
	definitions DefinitionLookup,
	lookups repositories.KeyLookupRepository,
	status repositories.SyncStatusRepository,
	keyFormat string,
	log *logging.Logger,
) *SyncHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &SyncHandler{
		sync:        sync,
		definitions: definitions,
		lookups:     lookups,
		status:      status,
		keyFormat:   keyFormat,
		log:         log,
	}
}

// SyncRequest is the body of POST /v1/sync.
type SyncRequest struct {
	Record       *models.RecordEnvelope `json:"record"`
	Actions      []string               `json:"actions"`
	Associate    *bool                  `json:"associate"`
	Environments []string               `json:"environments"`
	Providers    []string               `json:"providers"`
	HardDelete   bool                   `json:"hard_delete"`
}

// StatusResponse is the body of GET /v1/sync/status/{type}/{id}.
type StatusResponse struct {
	LocalType string                      `json:"local_type"`
	LocalID   string                      `json:"local_id"`
	Lookups   []*models.ExternalKeyLookup `json:"lookups"`
	Statuses  []models.SyncStatus         `json:"statuses,omitempty"`
}

// Routes mounts the sync endpoints on r.
func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/sync", h.Sync)
	r.Get("/sync/status/{type}/{id}", h.Status)
}

func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Record == nil || req.Record.Type == "" || req.Record.ID == "" {
		writeError(w, http.StatusBadRequest, "record type and id are required")
		return
	}

	actions, err := orchestrator.ParseActions(req.Actions...)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts []services.SyncOption
	if req.Associate != nil && !*req.Associate {
		opts = append(opts, services.WithoutAssociations())
	}
	if len(req.Environments) > 0 {
		opts = append(opts, services.WithEnvironments(req.Environments...))
	}
	if len(req.Providers) > 0 {
		opts = append(opts, services.WithProviders(req.Providers...))
	}
	if req.HardDelete {
		opts = append(opts, services.HardDelete())
	}

	record := req.Record.ToRecord(h.definitions)
	report, err := h.sync.Sync(r.Context(), record, actions, opts...)
	if err != nil {
		h.log.Error(logging.LevelHigh, "sync request rejected", "client", ClientFromContext(r.Context()), "error", err)
		status := http.StatusInternalServerError
		if crm.IsFatal(err) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(crm.CodeOf(err))})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	localType := chi.URLParam(r, "type")
	localID, err := utils.NormalizeLocalID(h.keyFormat, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lookups, err := h.lookups.ListByLocal(r.Context(), localType, localID)
	if err != nil {
		h.log.Error(logging.LevelHigh, "failed to list lookups", "local_type", localType, "local_id", localID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list lookups")
		return
	}
	if lookups == nil {
		lookups = []*models.ExternalKeyLookup{}
	}

	resp := StatusResponse{LocalType: localType, LocalID: localID, Lookups: lookups}
	if h.status != nil {
		statuses, err := h.status.GetStatuses(r.Context(), localType, localID)
		if err != nil {
			h.log.Warn(logging.LevelMid, "failed to read sync statuses", "local_type", localType, "local_id", localID, "error", err)
		}
		resp.Statuses = statuses
	}

	writeJSON(w, http.StatusOK, resp)
}
