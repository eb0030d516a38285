package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/repo"
)

// defaultRunsLimit — runs в ответе ListRuns по умолчанию.
const defaultRunsLimit = 50

// GetLastRun возвращает последний run с результатами узлов.
// GET /api/v1/run
func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	run := h.status.LastRun()
	if run == nil {
		h.fail(w, http.StatusNotFound, CodeNoRun, "flow has not run yet")
		return
	}
	h.data(w, RunFromDomain(run, true))
}

// ListRuns возвращает сохранённые runs.
// GET /api/v1/runs?flow=...&status=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultRunsLimit, false)
	if err != nil {
		h.fail(w, http.StatusBadRequest, CodeInvalidParam, "%v", err)
		return
	}

	q := r.URL.Query()
	filter := repo.RunFilter{
		FlowName: q.Get("flow"),
		Limit:    limit,
	}
	if status := q.Get("status"); status != "" {
		filter.Status = domain.ParseRunStatus(status)
	}

	runs, err := h.runs.List(r.Context(), filter)
	if err != nil {
		h.internal(w, r, err)
		return
	}

	result := make([]RunResponse, len(runs))
	for i := range runs {
		result[i] = RunFromDomain(&runs[i], false)
	}

	h.list(w, result, len(result))
}

// GetRun возвращает сохранённый run по ID.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, CodeInvalidParam, "invalid run id %q", r.PathValue("id"))
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		h.fail(w, http.StatusNotFound, CodeNotFound, "run %s not found", id)
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}

	h.data(w, RunFromDomain(run, true))
}
