package api

import (
	"net/http"
)

// defaultResultLimit — строк в ответе GetNodeResult по умолчанию.
const defaultResultLimit = 100

// ListNodes возвращает результаты узлов последнего run.
// GET /api/v1/nodes
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	run := h.status.LastRun()
	if run == nil {
		h.list(w, []NodeResult{}, 0)
		return
	}

	result := make([]NodeResult, len(run.Nodes))
	for i, n := range run.Nodes {
		result[i] = NodeResultFromDomain(n)
	}
	h.list(w, result, len(result))
}

// GetNodeResult возвращает dataset узла.
// GET /api/v1/nodes/{id}/result?limit=... (limit=0 — все строки)
func (h *Handler) GetNodeResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit, err := queryLimit(r, defaultResultLimit, true)
	if err != nil {
		h.fail(w, http.StatusBadRequest, CodeInvalidParam, "%v", err)
		return
	}

	data, ok := h.status.Result(id)
	if !ok {
		h.fail(w, http.StatusNotFound, CodeNotFound, "node %s has no result", id)
		return
	}

	resp := DatasetResponse{
		NodeID:  id,
		Rows:    data.NumRows(),
		Columns: data.NumColumns(),
		Data:    data,
	}
	if limit > 0 && data.NumRows() > limit {
		resp.Data = data.Filter(func(row int) bool { return row < limit })
		resp.Truncated = true
	}

	h.data(w, resp)
}

// GetNodeError возвращает ошибку последнего выполнения узла.
// GET /api/v1/nodes/{id}/error
func (h *Handler) GetNodeError(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f, ok := h.status.Failure(id)
	if !ok {
		h.fail(w, http.StatusNotFound, CodeNotFound, "node %s has no error", id)
		return
	}
	h.data(w, FailureFromEngine(id, f))
}

// GetCacheInfo возвращает состояние кэша результатов.
// GET /api/v1/cache
func (h *Handler) GetCacheInfo(w http.ResponseWriter, r *http.Request) {
	h.data(w, h.status.CacheInfo())
}
