package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorCode — машинно-читаемый код ошибки в ответе.
type ErrorCode string

const (
	CodeInvalidParam ErrorCode = "INVALID_PARAM"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeNoRun        ErrorCode = "NO_RUN"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// Envelope — общий формат всех JSON-ответов.
// Заполнено либо Data (и Total для списков), либо Error.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Total *int      `json:"total,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError — ошибка в ответе.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// respond пишет конверт с указанным HTTP-статусом.
func (h *Handler) respond(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Заголовок уже отправлен, остаётся только записать в лог
		h.logger.Debug("failed to write response", "error", err)
	}
}

func (h *Handler) data(w http.ResponseWriter, v any) {
	h.respond(w, http.StatusOK, Envelope{Data: v})
}

func (h *Handler) list(w http.ResponseWriter, items any, total int) {
	h.respond(w, http.StatusOK, Envelope{Data: items, Total: &total})
}

func (h *Handler) fail(w http.ResponseWriter, status int, code ErrorCode, format string, args ...any) {
	h.respond(w, status, Envelope{Error: &APIError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}})
}

// internal пишет ошибку в лог и отвечает 500 без подробностей.
func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("status api request failed", "path", r.URL.Path, "error", err)
	h.fail(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// queryLimit читает параметр limit. Отсутствующий параметр даёт def.
// Ноль допустим только при allowZero.
func queryLimit(r *http.Request, def int, allowZero bool) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}
