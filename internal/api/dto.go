package api

import (
	"time"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
	"github.com/shaiso/sdtmflow/internal/table"
)

// RunResponse — сводка run.
type RunResponse struct {
	ID          string       `json:"id"`
	FlowName    string       `json:"flow_name,omitempty"`
	FlowVersion int          `json:"flow_version,omitempty"`
	Status      string       `json:"status"`
	Nodes       int          `json:"nodes"`
	Failed      int          `json:"failed"`
	StartedAt   string       `json:"started_at"`
	FinishedAt  string       `json:"finished_at,omitempty"`
	DurationMS  int64        `json:"duration_ms"`
	Error       string       `json:"error,omitempty"`
	Results     []NodeResult `json:"results,omitempty"`
}

// NodeResult — результат узла в run.
type NodeResult struct {
	NodeID     string `json:"node_id"`
	Title      string `json:"title,omitempty"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Cached     bool   `json:"cached"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	Category   string `json:"category,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
// withNodes добавляет результаты узлов.
func RunFromDomain(run *domain.Run, withNodes bool) RunResponse {
	resp := RunResponse{
		ID:          run.ID.String(),
		FlowName:    run.FlowName,
		FlowVersion: run.FlowVersion,
		Status:      string(run.Status),
		Nodes:       len(run.Nodes),
		Failed:      len(run.Failed()),
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		DurationMS:  run.Duration().Milliseconds(),
		Error:       run.Error,
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	if withNodes {
		resp.Results = make([]NodeResult, len(run.Nodes))
		for i, n := range run.Nodes {
			resp.Results[i] = NodeResultFromDomain(n)
		}
	}
	return resp
}

// NodeResultFromDomain конвертирует domain.NodeResult в NodeResult.
func NodeResultFromDomain(n domain.NodeResult) NodeResult {
	return NodeResult{
		NodeID:     n.NodeID,
		Title:      n.Title,
		Kind:       string(n.Kind),
		Status:     string(n.Status),
		Cached:     n.Cached,
		Rows:       n.Rows,
		Columns:    n.Columns,
		Category:   n.Category,
		Error:      n.Error,
		DurationMS: n.Duration.Milliseconds(),
	}
}

// DatasetResponse — результат узла.
// Rows — полное число строк, Data может быть усечён до limit.
type DatasetResponse struct {
	NodeID    string         `json:"node_id"`
	Rows      int            `json:"rows"`
	Columns   int            `json:"columns"`
	Truncated bool           `json:"truncated"`
	Data      *table.Dataset `json:"data"`
}

// FailureResponse — ошибка узла.
type FailureResponse struct {
	NodeID   string `json:"node_id"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// FailureFromEngine конвертирует engine.Failure в FailureResponse.
func FailureFromEngine(id string, f *engine.Failure) FailureResponse {
	return FailureResponse{
		NodeID:   id,
		Category: string(f.Category),
		Message:  f.Message,
	}
}
