package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shaiso/sdtmflow/internal/domain"
)

func TestURL(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	if got := URL(""); got != DefaultURL {
		t.Errorf("URL(\"\") = %q, want default", got)
	}

	t.Setenv("AMQP_URL", "amqp://env:5672/")
	if got := URL(""); got != "amqp://env:5672/" {
		t.Errorf("URL from env = %q", got)
	}
	if got := URL("amqp://flag:5672/"); got != "amqp://flag:5672/" {
		t.Errorf("explicit URL = %q", got)
	}
}

func TestRoutingKeyFor(t *testing.T) {
	tests := []struct {
		status domain.RunStatus
		want   RoutingKey
	}{
		{domain.RunStatusSucceeded, RoutingKeyRunSucceeded},
		{domain.RunStatusFailed, RoutingKeyRunFailed},
		{domain.RunStatusCancelled, RoutingKeyRunCancelled},
		{domain.RunStatusRunning, RoutingKeyRunFailed},
	}

	for _, tt := range tests {
		if got := RoutingKeyFor(tt.status); got != tt.want {
			t.Errorf("RoutingKeyFor(%s) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestNewRunFinishedPayload(t *testing.T) {
	run := domain.NewRun("dm")
	run.FlowVersion = 3
	run.Nodes = []domain.NodeResult{
		{NodeID: "src", Kind: domain.KindSource, Status: domain.NodeStatusSucceeded, Rows: 2},
		{NodeID: "flt", Title: "Adults", Kind: domain.KindFilter, Status: domain.NodeStatusFailed,
			Category: "data", Error: "column AGE not found"},
	}
	finished := run.StartedAt.Add(1500 * time.Millisecond)
	run.FinishedAt = &finished
	run.Status = domain.RunStatusFailed

	p := NewRunFinishedPayload(run)

	if p.RunID != run.ID || p.FlowName != "dm" || p.FlowVersion != 3 {
		t.Errorf("identity fields mismatch: %+v", p)
	}
	if p.Status != domain.RunStatusFailed {
		t.Errorf("Status = %s", p.Status)
	}
	if p.Nodes != 2 {
		t.Errorf("Nodes = %d, want 2", p.Nodes)
	}
	if p.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", p.DurationMS)
	}
	if len(p.Failed) != 1 || p.Failed[0].NodeID != "flt" || p.Failed[0].Category != "data" {
		t.Errorf("Failed = %+v", p.Failed)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	run := domain.NewRun("dm")
	run.Finish()

	msg, err := NewMessage(MessageTypeRunFinished, NewRunFinishedPayload(run))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Errorf("message should have ID and timestamp: %+v", msg)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	p, err := ParsePayload[RunFinishedPayload](&decoded)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.RunID != run.ID || p.Status != domain.RunStatusSucceeded {
		t.Errorf("payload = %+v", p)
	}
}

func TestParsePayload_Invalid(t *testing.T) {
	msg := &Message{Type: MessageTypeRunFinished, Payload: json.RawMessage(`"not an object"`)}
	if _, err := ParsePayload[RunFinishedPayload](msg); err == nil {
		t.Error("expected error for invalid payload")
	}
}
