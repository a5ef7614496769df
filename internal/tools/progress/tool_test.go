package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gateward/gateward/internal/report"
	"github.com/gateward/gateward/internal/types"
)

func payload(t *testing.T, res *types.ToolResult) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(res.Content[0].Text), &out); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return out
}

func TestProgressRateLimit(t *testing.T) {
	writer := report.NewProgressWriter(t.TempDir())
	tool := New(writer, "run-1")

	base := time.Now()
	clock := base
	tool.now = func() time.Time { return clock }

	exec := func(phase string) map[string]interface{} {
		t.Helper()
		res, err := tool.Execute(context.Background(),
			json.RawMessage(`{"phase":"`+phase+`"}`))
		if err != nil {
			t.Fatal(err)
		}
		return payload(t, res)
	}

	if out := exec("starting"); out["status"] != "accepted" {
		t.Fatalf("t=0 status = %v", out["status"])
	}

	clock = base.Add(10 * time.Second)
	out := exec("too soon")
	if out["status"] != "rate_limited" {
		t.Fatalf("t=10s status = %v", out["status"])
	}
	wantNext := float64(base.Add(RateLimitWindow).UnixMilli())
	if out["nextAllowedAt"] != wantNext {
		t.Errorf("nextAllowedAt = %v, want %v", out["nextAllowedAt"], wantNext)
	}

	clock = base.Add(30*time.Second + time.Millisecond)
	if out := exec("after window"); out["status"] != "accepted" {
		t.Fatalf("t=30.001s status = %v", out["status"])
	}

	writer.Close()
	recs, err := writer.ReadAll("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(recs))
	}
	if recs[0].Phase != "starting" || recs[1].Phase != "after window" {
		t.Errorf("persisted %+v", recs)
	}
}

func TestProgressRecordFields(t *testing.T) {
	writer := report.NewProgressWriter(t.TempDir())
	tool := New(writer, "run-2")

	res, err := tool.Execute(context.Background(), json.RawMessage(
		`{"phase":"indexing","percentComplete":40,"level":"info","metrics":{"files":12}}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content[0].Text)
	}

	writer.Close()
	recs, err := writer.ReadAll("run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	rec := recs[0]
	if rec.Phase != "indexing" || rec.Level != "info" || rec.UpdatedAt == 0 {
		t.Errorf("record = %+v", rec)
	}
	if rec.PercentComplete == nil || *rec.PercentComplete != 40 {
		t.Errorf("percentComplete = %v", rec.PercentComplete)
	}
	if rec.Metrics["files"] != float64(12) {
		t.Errorf("metrics = %v", rec.Metrics)
	}
}

func TestProgressValidation(t *testing.T) {
	tool := New(report.NewProgressWriter(t.TempDir()), "run-1")

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("empty phase should be a tool error")
	}

	res, err = tool.Execute(context.Background(),
		json.RawMessage(`{"phase":"x","percentComplete":140}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("percentComplete over 100 should be a tool error")
	}

	res, err = tool.Execute(context.Background(),
		json.RawMessage(`{"phase":"x","percentComplete":-1}`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("negative percentComplete should be a tool error")
	}
}
