package loadtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func smallConfig() Config {
	return Config{
		Keys:         5,
		EditsPerKey:  10,
		EditInterval: 5 * time.Millisecond,
		Debounce:     40 * time.Millisecond,
		WriteLatency: 10 * time.Millisecond,
		ReadLatency:  time.Millisecond,
		Seed:         1,
	}
}

func TestRun_OneFilePerKeyAndLastEditWins(t *testing.T) {
	res, err := Run(context.Background(), smallConfig())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if err := res.Verify(); err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if len(res.FilesPerKey) != 5 {
		t.Errorf("FilesPerKey has %d keys, want 5", len(res.FilesPerKey))
	}
	if res.Creates != 5 {
		t.Errorf("Creates = %d, want one per key", res.Creates)
	}
	if res.Edits != 50 {
		t.Errorf("Edits = %d, want 50", res.Edits)
	}
	if res.RemoteWrites >= res.Edits {
		t.Errorf("RemoteWrites = %d for %d edits, expected debouncing to coalesce", res.RemoteWrites, res.Edits)
	}
	if res.Write.Samples != res.RemoteWrites {
		t.Errorf("write samples = %d, want %d", res.Write.Samples, res.RemoteWrites)
	}
	if res.Write.Min < 10*time.Millisecond {
		t.Errorf("write latency min = %v, below the injected latency", res.Write.Min)
	}
}

func TestRun_WithTasks(t *testing.T) {
	cfg := smallConfig()
	cfg.Keys = 2
	cfg.Tasks = true
	res, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if err := res.Verify(); err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if res.FilesPerKey["tasks"] != 1 {
		t.Errorf("tasks.json files = %d, want 1", res.FilesPerKey["tasks"])
	}
	if res.Edits != 30 {
		t.Errorf("Edits = %d, want 30", res.Edits)
	}
}

func TestRun_RejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Keys: 0, EditsPerKey: 1},
		{Keys: 1, EditsPerKey: 0},
		{Keys: 400, EditsPerKey: 1},
	} {
		if _, err := Run(context.Background(), cfg); err == nil {
			t.Errorf("Run(%+v) succeeded, want error", cfg)
		}
	}
}

func TestResult_VerifyReportsDuplicates(t *testing.T) {
	r := &Result{FilesPerKey: map[string]int{"journal/2024-01-01": 1, "journal/2024-01-02": 2}}
	if err := r.Verify(); err == nil || !strings.Contains(err.Error(), "2024-01-02") {
		t.Errorf("Verify() = %v, want duplicate error naming 2024-01-02", err)
	}

	r = &Result{FilesPerKey: map[string]int{"journal/2024-01-01": 1}, Lost: []string{"journal/2024-01-01"}}
	if err := r.Verify(); err == nil {
		t.Error("Verify() = nil with a lost edit")
	}
}

func TestComputeLatencyStats(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	s := computeLatencyStats(ds)
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("min/max = %v/%v", s.Min, s.Max)
	}
	if s.P50 != 51*time.Millisecond || s.P95 != 96*time.Millisecond || s.P99 != 100*time.Millisecond {
		t.Errorf("p50/p95/p99 = %v/%v/%v", s.P50, s.P95, s.P99)
	}
	if s.Mean != 50500*time.Microsecond {
		t.Errorf("mean = %v, want 50.5ms", s.Mean)
	}
	if empty := computeLatencyStats(nil); empty.Samples != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestResult_Print(t *testing.T) {
	res, err := Run(context.Background(), smallConfig())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	var buf bytes.Buffer
	res.Print(&buf)
	out := buf.String()
	for _, want := range []string{"Edits:          50", "one file per entity", "Remote write latency"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
