package cron

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	return NewJobStore(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestJobStoreAddGetRemove(t *testing.T) {
	store := newTestStore(t)

	job := &Job{
		ID:       "job-1",
		Name:     "test-job",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
		Payload:  Payload{Kind: PayloadKindReminder, Text: "hello"},
	}
	if err := store.Add(job); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, ok := store.Get("job-1")
	if !ok {
		t.Fatal("Job 'job-1' should exist")
	}
	if got.Name != "test-job" {
		t.Errorf("Expected Name 'test-job', got '%s'", got.Name)
	}

	if err := store.Remove("job-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := store.Get("job-1"); ok {
		t.Error("Job should be gone after Remove")
	}
	if err := store.Remove("job-1"); err == nil {
		t.Error("Expected error removing missing job")
	}
}

func TestJobStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	store := NewJobStore(path)
	job := &Job{
		ID:       "job-persist",
		Name:     "persisted",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindCron, Expr: "0 * * * *"},
		Payload:  Payload{Kind: PayloadKindReminder, Text: "tick"},
	}
	if err := store.Add(job); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// A fresh store on the same path sees the job
	reloaded := NewJobStore(path)
	got, ok := reloaded.Get("job-persist")
	if !ok {
		t.Fatal("Job should survive reload")
	}
	if got.Schedule.Expr != "0 * * * *" {
		t.Errorf("Unexpected schedule expr: %s", got.Schedule.Expr)
	}
}

func TestGetDueJobsSkipsRunning(t *testing.T) {
	store := newTestStore(t)
	past := time.Now().Add(-time.Minute).UnixMilli()

	due := &Job{
		ID:       "due",
		Name:     "due-job",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
	}
	due.State.NextRunAtMs = past
	_ = store.Add(due)

	busy := &Job{
		ID:       "busy",
		Name:     "busy-job",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
	}
	busy.State.NextRunAtMs = past
	busy.State.LastStatus = "running"
	_ = store.Add(busy)

	got := store.GetDueJobs()
	if len(got) != 1 {
		t.Fatalf("Expected 1 due job, got %d", len(got))
	}
	if got[0].ID != "due" {
		t.Errorf("A job marked running must not be returned as due, got %s", got[0].ID)
	}
}

func TestCalculateNextRunAt(t *testing.T) {
	store := newTestStore(t)

	future := time.Now().Add(1 * time.Hour).UTC().Format(time.RFC3339)
	job := &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindAt, At: future}}
	next := store.CalculateNextRun(job)
	if next <= time.Now().UnixMilli() {
		t.Errorf("Expected future next run, got %d", next)
	}

	// Past "at" times do not reschedule
	past := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
	job = &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindAt, At: past}}
	if next := store.CalculateNextRun(job); next != 0 {
		t.Errorf("Expected 0 for past 'at' schedule, got %d", next)
	}

	// Missing timestamp
	job = &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindAt}}
	if next := store.CalculateNextRun(job); next != 0 {
		t.Errorf("Expected 0 for empty 'at', got %d", next)
	}
}

func TestCalculateNextRunEvery(t *testing.T) {
	store := newTestStore(t)

	job := &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 5 * 60 * 1000}}
	now := time.Now().UnixMilli()
	next := store.CalculateNextRun(job)
	if next <= now {
		t.Errorf("Expected next run after now, got %d", next)
	}
	if next > now+6*60*1000 {
		t.Errorf("Next run too far out: %d", next)
	}

	job = &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 0}}
	if next := store.CalculateNextRun(job); next != 0 {
		t.Errorf("Expected 0 for zero interval, got %d", next)
	}
}

func TestCalculateNextRunCron(t *testing.T) {
	store := newTestStore(t)

	// Hourly: next run within the next hour
	job := &Job{ID: "j", Schedule: Schedule{Kind: ScheduleKindCron, Expr: "0 * * * *"}}
	now := time.Now()
	next := store.CalculateNextRun(job)
	if next <= now.UnixMilli() {
		t.Errorf("Expected future next run, got %d", next)
	}
	if next > now.Add(61*time.Minute).UnixMilli() {
		t.Errorf("Hourly next run more than an hour out: %d", next)
	}
	at := time.UnixMilli(next)
	if at.Minute() != 0 {
		t.Errorf("Hourly run should land on minute 0, got %d", at.Minute())
	}
}

func TestCreateJobFromMap(t *testing.T) {
	job, err := CreateJobFromMap(map[string]interface{}{
		"name": "nightly-digest",
		"schedule": map[string]interface{}{
			"kind": "cron",
			"expr": "0 9 * * *",
			"tz":   "UTC",
		},
		"payload": map[string]interface{}{
			"kind":    "agentTurn",
			"message": "What genres does Hades have?",
		},
		"announce": true,
	})
	if err != nil {
		t.Fatalf("CreateJobFromMap failed: %v", err)
	}
	if job.Name != "nightly-digest" {
		t.Errorf("Unexpected name: %s", job.Name)
	}
	if job.Schedule.Tz != "UTC" {
		t.Errorf("Unexpected tz: %s", job.Schedule.Tz)
	}
	if job.Payload.Kind != PayloadKindAgentTurn {
		t.Errorf("Unexpected payload kind: %s", job.Payload.Kind)
	}
	if !job.Announce {
		t.Error("Expected announce to be set")
	}
	if !job.Enabled {
		t.Error("New jobs should be enabled")
	}
}

func TestCreateJobFromMapDefaults(t *testing.T) {
	// "at" schedules default to delete-after-run
	job, err := CreateJobFromMap(map[string]interface{}{
		"name": "one-shot",
		"schedule": map[string]interface{}{
			"kind": "at",
			"at":   "2027-01-01T00:00:00Z",
		},
		"payload": map[string]interface{}{
			"text": "reminder text",
		},
	})
	if err != nil {
		t.Fatalf("CreateJobFromMap failed: %v", err)
	}
	if !job.DeleteAfterRun {
		t.Error("Expected deleteAfterRun default for 'at' schedule")
	}
	if job.Payload.Kind != PayloadKindReminder {
		t.Errorf("Expected reminder payload kind, got %s", job.Payload.Kind)
	}

	// Missing name or schedule kind is rejected
	if _, err := CreateJobFromMap(map[string]interface{}{}); err == nil {
		t.Error("Expected error for missing name")
	}
	if _, err := CreateJobFromMap(map[string]interface{}{"name": "x"}); err == nil {
		t.Error("Expected error for missing schedule kind")
	}
}

func TestRunHistoryLimit(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 120; i++ {
		store.AddRun("job-1", RunHistoryEntry{JobID: "job-1", Status: "ok"})
	}

	runs := store.GetRuns("job-1", 0)
	if len(runs) != 100 {
		t.Errorf("Expected history capped at 100, got %d", len(runs))
	}

	runs = store.GetRuns("job-1", 10)
	if len(runs) != 10 {
		t.Errorf("Expected 10 runs with limit, got %d", len(runs))
	}

	if runs := store.GetRuns("missing", 10); len(runs) != 0 {
		t.Errorf("Expected no runs for unknown job, got %d", len(runs))
	}
}

func TestExecuteReminderJob(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))

	var announced atomic.Value
	h.SetAnnounceCallback(func(text string) error {
		announced.Store(text)
		return nil
	})

	job := &Job{
		Enabled:  true,
		Name:     "reminder",
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
		Payload:  Payload{Kind: PayloadKindReminder, Text: "time to play"},
	}
	if err := h.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	h.executeJob(job)

	if got, _ := announced.Load().(string); got != "time to play" {
		t.Errorf("Expected announce 'time to play', got %q", got)
	}
	if job.State.LastStatus != "ok" {
		t.Errorf("Expected status ok, got %s", job.State.LastStatus)
	}

	runs := h.GetRuns(job.ID, 1)
	if len(runs) != 1 || runs[0].Status != "ok" {
		t.Errorf("Expected one ok run, got %+v", runs)
	}
}

func TestExecuteAgentTurnJob(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))

	h.SetAgentTurnCallback(func(message, model string) (string, error) {
		if !strings.Contains(message, "Hades") {
			t.Errorf("Unexpected message: %s", message)
		}
		return "Hades - genres: action, role-playing", nil
	})

	var announced atomic.Value
	h.SetAnnounceCallback(func(text string) error {
		announced.Store(text)
		return nil
	})

	job := &Job{
		Enabled:  true,
		Name:     "genre-check",
		Announce: true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
		Payload:  Payload{Kind: PayloadKindAgentTurn, Message: "What genres does Hades have?"},
	}
	if err := h.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	h.executeJob(job)

	if got, _ := announced.Load().(string); !strings.Contains(got, "genres") {
		t.Errorf("Expected agent output announced, got %q", got)
	}

	runs := h.GetRuns(job.ID, 1)
	if len(runs) != 1 {
		t.Fatalf("Expected one run, got %d", len(runs))
	}
	if runs[0].Result == "" {
		t.Error("Expected run result recorded")
	}
}

func TestExecuteJobNoCallback(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))

	job := &Job{
		Enabled:  true,
		Name:     "orphan",
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
		Payload:  Payload{Kind: PayloadKindAgentTurn, Message: "hi"},
	}
	if err := h.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	h.executeJob(job)

	if job.State.LastStatus != "error" {
		t.Errorf("Expected error status without callback, got %s", job.State.LastStatus)
	}
	if job.State.ConsecutiveErrors != 1 {
		t.Errorf("Expected 1 consecutive error, got %d", job.State.ConsecutiveErrors)
	}
}

func TestOneShotDisabledAfterRun(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))
	h.SetAnnounceCallback(func(string) error { return nil })

	job := &Job{
		Enabled:        true,
		Name:           "one-shot",
		DeleteAfterRun: true,
		Schedule:       Schedule{Kind: ScheduleKindAt, At: time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)},
		Payload:        Payload{Kind: PayloadKindReminder, Text: "ping"},
	}
	if err := h.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	h.executeJob(job)

	if job.Enabled {
		t.Error("One-shot job should be disabled after running")
	}
}

func TestHandlerStartStop(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))

	h.Start()
	if !h.IsRunning() {
		t.Error("Handler should be running after Start")
	}
	// Second start is a no-op
	h.Start()

	h.Stop()
	if h.IsRunning() {
		t.Error("Handler should be stopped after Stop")
	}
	// Second stop is a no-op
	h.Stop()
}

func TestGetStatus(t *testing.T) {
	h := NewCronHandler(filepath.Join(t.TempDir(), "jobs.json"))

	job := &Job{
		Enabled:  true,
		Name:     "status-check",
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60000},
		Payload:  Payload{Kind: PayloadKindReminder, Text: "x"},
	}
	if err := h.AddJob(job); err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}

	status := h.GetStatus()
	if status["total_jobs"].(int) != 1 {
		t.Errorf("Expected 1 job, got %v", status["total_jobs"])
	}
	if status["enabled"].(int) != 1 {
		t.Errorf("Expected 1 enabled, got %v", status["enabled"])
	}
}
