// Scheduling tools wrapping the cron subsystem
package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/gamedex/gamedex/cron"
)

// ScheduleTool creates a scheduled job: a one-shot or recurring reminder,
// or a recurring agent turn whose output is announced to connected clients.
type ScheduleTool struct {
	handler *cron.CronHandler
}

func NewScheduleTool(h *cron.CronHandler) *ScheduleTool {
	return &ScheduleTool{handler: h}
}

func (t *ScheduleTool) Name() string { return "schedule" }

func (t *ScheduleTool) Description() string {
	return "Schedule a task: a reminder or a recurring question for the assistant. " +
		"Use kind 'at' with an RFC3339 timestamp, 'every' with every_minutes, or 'cron' with a cron expression."
}

func (t *ScheduleTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Short name for the task",
			},
			"kind": map[string]interface{}{
				"type":        "string",
				"description": "Schedule kind: at, every, or cron",
			},
			"at": map[string]interface{}{
				"type":        "string",
				"description": "RFC3339 timestamp for kind=at, e.g. 2026-09-01T09:00:00Z",
			},
			"every_minutes": map[string]interface{}{
				"type":        "integer",
				"description": "Interval in minutes for kind=every",
			},
			"expr": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression for kind=cron, e.g. '0 9 * * *'",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Reminder text to announce when the task fires",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to ask the assistant when the task fires (instead of text)",
			},
		},
		"required": []string{"name", "kind"},
	}
}

func (t *ScheduleTool) Execute(args map[string]interface{}) (interface{}, error) {
	name := GetString(args, "name")
	kind := GetString(args, "kind")

	data := map[string]interface{}{
		"name": name,
		"schedule": map[string]interface{}{
			"kind": kind,
			"at":   GetString(args, "at"),
			"expr": GetString(args, "expr"),
		},
	}
	if mins := GetInt(args, "every_minutes"); mins > 0 {
		data["schedule"].(map[string]interface{})["everyMs"] = float64(mins) * 60 * 1000
	}

	if msg := GetString(args, "message"); msg != "" {
		data["payload"] = map[string]interface{}{"kind": cron.PayloadKindAgentTurn, "message": msg}
		data["announce"] = true
	} else {
		data["payload"] = map[string]interface{}{"kind": cron.PayloadKindReminder, "text": GetString(args, "text")}
	}

	job, err := cron.CreateJobFromMap(data)
	if err != nil {
		return fmt.Sprintf("Could not create schedule: %v", err), nil
	}
	if err := t.handler.AddJob(job); err != nil {
		return fmt.Sprintf("Could not save schedule: %v", err), nil
	}

	return fmt.Sprintf("Scheduled %q (id %s), next run %s.",
		job.Name, job.ID, formatRunTime(job.State.NextRunAtMs)), nil
}

// SchedulesListTool lists scheduled jobs
type SchedulesListTool struct {
	handler *cron.CronHandler
}

func NewSchedulesListTool(h *cron.CronHandler) *SchedulesListTool {
	return &SchedulesListTool{handler: h}
}

func (t *SchedulesListTool) Name() string { return "schedules_list" }

func (t *SchedulesListTool) Description() string {
	return "List all scheduled tasks with their ids and next run times"
}

func (t *SchedulesListTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *SchedulesListTool) Execute(args map[string]interface{}) (interface{}, error) {
	jobs := t.handler.ListJobs()
	if len(jobs) == 0 {
		return "No scheduled tasks.", nil
	}

	var b strings.Builder
	for _, job := range jobs {
		state := "enabled"
		if !job.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "%s (%s, %s): next run %s\n",
			job.Name, job.ID, state, formatRunTime(job.State.NextRunAtMs))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ScheduleCancelTool cancels a scheduled job by id
type ScheduleCancelTool struct {
	handler *cron.CronHandler
}

func NewScheduleCancelTool(h *cron.CronHandler) *ScheduleCancelTool {
	return &ScheduleCancelTool{handler: h}
}

func (t *ScheduleCancelTool) Name() string { return "schedule_cancel" }

func (t *ScheduleCancelTool) Description() string {
	return "Cancel a scheduled task by its id"
}

func (t *ScheduleCancelTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id as returned by schedule or schedules_list",
			},
		},
		"required": []string{"id"},
	}
}

func (t *ScheduleCancelTool) Execute(args map[string]interface{}) (interface{}, error) {
	id := GetString(args, "id")
	if id == "" {
		return "Please provide a job id.", nil
	}
	if err := t.handler.RemoveJob(id); err != nil {
		return fmt.Sprintf("Could not cancel: %v", err), nil
	}
	return fmt.Sprintf("Cancelled %s.", id), nil
}

// RegisterScheduleTools registers the scheduling tools on a registry
func RegisterScheduleTools(r *Registry, h *cron.CronHandler) {
	r.Register(NewScheduleTool(h))
	r.Register(NewSchedulesListTool(h))
	r.Register(NewScheduleCancelTool(h))
}

func formatRunTime(ms int64) string {
	if ms <= 0 {
		return "unscheduled"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}

var (
	_ Tool = (*ScheduleTool)(nil)
	_ Tool = (*SchedulesListTool)(nil)
	_ Tool = (*ScheduleCancelTool)(nil)
)
