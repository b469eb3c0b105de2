package workflow

import (
	"sort"
	"time"
)

// TimeRange bounds statistics queries. Zero Start or End leaves that side open.
type TimeRange struct {
	Start   time.Time
	End     time.Time
	OwnerID string
}

func (r TimeRange) contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Statistics summarises executions started inside a time range.
type Statistics struct {
	TotalWorkflows     int                     `json:"totalWorkflows"`
	ActiveWorkflows    int                     `json:"activeWorkflows"`
	TotalExecutions    int                     `json:"totalExecutions"`
	Successful         int                     `json:"successfulExecutions"`
	Failed             int                     `json:"failedExecutions"`
	Skipped            int                     `json:"skippedExecutions"`
	Running            int                     `json:"runningExecutions"`
	SuccessRate        float64                 `json:"successRate"`
	AverageDurationMs  float64                 `json:"averageDurationMs"`
	FilesProcessed     int                     `json:"filesProcessed"`
	StepFailures       map[string]int          `json:"stepFailures"`
	ByWorkflow         []WorkflowStatistics    `json:"byWorkflow"`
	ExecutionsByStatus map[ExecutionStatus]int `json:"executionsByStatus"`
}

// WorkflowStatistics is the per-instance slice of Statistics.
type WorkflowStatistics struct {
	WorkflowID string `json:"workflowId"`
	Name       string `json:"name"`
	Executions int    `json:"executions"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

// computeStatistics aggregates history entries whose start time is in r.
func computeStatistics(workflows []*Workflow, r TimeRange) Statistics {
	stats := Statistics{
		StepFailures:       map[string]int{},
		ByWorkflow:         []WorkflowStatistics{},
		ExecutionsByStatus: map[ExecutionStatus]int{},
	}
	var finishedDuration int64
	var finished int
	for _, wf := range workflows {
		if r.OwnerID != "" && wf.OwnerID != r.OwnerID {
			continue
		}
		stats.TotalWorkflows++
		if wf.IsActive {
			stats.ActiveWorkflows++
		}
		per := WorkflowStatistics{WorkflowID: wf.ID, Name: wf.Definition.Name}
		for _, exec := range wf.State.History {
			if !r.contains(exec.StartTime) {
				continue
			}
			per.Executions++
			stats.TotalExecutions++
			stats.ExecutionsByStatus[exec.Status]++
			stats.FilesProcessed += exec.FilesProcessed
			switch exec.Status {
			case ExecutionCompleted:
				stats.Successful++
				per.Successful++
			case ExecutionFailed:
				stats.Failed++
				per.Failed++
			case ExecutionSkipped:
				stats.Skipped++
			case ExecutionRunning:
				stats.Running++
			}
			if exec.EndTime != nil {
				finished++
				finishedDuration += exec.DurationMs
			}
			for _, rec := range exec.Steps {
				if rec.Status == StepStatusFailed {
					stats.StepFailures[string(rec.StepType)]++
				}
			}
		}
		if per.Executions > 0 {
			stats.ByWorkflow = append(stats.ByWorkflow, per)
		}
	}
	if decided := stats.Successful + stats.Failed; decided > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(decided)
	}
	if finished > 0 {
		stats.AverageDurationMs = float64(finishedDuration) / float64(finished)
	}
	sort.SliceStable(stats.ByWorkflow, func(i, j int) bool {
		if stats.ByWorkflow[i].Executions == stats.ByWorkflow[j].Executions {
			return stats.ByWorkflow[i].WorkflowID < stats.ByWorkflow[j].WorkflowID
		}
		return stats.ByWorkflow[i].Executions > stats.ByWorkflow[j].Executions
	})
	return stats
}
