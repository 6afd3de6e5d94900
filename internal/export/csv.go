package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"job-compass/internal/analytics"
	"job-compass/internal/model"
)

// WriteFunnelCSV 将漏斗统计写为 CSV：先逐阶段计数，再追加汇总指标。
// 阶段按流水线顺序输出，月度投递量按月份排序。
func WriteFunnelCSV(w io.Writer, report analytics.Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"section", "key", "value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, stage := range model.Stages {
		row := []string{"stage_counts", string(stage), strconv.Itoa(report.StageCounts[stage])}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write stage counts: %w", err)
		}
	}
	for _, stage := range model.Stages {
		row := []string{"funnel", string(stage), strconv.Itoa(report.Funnel[stage])}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write funnel: %w", err)
		}
	}

	for _, stage := range sortedStageKeys(report.AvgDaysPerStage) {
		row := []string{"avg_days_per_stage", string(stage), formatFloat(report.AvgDaysPerStage[stage])}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write avg days: %w", err)
		}
	}

	months := make([]string, 0, len(report.MonthlyVolume))
	for month := range report.MonthlyVolume {
		months = append(months, month)
	}
	sort.Strings(months)
	for _, month := range months {
		row := []string{"monthly_volume", month, strconv.Itoa(report.MonthlyVolume[month])}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write monthly volume: %w", err)
		}
	}

	summary := [][]string{
		{"summary", "response_rate", formatFloat(report.ResponseRate)},
		{"summary", "deadline_adherence", formatFloat(report.DeadlineAdherence)},
		{"summary", "goal_progress", formatFloat(report.GoalProgress)},
	}
	for _, row := range summary {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJobsCSV 将职位列表导出为 CSV，一行一个职位。
func WriteJobsCSV(w io.Writer, jobs []model.JobApplication) error {
	cw := csv.NewWriter(w)

	header := []string{"id", "title", "company", "location", "stage", "deadline", "archived", "created_at"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, job := range jobs {
		deadline := ""
		if job.Deadline != nil {
			deadline = job.Deadline.Format("2006-01-02")
		}
		row := []string{
			job.ID,
			job.Title,
			job.Company,
			job.Location,
			string(job.Stage),
			deadline,
			strconv.FormatBool(job.Archived),
			job.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write job %s: %w", job.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func sortedStageKeys(m map[model.Stage]float64) []model.Stage {
	keys := make([]model.Stage, 0, len(m))
	for _, stage := range model.Stages {
		if _, ok := m[stage]; ok {
			keys = append(keys, stage)
		}
	}
	return keys
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
