package analytics

import (
	"time"

	"job-compass/internal/model"
)

// Goals 表示求职目标配置。
type Goals struct {
	// ApplicationsPerMonth 每月投递目标，≤0 表示未设置目标。
	ApplicationsPerMonth int `yaml:"applications_per_month" json:"applications_per_month"`
}

// Report 表示一次漏斗统计。所有数值来自同一快照，彼此一致。
// StageCounts 按当前阶段统计；Funnel 按是否到达过某阶段累计，
// 单调推进的队列中满足 applied ≥ interview ≥ offer。
type Report struct {
	StageCounts       map[model.Stage]int     `json:"stage_counts"`
	Funnel            map[model.Stage]int     `json:"funnel"`
	ResponseRate      float64                 `json:"response_rate"`
	AvgDaysPerStage   map[model.Stage]float64 `json:"avg_days_per_stage"`
	MonthlyVolume     map[string]int          `json:"monthly_volume"`
	DeadlineAdherence float64                 `json:"deadline_adherence"`
	GoalProgress      float64                 `json:"goal_progress"`
}

// ComputeFunnel 对快照计算漏斗指标。纯函数：jobs 需携带完整阶段历史，
// 归档职位不计入任何指标。
func ComputeFunnel(now time.Time, jobs []model.JobApplication, goals Goals) Report {
	report := Report{
		StageCounts:     make(map[model.Stage]int),
		Funnel:          make(map[model.Stage]int),
		AvgDaysPerStage: make(map[model.Stage]float64),
		MonthlyVolume:   make(map[string]int),
	}

	reachedApplied := 0
	respondedBeyond := 0
	deadlinePassed := 0
	deadlineMet := 0
	appliedThisMonth := 0
	currentMonth := now.Format("2006-01")

	dwellTotal := make(map[model.Stage]float64)
	dwellCount := make(map[model.Stage]int)

	for _, job := range jobs {
		if job.Archived {
			continue
		}

		report.StageCounts[job.Stage]++
		report.MonthlyVolume[job.CreatedAt.Format("2006-01")]++
		for stage, reached := range reachedStages(job) {
			if reached {
				report.Funnel[stage]++
			}
		}

		appliedAt, applied := firstReached(job, model.StageApplied.Rank())
		if applied {
			reachedApplied++
			if appliedAt.Format("2006-01") == currentMonth {
				appliedThisMonth++
			}
		}
		if everBeyondApplied(job) {
			respondedBeyond++
		}

		if job.Deadline != nil && job.Deadline.Before(now) {
			deadlinePassed++
			if applied && !appliedAt.After(*job.Deadline) {
				deadlineMet++
			}
		}

		accumulateDwell(job, dwellTotal, dwellCount)
	}

	for stage, total := range dwellTotal {
		if dwellCount[stage] > 0 {
			report.AvgDaysPerStage[stage] = total / float64(dwellCount[stage])
		}
	}

	if reachedApplied > 0 {
		report.ResponseRate = float64(respondedBeyond) / float64(reachedApplied)
	}

	report.DeadlineAdherence = 1.0
	if deadlinePassed > 0 {
		report.DeadlineAdherence = float64(deadlineMet) / float64(deadlinePassed)
	}

	if goals.ApplicationsPerMonth > 0 {
		report.GoalProgress = clip01(float64(appliedThisMonth) / float64(goals.ApplicationsPerMonth))
	}

	return report
}

// reachedStages 返回职位到达过的全部阶段。初始阶段由首条历史记录的
// From 给出；直接创建在后段阶段的职位不计入更早的阶段。
func reachedStages(job model.JobApplication) map[model.Stage]bool {
	reached := map[model.Stage]bool{job.Stage: true}
	for _, tr := range job.History {
		reached[tr.From] = true
		reached[tr.To] = true
	}
	return reached
}

// firstReached 返回职位首次到达指定推进序号及之后阶段的时间。
// 职位可能直接创建在目标阶段之后，此时以创建时间为准。
func firstReached(job model.JobApplication, minRank int) (time.Time, bool) {
	if len(job.History) == 0 {
		if job.Stage.Rank() >= minRank {
			return job.CreatedAt, true
		}
		return time.Time{}, false
	}
	if job.History[0].From.Rank() >= minRank {
		return job.CreatedAt, true
	}
	for _, tr := range job.History {
		if tr.To.Rank() >= minRank {
			return tr.MovedAt, true
		}
	}
	return time.Time{}, false
}

// everBeyondApplied 判断职位是否到达过 Applied 之后的推进阶段。
// Rejected 不算响应。历史两端都要检查：职位可能直接创建在后段阶段。
func everBeyondApplied(job model.JobApplication) bool {
	appliedRank := model.StageApplied.Rank()
	for _, tr := range job.History {
		if tr.From.Rank() > appliedRank || tr.To.Rank() > appliedRank {
			return true
		}
	}
	return job.Stage.Rank() > appliedRank
}

// accumulateDwell 统计每个阶段的停留时长。职位尚未离开的阶段
// （最后一条记录之后）不计入均值。
func accumulateDwell(job model.JobApplication, total map[model.Stage]float64, count map[model.Stage]int) {
	if len(job.History) == 0 {
		return
	}

	// Initial stage: entered at creation, exited at the first transition.
	first := job.History[0]
	addDwell(total, count, first.From, job.CreatedAt, first.MovedAt)

	for i := 0; i < len(job.History)-1; i++ {
		addDwell(total, count, job.History[i].To, job.History[i].MovedAt, job.History[i+1].MovedAt)
	}
}

func addDwell(total map[model.Stage]float64, count map[model.Stage]int, stage model.Stage, entered, exited time.Time) {
	if exited.Before(entered) {
		return
	}
	total[stage] += exited.Sub(entered).Hours() / 24
	count[stage]++
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
