package deadline

import (
	"sort"
	"time"

	"job-compass/internal/model"
)

// Urgency 表示截止日期紧迫度分级。
type Urgency string

const (
	UrgencyGreen  Urgency = "green"
	UrgencyYellow Urgency = "yellow"
	UrgencyRed    Urgency = "red"
)

// Card 表示一条截止日期提醒，DaysRemaining 逾期时为负数。
type Card struct {
	JobID         string  `json:"job_id"`
	DaysRemaining int     `json:"days_remaining"`
	Urgency       Urgency `json:"urgency"`
}

// Report 汇总一次截止日期计算的全部输出。
type Report struct {
	Cards    []Card              `json:"cards"`
	Overdue  []Card              `json:"overdue"`
	Calendar map[string][]string `json:"calendar"`
	Next5    []Card              `json:"next5"`
}

// Compute 对快照中的职位计算截止日期分级。纯函数，无副作用，
// 多个读取方可针对同一快照并发调用。
func Compute(now time.Time, jobs []model.JobApplication) Report {
	report := Report{Calendar: make(map[string][]string)}

	for _, job := range jobs {
		if job.Deadline == nil || job.Archived {
			continue
		}

		days := daysRemaining(now, *job.Deadline)
		card := Card{JobID: job.ID, DaysRemaining: days, Urgency: classify(days)}
		report.Cards = append(report.Cards, card)

		if days < 0 {
			report.Overdue = append(report.Overdue, card)
		}

		date := job.Deadline.Format("2006-01-02")
		report.Calendar[date] = append(report.Calendar[date], job.ID)
	}

	sortCards(report.Cards)
	sortCards(report.Overdue)
	for _, ids := range report.Calendar {
		sort.Strings(ids)
	}

	for _, card := range report.Cards {
		if card.DaysRemaining < 0 {
			continue
		}
		report.Next5 = append(report.Next5, card)
		if len(report.Next5) == 5 {
			break
		}
	}

	return report
}

// daysRemaining 计算整天差，向下取整，逾期为负。
func daysRemaining(now time.Time, deadline time.Time) int {
	diff := deadline.Sub(now)
	days := int(diff.Hours() / 24)
	if diff < 0 && diff%(24*time.Hour) != 0 {
		days--
	}
	return days
}

func classify(days int) Urgency {
	switch {
	case days <= 1:
		return UrgencyRed
	case days <= 7:
		return UrgencyYellow
	default:
		return UrgencyGreen
	}
}

// sortCards 按剩余天数升序排序，同天按职位 ID 升序，保证输出确定。
func sortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].DaysRemaining != cards[j].DaysRemaining {
			return cards[i].DaysRemaining < cards[j].DaysRemaining
		}
		return cards[i].JobID < cards[j].JobID
	})
}
