package collab

import (
	"context"
	"fmt"
	"time"

	"job-compass/internal/model"

	"go.uber.org/zap"
)

// 外部协作方契约。核心只消费返回值，不关心实现；生产与测试实现注入同一接口。

// AIContentGenerator 生成简历要点、求职信等文本内容。
type AIContentGenerator interface {
	GenerateBullets(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) ([]string, error)
	SuggestSkills(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) (SkillSuggestion, error)
	TailorExperience(ctx context.Context, entry model.ExperienceEntry, job model.JobApplication) (TailoredExperience, error)
	GenerateCoverLetter(ctx context.Context, job model.JobApplication, profile model.CandidateProfile, tone string) (CoverLetter, error)
}

// SkillSuggestion 表示技能优化建议。
type SkillSuggestion struct {
	Emphasize []string `json:"emphasize"`
	Add       []string `json:"add"`
	Score     float64  `json:"score"`
}

// TailoredExperience 表示针对岗位调整后的经历及候选表述。
type TailoredExperience struct {
	Entry      model.ExperienceEntry `json:"entry"`
	Variations []Variation           `json:"variations"`
}

// Variation 表示一条候选表述及其相关度。
type Variation struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// CoverLetter 表示结构化求职信。
type CoverLetter struct {
	Opening string   `json:"opening"`
	Body    []string `json:"body"`
	Closing string   `json:"closing"`
	Tone    string   `json:"tone"`
}

// CompanyResearchService 返回公司调研结果。
type CompanyResearchService interface {
	Research(ctx context.Context, companyName string) (CompanyReport, error)
}

// CompanyReport 表示公司调研摘要。
type CompanyReport struct {
	Mission  string     `json:"mission"`
	News     []NewsItem `json:"news"`
	Size     string     `json:"size"`
	Execs    []string   `json:"execs"`
	Products []string   `json:"products"`
	Summary  string     `json:"summary"`
}

// NewsItem 表示一条公司新闻。
type NewsItem struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Date   string `json:"date"`
	Source string `json:"source"`
}

// CalendarService 处理面试日程。
type CalendarService interface {
	Schedule(ctx context.Context, jobID string, when time.Time, kind string) (Event, error)
	CheckConflicts(ctx context.Context, when time.Time) ([]Conflict, error)
}

// Event 表示已创建的日历事件。
type Event struct {
	EventID   string     `json:"event_id"`
	Conflicts []Conflict `json:"conflicts"`
}

// Conflict 表示一个时间冲突。
type Conflict struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// StatusDetection 表示从邮件中识别出的状态变化。
type StatusDetection struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// EmailStatusDetector 从邮箱中识别申请状态变化。
type EmailStatusDetector interface {
	Detect(ctx context.Context) ([]StatusDetection, error)
}

// Options 控制协作方调用的超时与重试间隔。
type Options struct {
	Timeout time.Duration
	Backoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return o
}

// Do 执行一次协作方调用：每次尝试受超时约束，失败后退避重试一次，
// 仍失败则返回 ErrDegraded 类别错误，调用方将对应字段标记缺失而非整体失败。
func Do[T any](ctx context.Context, logger *zap.Logger, name string, opts Options, fn func(context.Context) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	attempt := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		return fn(callCtx)
	}

	out, err := attempt()
	if err == nil {
		return out, nil
	}
	if logger != nil {
		logger.Warn("collaborator call failed, retrying",
			zap.String("collaborator", name), zap.Error(err))
	}

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %s: %v", model.ErrDegraded, name, ctx.Err())
	case <-time.After(opts.Backoff):
	}

	out, err = attempt()
	if err == nil {
		return out, nil
	}
	if logger != nil {
		logger.Warn("collaborator degraded after retry",
			zap.String("collaborator", name), zap.Error(err))
	}
	return zero, fmt.Errorf("%w: %s: %v", model.ErrDegraded, name, err)
}
