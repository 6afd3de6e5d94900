package gap

import (
	"context"
	"sort"
	"strings"

	"job-compass/internal/collab"
	"job-compass/internal/model"

	"go.uber.org/zap"
)

// Tier 表示技能缺口的优先级档位。
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// Priority 将技能与优先级档位配对。
type Priority struct {
	Skill string `json:"skill"`
	Tier  Tier   `json:"tier"`
}

// Resource 表示外部提供的学习资源，核心不解释其内容。
type Resource struct {
	Skill string `json:"skill"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResourceProvider 按技能名返回学习资源，由外部协作方实现。
type ResourceProvider interface {
	Resources(ctx context.Context, skill string) ([]Resource, error)
}

// Report 表示一次缺口分析的输出。Degraded 列出资源查询失败的技能。
type Report struct {
	Missing    []string   `json:"missing"`
	Weak       []string   `json:"weak"`
	Priorities []Priority `json:"priorities"`
	Resources  []Resource `json:"resources"`
	Degraded   []string   `json:"degraded,omitempty"`
}

// Config 控制强调度阈值，档位划分是强调度权重的确定函数。
type Config struct {
	// HighEmphasis 指技能在岗位文本中至少出现多少次才算重点强调。
	HighEmphasis int `yaml:"high_emphasis" json:"high_emphasis"`
	// WeakEmphasis 指已具备技能被岗位强调到多少次时列为薄弱项。
	WeakEmphasis int `yaml:"weak_emphasis" json:"weak_emphasis"`
}

func (c Config) withDefaults() Config {
	if c.HighEmphasis <= 0 {
		c.HighEmphasis = 2
	}
	if c.WeakEmphasis <= 0 {
		c.WeakEmphasis = 2
	}
	return c
}

// Analyzer 基于匹配结果的技能维度给出缺口排序。
type Analyzer struct {
	cfg       Config
	resources ResourceProvider
	collabOpt collab.Options
	logger    *zap.Logger
}

// NewAnalyzer 创建缺口分析器，resources 可为 nil 表示不附加学习资源。
func NewAnalyzer(cfg Config, resources ResourceProvider, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg.withDefaults(), resources: resources, logger: logger}
}

// WithCollabOptions 配置资源查询的超时与重试间隔。
func (a *Analyzer) WithCollabOptions(opts collab.Options) *Analyzer {
	a.collabOpt = opts
	return a
}

// Analyze 计算缺失与薄弱技能并按档位排序。资源查询失败只在
// Degraded 中记录对应技能，不影响整体结果。
func (a *Analyzer) Analyze(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) Report {
	report := Report{Missing: []string{}, Weak: []string{}, Priorities: []Priority{}, Resources: []Resource{}}

	required := job.RequiredSkills()
	sort.Strings(required)

	jobText := strings.ToLower(job.Title + "\n" + job.Description)

	for _, skill := range required {
		weight := emphasisWeight(jobText, skill)
		isRequired := job.SkillRequired(skill)

		if !profile.HasSkill(skill) {
			report.Missing = append(report.Missing, skill)
			report.Priorities = append(report.Priorities, Priority{Skill: skill, Tier: a.tier(isRequired, weight, true)})
			continue
		}
		if isRequired || weight >= a.cfg.WeakEmphasis {
			report.Weak = append(report.Weak, skill)
			report.Priorities = append(report.Priorities, Priority{Skill: skill, Tier: a.tier(isRequired, weight, false)})
		}
	}

	sortPriorities(report.Priorities)
	a.attachResources(ctx, &report)
	return report
}

// tier 是 (required, emphasis, missing) 的确定函数。
func (a *Analyzer) tier(required bool, weight int, missing bool) Tier {
	if !missing {
		return TierLow
	}
	switch {
	case required && weight >= a.cfg.HighEmphasis:
		return TierHigh
	case required || weight >= a.cfg.HighEmphasis:
		return TierMedium
	default:
		return TierLow
	}
}

// emphasisWeight 统计技能在岗位文本中的出现次数，至少为 1。
func emphasisWeight(jobText, skill string) int {
	count := strings.Count(jobText, strings.ToLower(skill))
	if count < 1 {
		return 1
	}
	return count
}

func (a *Analyzer) attachResources(ctx context.Context, report *Report) {
	if a.resources == nil {
		return
	}
	for _, skill := range report.Missing {
		skill := skill
		found, err := collab.Do(ctx, a.logger, "resource-provider", a.collabOpt,
			func(ctx context.Context) ([]Resource, error) {
				return a.resources.Resources(ctx, skill)
			})
		if err != nil {
			// Collaborator failures degrade the enrichment, never the analysis.
			report.Degraded = append(report.Degraded, skill)
			continue
		}
		report.Resources = append(report.Resources, found...)
	}
}

var tierOrder = map[Tier]int{TierHigh: 0, TierMedium: 1, TierLow: 2}

func sortPriorities(priorities []Priority) {
	sort.Slice(priorities, func(i, j int) bool {
		if tierOrder[priorities[i].Tier] != tierOrder[priorities[j].Tier] {
			return tierOrder[priorities[i].Tier] < tierOrder[priorities[j].Tier]
		}
		return priorities[i].Skill < priorities[j].Skill
	})
}
