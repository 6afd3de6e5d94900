package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"job-compass/internal/model"
)

// 固定类别集合，可通过 Weights 配置扩展权重分配。
const (
	CategorySkills     = "skills"
	CategoryExperience = "experience"
	CategoryEducation  = "education"
)

// Categories 按固定顺序列出全部匹配类别。
var Categories = []string{CategorySkills, CategoryExperience, CategoryEducation}

// Weights 表示类别权重，归一化后求和为 1。
type Weights map[string]float64

// TextSimilarity 是可插拔的文本相似度函数，返回值必须落在 [0,1]
// 且对相同输入保持确定。
type TextSimilarity func(a, b string) float64

// Result 表示一次匹配计算的输出。
type Result struct {
	Score      float64            `json:"score"`
	ByCategory map[string]float64 `json:"by_category"`
	Strengths  []string           `json:"strengths"`
	Gaps       []string           `json:"gaps"`
}

// Engine 计算职位要求与候选人画像之间的加权相似度。
// 相同输入总是产生相同结果，不依赖时间与随机数。
type Engine struct {
	similarity TextSimilarity
}

// NewEngine 创建匹配引擎，未提供相似度函数时使用关键词重合度。
func NewEngine(similarity TextSimilarity) *Engine {
	if similarity == nil {
		similarity = KeywordOverlap
	}
	return &Engine{similarity: similarity}
}

// Match 计算总分与分类得分。weights 为 nil 时各类别等权；
// 含负值时返回 ErrValidation 类别错误，否则归一化到和为 1。
func (e *Engine) Match(job model.JobApplication, profile model.CandidateProfile, weights Weights) (Result, error) {
	normalized, err := normalizeWeights(weights)
	if err != nil {
		return Result{}, err
	}

	required := job.RequiredSkills()
	sort.Strings(required)

	strengths := make([]string, 0)
	gaps := make([]string, 0)
	for _, skill := range required {
		if profile.HasSkill(skill) {
			strengths = append(strengths, skill)
		} else {
			gaps = append(gaps, skill)
		}
	}

	skillScore := 1.0
	if len(required) > 0 {
		skillScore = float64(len(strengths)) / float64(len(required))
	}

	jobText := job.Title + "\n" + job.Description
	byCategory := map[string]float64{
		CategorySkills:     clamp01(skillScore),
		CategoryExperience: clamp01(e.similarity(experienceText(profile), jobText)),
		CategoryEducation:  clamp01(e.similarity(educationText(profile), jobText)),
	}

	score := 0.0
	for _, category := range Categories {
		score += normalized[category] * byCategory[category]
	}

	return Result{
		Score:      clamp01(score),
		ByCategory: byCategory,
		Strengths:  strengths,
		Gaps:       gaps,
	}, nil
}

// normalizeWeights 校验并归一化权重；nil 或空表示等权。
func normalizeWeights(weights Weights) (Weights, error) {
	if len(weights) == 0 {
		equal := 1.0 / float64(len(Categories))
		out := make(Weights, len(Categories))
		for _, c := range Categories {
			out[c] = equal
		}
		return out, nil
	}

	sum := 0.0
	for category, w := range weights {
		if !isCategory(category) {
			return nil, fmt.Errorf("%w: unknown weight category %q", model.ErrValidation, category)
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight for %q", model.ErrValidation, category)
		}
		sum += w
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: weights must sum to a positive value", model.ErrValidation)
	}

	out := make(Weights, len(Categories))
	for _, category := range Categories {
		out[category] = weights[category] / sum
	}
	return out, nil
}

func isCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

func experienceText(profile model.CandidateProfile) string {
	var b strings.Builder
	for _, exp := range profile.Experience {
		b.WriteString(exp.Role)
		b.WriteString("\n")
		b.WriteString(exp.Description)
		b.WriteString("\n")
	}
	return b.String()
}

func educationText(profile model.CandidateProfile) string {
	var b strings.Builder
	for _, edu := range profile.Education {
		b.WriteString(edu.Degree)
		b.WriteString(" ")
		b.WriteString(edu.Field)
		b.WriteString("\n")
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
