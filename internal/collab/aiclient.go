package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"job-compass/internal/model"
)

// AIConfig 定义内容生成服务的 API 配置。
type AIConfig struct {
	APIBase string `yaml:"api_base" json:"api_base"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
}

// AIClient 通过 chat-completions 接口实现 AIContentGenerator。
type AIClient struct {
	cfg    AIConfig
	client *http.Client
}

// NewAIClient 创建客户端。
func NewAIClient(cfg AIConfig, httpClient *http.Client) *AIClient {
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://api.deepseek.com/v1"
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "deepseek-chat"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AIClient{cfg: AIConfig{APIBase: base, APIKey: cfg.APIKey, Model: modelName}, client: httpClient}
}

// GenerateBullets 生成针对岗位的简历要点。
func (c *AIClient) GenerateBullets(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) ([]string, error) {
	prompt := fmt.Sprintf(
		"岗位: %s @ %s\n描述: %s\n候选人技能: %s\n请输出 JSON 字符串数组，每项是一条针对该岗位的简历要点。",
		job.Title, job.Company, job.Description, strings.Join(profile.SkillList(), ", "))
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var bullets []string
	if err := json.Unmarshal([]byte(raw), &bullets); err != nil {
		return nil, fmt.Errorf("parse bullets response: %w", err)
	}
	return bullets, nil
}

// SuggestSkills 返回需要强调与补充的技能建议。
func (c *AIClient) SuggestSkills(ctx context.Context, job model.JobApplication, profile model.CandidateProfile) (SkillSuggestion, error) {
	prompt := fmt.Sprintf(
		"岗位要求技能: %s\n候选人技能: %s\n请输出 JSON 对象 {\"emphasize\":[],\"add\":[],\"score\":0.0}。",
		strings.Join(job.RequiredSkills(), ", "), strings.Join(profile.SkillList(), ", "))
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return SkillSuggestion{}, err
	}
	var out SkillSuggestion
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return SkillSuggestion{}, fmt.Errorf("parse skill suggestion: %w", err)
	}
	return out, nil
}

// TailorExperience 针对岗位改写一段经历。
func (c *AIClient) TailorExperience(ctx context.Context, entry model.ExperienceEntry, job model.JobApplication) (TailoredExperience, error) {
	prompt := fmt.Sprintf(
		"经历: %s - %s\n目标岗位: %s\n请输出 JSON 对象 {\"variations\":[{\"text\":string,\"relevance\":float}]}。",
		entry.Role, entry.Description, job.Title)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return TailoredExperience{}, err
	}
	out := TailoredExperience{Entry: entry}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return TailoredExperience{}, fmt.Errorf("parse tailored experience: %w", err)
	}
	return out, nil
}

// GenerateCoverLetter 生成指定语气的结构化求职信。
func (c *AIClient) GenerateCoverLetter(ctx context.Context, job model.JobApplication, profile model.CandidateProfile, tone string) (CoverLetter, error) {
	if tone == "" {
		tone = "formal"
	}
	prompt := fmt.Sprintf(
		"岗位: %s @ %s\n候选人: %s\n语气: %s\n请输出 JSON 对象 {\"opening\":string,\"body\":[string],\"closing\":string,\"tone\":string}。",
		job.Title, job.Company, profile.Name, tone)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return CoverLetter{}, err
	}
	var out CoverLetter
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return CoverLetter{}, fmt.Errorf("parse cover letter: %w", err)
	}
	if out.Tone == "" {
		out.Tone = tone
	}
	return out, nil
}

func (c *AIClient) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", fmt.Errorf("ai api key missing")
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful job application assistant. Answer with JSON only."},
			{Role: "user", Content: prompt},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.APIBase, "/")+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ai http %d", resp.StatusCode)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}

	if len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("ai response empty")
	}

	return strings.TrimSpace(body.Choices[0].Message.Content), nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
