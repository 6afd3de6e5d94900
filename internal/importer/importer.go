package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"job-compass/internal/model"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// 导入状态。解析失败返回 failed 草稿而非错误，由调用方决定是否人工补全。
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result 表示一次 URL 导入，Job 为待保存的职位草稿。
type Result struct {
	Status string                `json:"status"`
	URL    string                `json:"url"`
	Job    *model.JobApplication `json:"job,omitempty"`
}

// Importer 从招聘页面抓取职位信息生成草稿。
type Importer struct {
	client *http.Client
	logger *zap.Logger
}

// NewImporter 创建导入器。
func NewImporter(client *http.Client, logger *zap.Logger) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{client: client, logger: logger}
}

// FromURL 抓取页面并解析职位字段。优先读取 JSON-LD JobPosting，
// 退回 <title> 与 meta 描述。网络或解析失败返回 failed 状态。
func (i *Importer) FromURL(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{}, fmt.Errorf("%w: invalid url %q", model.ErrValidation, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("import fetch failed", zap.String("url", parsed.String()), zap.Error(err))
		return Result{Status: StatusFailed, URL: parsed.String()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		i.logger.Warn("import unexpected status", zap.String("url", parsed.String()), zap.Int("status", resp.StatusCode))
		return Result{Status: StatusFailed, URL: parsed.String()}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: StatusFailed, URL: parsed.String()}, nil
	}

	job := parsePosting(string(body))
	if job == nil || job.Title == "" {
		i.logger.Info("import parse failed", zap.String("url", parsed.String()))
		return Result{Status: StatusFailed, URL: parsed.String()}, nil
	}

	job.URL = parsed.String()
	if len([]rune(job.Description)) > model.MaxDescriptionLen {
		job.Description = string([]rune(job.Description)[:model.MaxDescriptionLen])
	}

	i.logger.Info("import parsed",
		zap.String("url", parsed.String()),
		zap.String("title", job.Title),
		zap.String("company", job.Company),
	)
	return Result{Status: StatusSuccess, URL: parsed.String(), Job: job}, nil
}

// jobPosting 对应 JSON-LD JobPosting 结构（精简字段）。
type jobPosting struct {
	Type               string `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	ValidThrough       string `json:"validThrough"`
	EmploymentType     string `json:"employmentType"`
	Industry           string `json:"industry"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation struct {
		Address struct {
			Locality string `json:"addressLocality"`
			Region   string `json:"addressRegion"`
		} `json:"address"`
	} `json:"jobLocation"`
	BaseSalary struct {
		Value struct {
			MinValue float64 `json:"minValue"`
			MaxValue float64 `json:"maxValue"`
		} `json:"value"`
	} `json:"baseSalary"`
}

func parsePosting(htmlText string) *model.JobApplication {
	node, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil
	}

	if job := fromJSONLD(node); job != nil {
		return job
	}
	return fromMetaTags(node)
}

// fromJSONLD 在 script[type=application/ld+json] 中查找 JobPosting。
func fromJSONLD(root *html.Node) *model.JobApplication {
	var job *model.JobApplication
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "script" || attr(n, "type") != "application/ld+json" {
			return true
		}
		if n.FirstChild == nil {
			return true
		}

		var posting jobPosting
		if err := json.Unmarshal([]byte(n.FirstChild.Data), &posting); err != nil {
			return true
		}
		if posting.Type != "JobPosting" || posting.Title == "" {
			return true
		}

		job = &model.JobApplication{
			Title:       posting.Title,
			Company:     posting.HiringOrganization.Name,
			Description: stripTags(posting.Description),
			Industry:    posting.Industry,
			JobType:     posting.EmploymentType,
		}
		if loc := posting.JobLocation.Address.Locality; loc != "" {
			job.Location = loc
			if region := posting.JobLocation.Address.Region; region != "" {
				job.Location = loc + ", " + region
			}
		}
		if min, max := posting.BaseSalary.Value.MinValue, posting.BaseSalary.Value.MaxValue; max > 0 {
			job.SalaryRange = fmt.Sprintf("%.0f-%.0f", min, max)
		}
		if posting.ValidThrough != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, posting.ValidThrough); err == nil {
					job.Deadline = &t
					break
				}
			}
		}
		return false
	})
	return job
}

// fromMetaTags 退回 <title> 与 meta[name=description]。
func fromMetaTags(root *html.Node) *model.JobApplication {
	job := &model.JobApplication{}
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "title":
			if job.Title == "" && n.FirstChild != nil {
				job.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			switch attr(n, "name") {
			case "description":
				if job.Description == "" {
					job.Description = attr(n, "content")
				}
			case "author":
				if job.Company == "" {
					job.Company = attr(n, "content")
				}
			}
			if attr(n, "property") == "og:site_name" && job.Company == "" {
				job.Company = attr(n, "content")
			}
		}
		return true
	})
	if job.Title == "" {
		return nil
	}
	return job
}

// walk 深度优先遍历节点，visit 返回 false 时停止。
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// stripTags 去除描述中的简单 HTML 标记。
func stripTags(s string) string {
	node, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	walk(node, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}
