package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"job-compass/internal/collab"
	"job-compass/internal/model"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Store 抽象管道所需的存储接口，便于测试替换。
type Store interface {
	GetJob(ctx context.Context, id string) (*model.JobApplication, error)
	AppendTransition(ctx context.Context, jobID string, target model.Stage, at time.Time) (*model.StageTransition, error)
	UpdateJob(ctx context.Context, jobID string, patch map[string]any, edits []model.EditEntry) error
	Transitions(ctx context.Context, jobID string) ([]model.StageTransition, error)
}

// Patch 表示一次字段级编辑，nil 字段表示不修改。
type Patch struct {
	Notes       *string        `json:"notes,omitempty"`
	Contacts    map[string]any `json:"contacts,omitempty"`
	Description *string        `json:"description,omitempty"`
	Location    *string        `json:"location,omitempty"`
	SalaryRange *string        `json:"salary_range,omitempty"`
	URL         *string        `json:"url,omitempty"`
}

// Engine 负责校验并记录阶段流转。任意阶段之间都允许流转（包括回退与
// 直接 Rejected），每次流转无论方向都会留下审计记录。
type Engine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine 创建管道引擎。
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Move 将职位移动到目标阶段并追加历史记录。
// 目标阶段不在枚举集合内返回 ErrUnknownStage；时间早于最后一条历史
// 记录返回 ErrNonMonotonicTime，状态保持不变。
func (e *Engine) Move(ctx context.Context, jobID string, targetStage string, at time.Time) (*model.StageTransition, error) {
	target, ok := model.ParseStage(targetStage)
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStage, targetStage)
	}

	tr, err := e.store.AppendTransition(ctx, jobID, target, at)
	if err != nil {
		return nil, err
	}

	e.logger.Info("stage moved",
		zap.String("job_id", jobID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Time("moved_at", tr.MovedAt),
	)
	return tr, nil
}

// Update 合并字段编辑并为每个变化的字段追加一条编辑记录，不改变阶段。
func (e *Engine) Update(ctx context.Context, jobID string, patch Patch) (*model.JobApplication, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	var edits []model.EditEntry
	at := e.now().UTC()

	record := func(field, oldValue, newValue string) {
		values[field] = newValue
		edits = append(edits, model.EditEntry{Field: field, OldValue: oldValue, NewValue: newValue, EditedAt: at})
	}

	if patch.Notes != nil && *patch.Notes != job.Notes {
		record("notes", job.Notes, *patch.Notes)
	}
	if patch.Description != nil {
		if len([]rune(*patch.Description)) > model.MaxDescriptionLen {
			return nil, fmt.Errorf("%w: description exceeds %d characters", model.ErrValidation, model.MaxDescriptionLen)
		}
		if *patch.Description != job.Description {
			record("description", job.Description, *patch.Description)
		}
	}
	if patch.Location != nil && *patch.Location != job.Location {
		record("location", job.Location, *patch.Location)
	}
	if patch.SalaryRange != nil && *patch.SalaryRange != job.SalaryRange {
		record("salary_range", job.SalaryRange, *patch.SalaryRange)
	}
	if patch.URL != nil && *patch.URL != job.URL {
		record("url", job.URL, *patch.URL)
	}
	if patch.Contacts != nil {
		merged := map[string]any{}
		for k, v := range job.Contacts {
			merged[k] = v
		}
		for k, v := range patch.Contacts {
			merged[k] = v
		}
		values["contacts"] = datatypes.JSONMap(merged)
		edits = append(edits, model.EditEntry{Field: "contacts", OldValue: fmt.Sprint(len(job.Contacts)), NewValue: fmt.Sprint(len(merged)), EditedAt: at})
	}

	if len(values) == 0 {
		return job, nil
	}

	if err := e.store.UpdateJob(ctx, jobID, values, edits); err != nil {
		return nil, err
	}

	e.logger.Info("job updated", zap.String("job_id", jobID), zap.Int("fields", len(values)))
	return e.store.GetJob(ctx, jobID)
}

// Timeline 返回职位的阶段历史，按发生顺序。
func (e *Engine) Timeline(ctx context.Context, jobID string) ([]model.StageTransition, error) {
	return e.store.Transitions(ctx, jobID)
}

// WithNow 替换时间源，供测试注入固定时间。
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ApplyDetections 消费邮件状态识别结果，逐条转为普通阶段流转。
// 协作方降级时返回空结果而非错误；单条识别失败只记录日志，不影响其余。
func (e *Engine) ApplyDetections(ctx context.Context, detector collab.EmailStatusDetector, opts collab.Options) (int, error) {
	detections, err := collab.Do(ctx, e.logger, "email-status-detector", opts,
		func(ctx context.Context) ([]collab.StatusDetection, error) {
			return detector.Detect(ctx)
		})
	if err != nil {
		if errors.Is(err, model.ErrDegraded) {
			e.logger.Warn("email detection degraded, continuing without updates", zap.Error(err))
			return 0, nil
		}
		return 0, err
	}

	applied := 0
	for _, d := range detections {
		if strings.TrimSpace(d.JobID) == "" {
			continue
		}
		if _, err := e.Move(ctx, d.JobID, d.Status, d.Timestamp); err != nil {
			e.logger.Warn("detection skipped",
				zap.String("job_id", d.JobID),
				zap.String("status", d.Status),
				zap.Error(err),
			)
			continue
		}
		applied++
	}
	return applied, nil
}
