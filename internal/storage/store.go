package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"job-compass/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Store 封装 SQLite 数据库访问，是 JobApplication 与 CandidateProfile 的唯一写入方。
// 阶段历史与编辑历史只追加，写入在事务中完成，不会留下部分提交。
type Store struct {
	db *gorm.DB
}

// JobQuery 提供职位查询过滤与排序条件。
type JobQuery struct {
	Keyword  string
	Stage    model.Stage
	Location string
	Archived *bool
	SortBy   string
	Limit    int
	Offset   int
}

// Snapshot 表示一次一致性读取：职位及其完整历史来自同一事务。
type Snapshot struct {
	TakenAt time.Time
	Jobs    []model.JobApplication
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&model.JobApplication{},
		&model.StageTransition{},
		&model.EditEntry{},
		&model.CandidateProfile{},
		&model.ExperienceEntry{},
		&model.EducationEntry{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// CreateJob 校验并写入新职位，缺少 ID 时生成 UUID，阶段默认 Interested。
func (s *Store) CreateJob(ctx context.Context, job *model.JobApplication) error {
	if strings.TrimSpace(job.Title) == "" {
		return fmt.Errorf("%w: title required", model.ErrValidation)
	}
	if strings.TrimSpace(job.Company) == "" {
		return fmt.Errorf("%w: company required", model.ErrValidation)
	}
	if len([]rune(job.Description)) > model.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", model.ErrValidation, model.MaxDescriptionLen)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Stage == "" {
		job.Stage = model.StageInterested
	} else if _, ok := model.ParseStage(string(job.Stage)); !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownStage, job.Stage)
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob 根据 ID 获取职位，历史按写入顺序加载。
func (s *Store) GetJob(ctx context.Context, id string) (*model.JobApplication, error) {
	var job model.JobApplication
	err := s.db.WithContext(ctx).
		Preload("History", orderByID).
		Preload("Edits", orderByID).
		First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// ListJobs 返回满足过滤条件的职位列表。
func (s *Store) ListJobs(ctx context.Context, q JobQuery) ([]model.JobApplication, error) {
	var jobs []model.JobApplication
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := applyJobFilters(s.db.WithContext(ctx).Model(&model.JobApplication{}), q)
	query = query.Order(sortClause(q.SortBy))
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// CountJobs 返回满足过滤条件的职位数量。
func (s *Store) CountJobs(ctx context.Context, q JobQuery) (int64, error) {
	var total int64
	query := applyJobFilters(s.db.WithContext(ctx).Model(&model.JobApplication{}), q)
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}

// AppendTransition 在一个事务内追加阶段记录并更新当前阶段。
// 时间早于最后一条历史记录时拒绝写入，状态保持不变。
func (s *Store) AppendTransition(ctx context.Context, jobID string, target model.Stage, at time.Time) (*model.StageTransition, error) {
	var tr model.StageTransition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.JobApplication
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job %s", model.ErrNotFound, jobID)
			}
			return fmt.Errorf("load job: %w", err)
		}

		var last model.StageTransition
		err := tx.Where("job_id = ?", jobID).Order("id DESC").First(&last).Error
		switch {
		case err == nil:
			if at.Before(last.MovedAt) {
				return fmt.Errorf("%w: %s precedes last transition at %s",
					model.ErrNonMonotonicTime, at.Format(time.RFC3339), last.MovedAt.Format(time.RFC3339))
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No history yet; any timestamp is acceptable.
		default:
			return fmt.Errorf("load last transition: %w", err)
		}

		tr = model.StageTransition{JobID: jobID, From: job.Stage, To: target, MovedAt: at}
		if err := tx.Create(&tr).Error; err != nil {
			return fmt.Errorf("append transition: %w", err)
		}
		if err := tx.Model(&model.JobApplication{}).Where("id = ?", jobID).
			Update("stage", target).Error; err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// UpdateJob 在一个事务内合并字段编辑并追加编辑历史，不改变阶段。
func (s *Store) UpdateJob(ctx context.Context, jobID string, patch map[string]any, edits []model.EditEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.JobApplication{}).Where("id = ?", jobID).Updates(patch)
		if res.Error != nil {
			return fmt.Errorf("update job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job %s", model.ErrNotFound, jobID)
		}
		for i := range edits {
			edits[i].JobID = jobID
			if err := tx.Create(&edits[i]).Error; err != nil {
				return fmt.Errorf("append edit entry: %w", err)
			}
		}
		return nil
	})
}

// ArchiveJobs 批量归档职位并记录原因，返回受影响条数。
func (s *Store) ArchiveJobs(ctx context.Context, ids []string, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&model.JobApplication{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"archived": true, "archive_reason": reason})
	if res.Error != nil {
		return 0, fmt.Errorf("archive jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RestoreJob 取消归档。
func (s *Store) RestoreJob(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&model.JobApplication{}).
		Where("id = ?", id).
		Updates(map[string]any{"archived": false, "archive_reason": ""})
	if res.Error != nil {
		return fmt.Errorf("restore job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s", model.ErrNotFound, id)
	}
	return nil
}

// DeleteJob 删除职位及其全部历史。
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.JobApplication{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job %s", model.ErrNotFound, id)
		}
		if err := tx.Delete(&model.StageTransition{}, "job_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete transitions: %w", err)
		}
		if err := tx.Delete(&model.EditEntry{}, "job_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete edits: %w", err)
		}
		return nil
	})
}

// Transitions 返回职位的阶段历史，按写入顺序。
func (s *Store) Transitions(ctx context.Context, jobID string) ([]model.StageTransition, error) {
	var trs []model.StageTransition
	if err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&trs).Error; err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	return trs, nil
}

// CreateProfile 写入候选人画像。
func (s *Store) CreateProfile(ctx context.Context, profile *model.CandidateProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// GetProfile 根据 ID 获取候选人画像。
func (s *Store) GetProfile(ctx context.Context, id string) (*model.CandidateProfile, error) {
	var profile model.CandidateProfile
	err := s.db.WithContext(ctx).
		Preload("Experience", orderByID).
		Preload("Education", orderByID).
		First(&profile, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: profile %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// Snapshot 在单个事务内读取全部职位及历史，供只读计算方使用。
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TakenAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("History", orderByID).
			Order("created_at ASC").
			Find(&snap.Jobs).Error
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func applyJobFilters(db *gorm.DB, q JobQuery) *gorm.DB {
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		pattern := "%" + kw + "%"
		db = db.Where("title LIKE ? OR company LIKE ? OR description LIKE ?", pattern, pattern, pattern)
	}
	if q.Stage != "" {
		db = db.Where("stage = ?", q.Stage)
	}
	if loc := strings.TrimSpace(q.Location); loc != "" {
		db = db.Where("location LIKE ?", "%"+loc+"%")
	}
	if q.Archived != nil {
		db = db.Where("archived = ?", *q.Archived)
	}
	return db
}

func sortClause(sortBy string) string {
	switch sortBy {
	case "deadline":
		return "deadline ASC"
	case "company":
		return "company ASC"
	case "date_added", "":
		return "created_at DESC"
	default:
		return "created_at DESC"
	}
}
