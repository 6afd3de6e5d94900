package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"job-compass/internal/collab"
	"job-compass/internal/deadline"
	"job-compass/internal/model"
	"job-compass/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config 用于调度配置。Interval 支持时长或五段 cron 表达式。
type Config struct {
	Interval      string `yaml:"interval" json:"interval"`
	Timeout       string `yaml:"timeout" json:"timeout"`
	FollowUpAfter int    `yaml:"follow_up_after_days" json:"follow_up_after_days"`
}

// Store 抽象存储接口，便于测试替换。
type Store interface {
	Snapshot(ctx context.Context) (storage.Snapshot, error)
}

// StatusApplier 应用邮件状态检测结果。
type StatusApplier interface {
	ApplyDetections(ctx context.Context, detector collab.EmailStatusDetector, opts collab.Options) (int, error)
}

// FollowUp 表示一条跟进提醒：职位长时间无进展。
type FollowUp struct {
	JobID     string
	Title     string
	Company   string
	Stage     model.Stage
	IdleDays  int
	LastMoved time.Time
}

// Digest 为一次巡检的提醒摘要。
type Digest struct {
	GeneratedAt time.Time
	Urgent      []deadline.Card
	Overdue     []deadline.Card
	FollowUps   []FollowUp
}

// Empty 判断摘要是否无需通知。
func (d Digest) Empty() bool {
	return len(d.Urgent) == 0 && len(d.Overdue) == 0 && len(d.FollowUps) == 0
}

// Notifier 用于发送提醒摘要。
type Notifier interface {
	Notify(ctx context.Context, digest Digest) error
}

// Scheduler 周期性巡检截止日期与停滞职位并发送提醒。
type Scheduler struct {
	store     Store
	applier   StatusApplier
	detector  collab.EmailStatusDetector
	notif     Notifier
	logger    *zap.Logger
	interval  time.Duration
	cron      *cronSchedule
	timeout   time.Duration
	idleAfter time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(s Store, n Notifier, logger *zap.Logger, cfg Config) *Scheduler {
	interval, cron := parseSchedule(cfg.Interval)
	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	idleDays := cfg.FollowUpAfter
	if idleDays <= 0 {
		idleDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		store:     s,
		notif:     n,
		logger:    logger,
		interval:  interval,
		cron:      cron,
		timeout:   timeout,
		idleAfter: time.Duration(idleDays) * 24 * time.Hour,
		newTicker: defaultTicker,
		now:       time.Now,
	}
}

// WithDetection 启用邮件状态检测：每次巡检前先应用检测结果。
func (s *Scheduler) WithDetection(applier StatusApplier, detector collab.EmailStatusDetector) {
	s.applier = applier
	s.detector = detector
}

// Start 启动巡检循环，直到上下文取消。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store == nil || s.notif == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					if _, err := s.runOnce(ctx); err != nil {
						return err
					}
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 对外暴露单次巡检接口，便于手动触发。
// 返回提醒条目总数。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) (int, error) {
	if s.running.Swap(true) {
		return 0, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.applier != nil && s.detector != nil {
		applied, err := s.applier.ApplyDetections(ctx, s.detector, collab.Options{})
		if err != nil {
			return 0, fmt.Errorf("apply detections: %w", err)
		}
		if applied > 0 {
			s.logger.Info("email detections applied", zap.Int("count", applied))
		}
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}

	digest := s.buildDigest(snap)
	if digest.Empty() {
		return 0, nil
	}

	if err := s.notif.Notify(ctx, digest); err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}

	total := len(digest.Urgent) + len(digest.FollowUps)
	s.logger.Info("reminder digest sent",
		zap.Int("urgent", len(digest.Urgent)),
		zap.Int("overdue", len(digest.Overdue)),
		zap.Int("follow_ups", len(digest.FollowUps)),
	)
	return total, nil
}

func (s *Scheduler) buildDigest(snap storage.Snapshot) Digest {
	now := s.now()
	report := deadline.Compute(now, snap.Jobs)

	urgent := make([]deadline.Card, 0, len(report.Cards))
	for _, card := range report.Cards {
		if card.Urgency == deadline.UrgencyRed {
			urgent = append(urgent, card)
		}
	}

	followUps := s.followUps(now, snap.Jobs)

	return Digest{
		GeneratedAt: now,
		Urgent:      urgent,
		Overdue:     report.Overdue,
		FollowUps:   followUps,
	}
}

// followUps 找出活跃阶段停滞超过 idleAfter 的职位。
func (s *Scheduler) followUps(now time.Time, jobs []model.JobApplication) []FollowUp {
	var out []FollowUp
	for _, job := range jobs {
		if job.Archived {
			continue
		}
		switch job.Stage {
		case model.StageApplied, model.StagePhoneScreen, model.StageInterview:
		default:
			continue
		}

		last := job.CreatedAt
		if t := job.LastTransition(); t != nil {
			last = t.MovedAt
		}
		idle := now.Sub(last)
		if idle < s.idleAfter {
			continue
		}

		out = append(out, FollowUp{
			JobID:     job.ID,
			Title:     job.Title,
			Company:   job.Company,
			Stage:     job.Stage,
			IdleDays:  int(idle / (24 * time.Hour)),
			LastMoved: last,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IdleDays != out[j].IdleDays {
			return out[i].IdleDays > out[j].IdleDays
		}
		return out[i].JobID < out[j].JobID
	})
	return out
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next, err := s.cron.next(s.now())
		if err != nil {
			return fmt.Errorf("compute next cron time: %w", err)
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := s.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func parseSchedule(value string) (time.Duration, *cronSchedule) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
			return d, nil
		}
		if schedule, err := parseCronSpec(trimmed); err == nil {
			return 0, schedule
		}
	}

	return time.Hour, nil
}
