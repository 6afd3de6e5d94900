package notifier

import (
	"context"

	"job-compass/internal/scheduler"

	"go.uber.org/zap"
)

// LogNotifier 仅记录提醒摘要，适合开发阶段使用。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify 逐条打印提醒内容。
func (n LogNotifier) Notify(ctx context.Context, digest scheduler.Digest) error {
	for _, card := range digest.Overdue {
		n.logger.Warn("deadline overdue",
			zap.String("job_id", card.JobID),
			zap.Int("days_past", -card.DaysRemaining),
		)
	}
	for _, card := range digest.Urgent {
		if card.DaysRemaining < 0 {
			continue
		}
		n.logger.Warn("deadline imminent",
			zap.String("job_id", card.JobID),
			zap.Int("days_remaining", card.DaysRemaining),
		)
	}
	for _, fu := range digest.FollowUps {
		n.logger.Info("follow-up suggested",
			zap.String("job_id", fu.JobID),
			zap.String("company", fu.Company),
			zap.String("stage", string(fu.Stage)),
			zap.Int("idle_days", fu.IdleDays),
		)
	}
	return nil
}
