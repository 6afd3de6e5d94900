package model

import "errors"

// 错误分类，调用方通过 errors.Is 判断类别而非具体类型。
var (
	// ErrValidation 表示请求字段缺失或超出限制，同步返回给调用方。
	ErrValidation = errors.New("validation failed")

	// ErrUnknownStage 表示目标阶段不在枚举集合内。
	ErrUnknownStage = errors.New("unknown stage")

	// ErrNonMonotonicTime 表示阶段变更时间早于最后一条历史记录，状态保持不变。
	ErrNonMonotonicTime = errors.New("non-monotonic transition time")

	// ErrNotFound 表示记录不存在。
	ErrNotFound = errors.New("record not found")

	// ErrDegraded 表示外部协作方重试后仍失败，结果字段标记缺失而非整体失败。
	ErrDegraded = errors.New("collaborator degraded")
)
