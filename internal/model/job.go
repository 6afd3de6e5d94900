package model

import (
	"time"

	"gorm.io/datatypes"
)

// Stage 表示申请所处的管道阶段。
type Stage string

const (
	StageInterested  Stage = "Interested"
	StageApplied     Stage = "Applied"
	StagePhoneScreen Stage = "Phone Screen"
	StageInterview   Stage = "Interview"
	StageOffer       Stage = "Offer"
	StageRejected    Stage = "Rejected"
)

// Stages 按推进顺序列出全部阶段，Rejected 排在最后。
var Stages = []Stage{
	StageInterested,
	StageApplied,
	StagePhoneScreen,
	StageInterview,
	StageOffer,
	StageRejected,
}

// stageRank 用于比较阶段先后，Rejected 不参与推进排序。
var stageRank = map[Stage]int{
	StageInterested:  0,
	StageApplied:     1,
	StagePhoneScreen: 2,
	StageInterview:   3,
	StageOffer:       4,
}

// ParseStage 校验并返回标准阶段值。
func ParseStage(s string) (Stage, bool) {
	for _, stage := range Stages {
		if string(stage) == s {
			return stage, true
		}
	}
	return "", false
}

// Rank 返回阶段的推进序号；Rejected 返回 -1。
func (s Stage) Rank() int {
	if r, ok := stageRank[s]; ok {
		return r
	}
	return -1
}

// MaxDescriptionLen 职位描述长度上限。
const MaxDescriptionLen = 2000

// JobApplication 表示一条求职申请记录
// - Skills: 岗位技能要求，键为技能名，值为 true 表示必须、false 表示加分
// - Stage: 当前阶段，始终等于最后一条 StageTransition 的 To
// - History/Edits: 只追加的历史，由 storage 独占写入
// - CreatedAt/UpdatedAt: 由 GORM 自动维护

type JobApplication struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	Title         string            `json:"title"`
	Company       string            `json:"company"`
	Location      string            `json:"location"`
	SalaryRange   string            `json:"salary_range"`
	URL           string            `json:"url"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	Description   string            `json:"description"`
	Industry      string            `json:"industry"`
	JobType       string            `json:"job_type"`
	Stage         Stage             `json:"stage"`
	Skills        datatypes.JSONMap `json:"skills"`
	Contacts      datatypes.JSONMap `json:"contacts"`
	Notes         string            `json:"notes"`
	Archived      bool              `gorm:"index" json:"archived"`
	ArchiveReason string            `json:"archive_reason,omitempty"`
	History       []StageTransition `gorm:"foreignKey:JobID" json:"history,omitempty"`
	Edits         []EditEntry       `gorm:"foreignKey:JobID" json:"edits,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// RequiredSkills 返回岗位技能名列表（含加分项），顺序不保证。
func (j *JobApplication) RequiredSkills() []string {
	skills := make([]string, 0, len(j.Skills))
	for name := range j.Skills {
		skills = append(skills, name)
	}
	return skills
}

// SkillRequired 判断技能是否标记为必须。
func (j *JobApplication) SkillRequired(name string) bool {
	v, ok := j.Skills[name]
	if !ok {
		return false
	}
	required, _ := v.(bool)
	return required
}

// LastTransition 返回最后一条阶段记录，历史为空时返回 nil。
func (j *JobApplication) LastTransition() *StageTransition {
	if len(j.History) == 0 {
		return nil
	}
	return &j.History[len(j.History)-1]
}

// StageTransition 表示一次阶段变更，只追加不修改。
type StageTransition struct {
	ID      uint      `gorm:"primaryKey" json:"-"`
	JobID   string    `gorm:"index" json:"job_id"`
	From    Stage     `json:"from"`
	To      Stage     `json:"to"`
	MovedAt time.Time `json:"moved_at"`
}

// EditEntry 表示一次字段编辑，与阶段历史分开存储。
type EditEntry struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	JobID    string    `gorm:"index" json:"job_id"`
	Field    string    `json:"field"`
	OldValue string    `json:"old_value"`
	NewValue string    `json:"new_value"`
	EditedAt time.Time `json:"edited_at"`
}
