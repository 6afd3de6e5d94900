package model

import (
	"time"

	"gorm.io/datatypes"
)

// CandidateProfile 表示候选人画像，匹配计算期间视为不可变。
type CandidateProfile struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	Name       string            `json:"name"`
	Skills     datatypes.JSONMap `json:"skills"`
	Experience []ExperienceEntry `gorm:"foreignKey:ProfileID" json:"experience,omitempty"`
	Education  []EducationEntry  `gorm:"foreignKey:ProfileID" json:"education,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// HasSkill 判断候选人是否具备指定技能。
func (p *CandidateProfile) HasSkill(name string) bool {
	_, ok := p.Skills[name]
	return ok
}

// SkillList 返回候选人技能名列表，顺序不保证。
func (p *CandidateProfile) SkillList() []string {
	skills := make([]string, 0, len(p.Skills))
	for name := range p.Skills {
		skills = append(skills, name)
	}
	return skills
}

// ExperienceEntry 表示一段工作经历。
type ExperienceEntry struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	ProfileID   string     `gorm:"index" json:"profile_id"`
	Role        string     `json:"role"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// EducationEntry 表示一段教育经历。
type EducationEntry struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	ProfileID string `gorm:"index" json:"profile_id"`
	School    string `json:"school"`
	Degree    string `json:"degree"`
	Field     string `json:"field"`
}
