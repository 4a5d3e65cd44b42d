package model

import "github.com/lib/pq"

// AvailabilityOptions 可选的空闲时段
var AvailabilityOptions = []string{
	"Weekday Mornings",
	"Weekday Afternoons",
	"Weekday Evenings",
	"Weekend Mornings",
	"Weekend Afternoons",
	"Weekend Evenings",
}

// Profile 个人技能档案表，对应 profiles（与 users 1:1）
type Profile struct {
	UserID         string         `gorm:"type:uuid;primaryKey"                json:"user_id"`
	Email          string         `gorm:"type:varchar(255);not null"          json:"-"`
	Name           string         `gorm:"type:varchar(100);not null"          json:"name"`
	Location       string         `gorm:"type:varchar(200);not null"          json:"location"`
	SkillsOffered  pq.StringArray `gorm:"type:text[];not null;default:'{}'"   json:"skills_offered"`
	SkillsWanted   pq.StringArray `gorm:"type:text[];not null;default:'{}'"   json:"skills_wanted"`
	Availability   pq.StringArray `gorm:"type:text[];not null;default:'{}'"   json:"availability"`
	IsPublic       bool           `gorm:"not null"                            json:"is_public"`
	ProfilePicture *string        `gorm:"column:profile_picture;type:text"    json:"profile_picture,omitempty"` // data URI
	BaseModel
}

// TableName 指定表名
func (Profile) TableName() string { return "profiles" }
