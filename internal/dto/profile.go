package dto

// ── 技能档案 DTO ──

// UpsertProfileRequest 创建或更新本人档案
type UpsertProfileRequest struct {
	Name          string   `json:"name"           binding:"required,max=100"`
	Location      string   `json:"location"       binding:"max=200"`
	SkillsOffered []string `json:"skills_offered" binding:"max=50,dive,max=60"`
	SkillsWanted  []string `json:"skills_wanted"  binding:"max=50,dive,max=60"`
	Availability  []string `json:"availability"`
	IsPublic      *bool    `json:"is_public"` // 缺省为公开
}

// ListProfilesRequest 浏览公开档案
type ListProfilesRequest struct {
	Search       string `form:"search"       binding:"omitempty,max=100"`
	Availability string `form:"availability" binding:"omitempty,max=50"`
}

// ProfileResponse 档案信息
type ProfileResponse struct {
	UserID         string   `json:"user_id"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	SkillsOffered  []string `json:"skills_offered"`
	SkillsWanted   []string `json:"skills_wanted"`
	Availability   []string `json:"availability"`
	IsPublic       bool     `json:"is_public"`
	ProfilePicture *string  `json:"profile_picture,omitempty"`
	RequestPending bool     `json:"request_pending"` // 当前用户已向其发出待处理申请
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// AdminProfileResponse 管理端档案信息（含邮箱）
type AdminProfileResponse struct {
	ProfileResponse
	Email string `json:"email"`
}

// PreferenceRequest 更新通知偏好
type PreferenceRequest struct {
	SwapEmails *bool `json:"swap_emails" binding:"required"`
}

// PreferenceResponse 通知偏好
type PreferenceResponse struct {
	SwapEmails bool `json:"swap_emails"`
}
