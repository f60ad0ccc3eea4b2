package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type ResumeStatus string

const (
	ResumeUploaded  ResumeStatus = "uploaded"
	ResumeAnalyzing ResumeStatus = "analyzing"
	ResumeAnalyzed  ResumeStatus = "analyzed"
	ResumeFailed    ResumeStatus = "failed"
)

type Resume struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"column:user_id;type:uuid;index" json:"userId"`
	FileName string `gorm:"column:file_name;type:text" json:"fileName"`
	FilePath string `gorm:"column:file_path;type:text" json:"filePath"`
	FileSize int    `gorm:"column:file_size;type:integer" json:"fileSize"`
	MimeType string `gorm:"column:mime_type;type:text" json:"mimeType"`

	Status ResumeStatus   `gorm:"column:status;type:text" json:"status"`
	Skills pq.StringArray `gorm:"column:skills;type:text[]" json:"skills"`

	// raw ResumeAnalysis JSON
	Analysis datatypes.JSON `gorm:"column:analysis;type:jsonb" json:"analysis,omitempty"`
	ATSScore int            `gorm:"column:ats_score;type:integer" json:"atsScore"`

	UploadedAt time.Time  `gorm:"column:uploaded_at;type:timestamptz" json:"uploadedAt"`
	AnalyzedAt *time.Time `gorm:"column:analyzed_at;type:timestamptz" json:"analyzedAt,omitempty"`
}

func (Resume) TableName() string { return "resumes" }

type ResumeAnalysis struct {
	Summary        string   `json:"summary"`
	Skills         []string `json:"skills"`
	Strengths      []string `json:"strengths"`
	Improvements   []string `json:"improvements"`
	SuggestedRoles []string `json:"suggestedRoles"`
	ATSScore       int      `json:"atsScore"`
}
