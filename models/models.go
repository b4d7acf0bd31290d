package models

import "time"

// Upgrade 一次升级任务的记录
type Upgrade struct {
	ID                int        `json:"id" gorm:"primaryKey;autoIncrement"`
	ModemName         string     `json:"modem_name" gorm:"size:64;index"`
	URL               string     `json:"url" gorm:"size:1024"`
	Mode              int        `json:"mode"`
	Timeout           int        `json:"timeout"`
	Phase             string     `json:"phase" gorm:"size:32;index"`
	ResultCode        *int       `json:"result_code"`
	Message           string     `json:"message"`
	Progress          int        `json:"progress"`
	FromVersion       string     `json:"from_version" gorm:"size:128"`
	FromVersionNumber string     `json:"from_version_number" gorm:"size:32"`
	ToVersion         string     `json:"to_version" gorm:"size:128"`
	ToVersionNumber   string     `json:"to_version_number" gorm:"size:32"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// UpgradeFilter 升级记录查询条件
type UpgradeFilter struct {
	ModemName string
	Phase     string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// Webhook 升级结束通知配置
type Webhook struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"size:128"`
	URL       string    `json:"url" gorm:"size:1024"`
	Template  string    `json:"template" gorm:"type:text"`
	Enabled   bool      `json:"enabled" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting 键值设置
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
