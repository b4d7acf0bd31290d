package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rehiy/modem-fota/models"
)

// ErrUpgradeNotFound 升级记录不存在
var ErrUpgradeNotFound = errors.New("upgrade record not found")

// CreateUpgrade 保存新的升级记录
func CreateUpgrade(upgrade *models.Upgrade) error {
	if upgrade.StartedAt.IsZero() {
		upgrade.StartedAt = time.Now()
	}

	if err := db.Create(upgrade).Error; err != nil {
		return fmt.Errorf("failed to save upgrade: %w", err)
	}
	return nil
}

// SaveUpgrade 更新升级记录
func SaveUpgrade(upgrade *models.Upgrade) error {
	if upgrade.ID == 0 {
		return CreateUpgrade(upgrade)
	}
	if err := db.Save(upgrade).Error; err != nil {
		return fmt.Errorf("failed to update upgrade: %w", err)
	}
	return nil
}

// GetUpgrade 根据ID获取升级记录
func GetUpgrade(id int) (*models.Upgrade, error) {
	var upgrade models.Upgrade
	if err := db.First(&upgrade, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUpgradeNotFound
		}
		return nil, fmt.Errorf("failed to get upgrade: %w", err)
	}
	return &upgrade, nil
}

// GetLatestUpgrade 获取模块最近一次升级记录
func GetLatestUpgrade(modemName string) (*models.Upgrade, error) {
	var upgrade models.Upgrade
	err := db.Where("modem_name = ?", modemName).Order("id DESC").First(&upgrade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUpgradeNotFound
		}
		return nil, fmt.Errorf("failed to get latest upgrade: %w", err)
	}
	return &upgrade, nil
}

// DeleteUpgrades 批量删除升级记录
func DeleteUpgrades(ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := db.Where("id IN ?", ids).Delete(&models.Upgrade{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete upgrades: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// GetUpgradeList 查询升级记录列表，返回当前页与总数
func GetUpgradeList(filter *models.UpgradeFilter) ([]models.Upgrade, int, error) {
	query := db.Model(&models.Upgrade{})

	if filter.ModemName != "" {
		query = query.Where("modem_name = ?", filter.ModemName)
	}
	if filter.Phase != "" {
		query = query.Where("phase = ?", filter.Phase)
	}
	if !filter.StartTime.IsZero() {
		query = query.Where("started_at >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query = query.Where("started_at <= ?", filter.EndTime)
	}

	// 查询总数
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count upgrades: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}

	// 查询列表
	var upgrades []models.Upgrade
	err := query.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&upgrades).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query upgrades: %w", err)
	}

	return upgrades, int(total), nil
}
