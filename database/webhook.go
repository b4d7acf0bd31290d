package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rehiy/modem-fota/models"
)

// ErrWebhookNotFound webhook 不存在
var ErrWebhookNotFound = errors.New("webhook not found")

// CreateWebhook 创建webhook配置
func CreateWebhook(webhook *models.Webhook) error {
	if err := db.Create(webhook).Error; err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// UpdateWebhook 更新webhook配置，不存在时返回 ErrWebhookNotFound
func UpdateWebhook(webhook *models.Webhook) error {
	result := db.Model(&models.Webhook{}).Where("id = ?", webhook.ID).Select("name", "url", "template", "enabled").Updates(webhook)
	if result.Error != nil {
		return fmt.Errorf("failed to update webhook: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// DeleteWebhook 删除webhook配置
func DeleteWebhook(id int) error {
	result := db.Delete(&models.Webhook{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// GetWebhook 根据ID获取webhook配置
func GetWebhook(id int) (*models.Webhook, error) {
	var webhook models.Webhook
	if err := db.First(&webhook, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &webhook, nil
}

// GetWebhookList 获取所有webhook配置
func GetWebhookList() ([]models.Webhook, error) {
	return findWebhooks(db)
}

// GetEnabledWebhookList 获取所有启用的webhook
func GetEnabledWebhookList() ([]models.Webhook, error) {
	return findWebhooks(db.Where("enabled = ?", true))
}

func findWebhooks(query *gorm.DB) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	if err := query.Order("created_at DESC").Find(&webhooks).Error; err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	return webhooks, nil
}
