package database

import (
	"fmt"
	"strconv"

	"github.com/rehiy/modem-fota/models"
)

const (
	KeyHistoryEnabled = "history_enabled"
	KeyWebhookEnabled = "webhook_enabled"
)

var defaultSettings = map[string]string{
	KeyHistoryEnabled: "true",
	KeyWebhookEnabled: "false",
}

// GetSettings 获取所有设置
func GetSettings() (map[string]string, error) {
	var settings []models.Setting
	if err := db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	result := make(map[string]string)
	for _, setting := range settings {
		result[setting.Key] = setting.Value
	}

	return result, nil
}

// IsHistoryEnabled 检查升级记录是否启用
func IsHistoryEnabled() bool {
	return getBool(KeyHistoryEnabled)
}

// SetHistoryEnabled 设置升级记录启用状态
func SetHistoryEnabled(enabled bool) error {
	return setBool(KeyHistoryEnabled, enabled)
}

// IsWebhookEnabled 检查webhook功能是否启用
func IsWebhookEnabled() bool {
	return getBool(KeyWebhookEnabled)
}

// SetWebhookEnabled 设置webhook功能启用状态
func SetWebhookEnabled(enabled bool) error {
	return setBool(KeyWebhookEnabled, enabled)
}

// InitDefaultSettings 初始化默认设置
func InitDefaultSettings() error {
	for key, value := range defaultSettings {
		setting := models.Setting{Key: key, Value: value}
		result := db.FirstOrCreate(&setting, models.Setting{Key: key})
		if result.Error != nil {
			return fmt.Errorf("failed to insert default setting: %w", result.Error)
		}
	}

	return nil
}

func getBool(key string) bool {
	if db == nil {
		return false
	}
	var setting models.Setting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return false
	}
	enabled, _ := strconv.ParseBool(setting.Value)
	return enabled
}

func setBool(key string, enabled bool) error {
	setting := models.Setting{Key: key, Value: strconv.FormatBool(enabled)}
	err := db.Where(models.Setting{Key: key}).Assign(setting).FirstOrCreate(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
