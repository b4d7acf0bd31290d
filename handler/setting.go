package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rehiy/modem-fota/database"
)

// SettingHandler 设置处理器
type SettingHandler struct{}

// NewSettingHandler 创建新的设置处理器
func NewSettingHandler() *SettingHandler {
	return &SettingHandler{}
}

// GetSettings 获取所有设置
func (h *SettingHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetSettings()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// UpdateHistorySettings 开关升级记录
func (h *SettingHandler) UpdateHistorySettings(w http.ResponseWriter, r *http.Request) {
	updateSwitch(w, r, database.KeyHistoryEnabled, database.SetHistoryEnabled)
}

// UpdateWebhookSettings 开关升级结束通知
func (h *SettingHandler) UpdateWebhookSettings(w http.ResponseWriter, r *http.Request) {
	updateSwitch(w, r, database.KeyWebhookEnabled, database.SetWebhookEnabled)
}

// updateSwitch 读取 {"<key>": bool} 并保存
func updateSwitch(w http.ResponseWriter, r *http.Request, key string, set func(bool) error) {
	var req map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	enabled, ok := req[key]
	if !ok {
		respondJSON(w, http.StatusBadRequest, H{"error": key + " is required"})
		return
	}

	if err := set(enabled); err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, H{
		"status": "updated",
		key:      enabled,
	})
}
