package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rehiy/modem-fota/database"
	"github.com/rehiy/modem-fota/models"
	"github.com/rehiy/modem-fota/modem"
	"github.com/rehiy/modem-fota/service"
)

// FotaHandler 升级处理器
type FotaHandler struct {
	fs *service.FotaService
}

// NewFotaHandler 创建新的升级处理器
func NewFotaHandler() *FotaHandler {
	return &FotaHandler{
		fs: service.GetFotaService(),
	}
}

// StartUpgrade 在后台开始升级
func (h *FotaHandler) StartUpgrade(w http.ResponseWriter, r *http.Request) {
	var req service.FotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if req.Name == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "name is empty"})
		return
	}

	rec, err := h.fs.Start(req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, rec)
}

// GetStatus 返回模块升级状态
func (h *FotaHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "name is empty"})
		return
	}

	status, err := h.fs.Status(name)
	if err != nil {
		respondError(w, err)
		return
	}

	// module=1 时附带模块侧状态
	if r.URL.Query().Get("module") == "1" {
		module, err := h.fs.ModuleStatus(name)
		if err != nil {
			respondError(w, err)
			return
		}
		status.ModuleStatus = module
	}

	respondJSON(w, http.StatusOK, status)
}

// CancelUpgrade 取消进行中的升级等待
func (h *FotaHandler) CancelUpgrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if err := h.fs.Cancel(req.Name); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, H{"status": "canceled", "name": req.Name})
}

// ListHistory 获取升级记录列表
func (h *FotaHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filter := &models.UpgradeFilter{}
	query := r.URL.Query()

	// 解析查询参数
	if modemName := query.Get("modem_name"); modemName != "" {
		filter.ModemName = modemName
	}

	if phase := query.Get("phase"); phase != "" {
		if _, ok := modem.ParsePhase(phase); !ok {
			respondJSON(w, http.StatusBadRequest, H{"error": "invalid phase"})
			return
		}
		filter.Phase = phase
	}

	if startTime := query.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filter.StartTime = t
		}
	}

	if endTime := query.Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filter.EndTime = t
		}
	}

	// 分页参数
	filter.Limit = 50 // 默认每页50条
	if limit := query.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 && l <= 200 {
			filter.Limit = l
		}
	}

	if offset := query.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	list, total, err := database.GetUpgradeList(filter)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, H{
		"data":   list,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// DeleteHistory 批量删除升级记录
func (h *FotaHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int `json:"ids"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}

	if len(req.IDs) == 0 {
		respondJSON(w, http.StatusBadRequest, H{"error": "no IDs provided"})
		return
	}

	count, err := database.DeleteUpgrades(req.IDs)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, H{"error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, H{
		"status": "deleted",
		"count":  count,
	})
}

// ListCodes 返回错误码表
func (h *FotaHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, modem.CodeTables())
}
