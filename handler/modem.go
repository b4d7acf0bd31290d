package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rehiy/modem-fota/service"
)

// ModemHandler 调制解调器处理器
type ModemHandler struct {
	ms *service.ModemService
}

// NewModemHandler 创建新的调制解调器处理器
func NewModemHandler() *ModemHandler {
	return &ModemHandler{
		ms: service.GetModemService(),
	}
}

// ListModems 返回可用调制解调器的列表
func (h *ModemHandler) ListModems(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("scan") != "0" {
		h.ms.ScanModems()
	}
	respondJSON(w, http.StatusOK, h.ms.GetConnList())
}

// SendCommand 向调制解调器发送原始 AT 命令
func (h *ModemHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Command string `json:"command"`
		Timeout int    `json:"timeout"` // 毫秒
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, H{"error": err.Error()})
		return
	}
	if req.Command == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "command is empty"})
		return
	}
	// 升级指令只能经由 /api/fota/start 下发
	if isFotaCommand(req.Command) {
		respondJSON(w, http.StatusBadRequest, H{"error": "use /api/fota/start to start an upgrade"})
		return
	}

	conn, err := h.ms.GetConn(req.Name)
	if err != nil {
		respondError(w, err)
		return
	}

	res := conn.SendTimeout(req.Command, time.Duration(req.Timeout)*time.Millisecond)
	body := H{
		"name":     conn.Name,
		"command":  req.Command,
		"ok":       res.OK,
		"response": res.Text,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}

	respondJSON(w, http.StatusOK, body)
}

// GetModemInfo 重新读取模块信息
func (h *ModemHandler) GetModemInfo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "name is empty"})
		return
	}

	conn, err := h.ms.GetConn(name)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, H{
		"name": conn.Name,
		"info": conn.RefreshInfo(),
	})
}

// GetNetworkStatus 获取网络注册与信号
func (h *ModemHandler) GetNetworkStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondJSON(w, http.StatusBadRequest, H{"error": "name is empty"})
		return
	}

	conn, err := h.ms.GetConn(name)
	if err != nil {
		respondError(w, err)
		return
	}

	status := conn.QueryNetworkStatus()
	respondJSON(w, http.StatusOK, H{
		"name":       conn.Name,
		"registered": status.Registration.Registered(),
		"status":     status,
	})
}

func isFotaCommand(command string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(command)), "AT+QFOTADL=")
}
