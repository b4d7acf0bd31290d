package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rehiy/modem-fota/database"
	"github.com/rehiy/modem-fota/modem"
	"github.com/rehiy/modem-fota/service"
)

type H map[string]any

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 按错误类型选择状态码
func respondError(w http.ResponseWriter, err error) {
	var verr *modem.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrModemNotFound),
		errors.Is(err, service.ErrNoJob),
		errors.Is(err, database.ErrUpgradeNotFound),
		errors.Is(err, database.ErrWebhookNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrModemNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrJobRunning),
		errors.Is(err, modem.ErrUpgradeInProgress):
		status = http.StatusConflict
	}

	respondJSON(w, status, H{"error": err.Error()})
}
