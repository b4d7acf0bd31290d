package router

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/rehiy/modem-fota/handler"
)

// Apply 注册全部路由，webroot 为空或不存在时不提供静态文件
func Apply(webroot string) *mux.Router {
	r := mux.NewRouter()

	// API 路由
	api := r.PathPrefix("/api").Subrouter()
	ModemRegister(api)
	FotaRegister(api)
	WebhookRegister(api)
	SettingRegister(api)

	// WebSocket
	WebSocketRegister(r)

	// 静态文件服务
	if webroot != "" {
		if info, err := os.Stat(webroot); err == nil && info.IsDir() {
			StaticServer(r, webroot)
		}
	}

	return r
}

func ModemRegister(r *mux.Router) {
	mh := handler.NewModemHandler()

	// 模块列表
	r.HandleFunc("/modem/list", mh.ListModems).Methods("GET")

	// 模块操作
	r.HandleFunc("/modem/send", mh.SendCommand).Methods("POST")
	r.HandleFunc("/modem/info", mh.GetModemInfo).Methods("GET")
	r.HandleFunc("/modem/network", mh.GetNetworkStatus).Methods("GET")
}

func FotaRegister(r *mux.Router) {
	fh := handler.NewFotaHandler()

	// 升级任务
	r.HandleFunc("/fota/start", fh.StartUpgrade).Methods("POST")
	r.HandleFunc("/fota/status", fh.GetStatus).Methods("GET")
	r.HandleFunc("/fota/cancel", fh.CancelUpgrade).Methods("POST")

	// 升级记录
	r.HandleFunc("/fota/history", fh.ListHistory).Methods("GET")
	r.HandleFunc("/fota/history/delete", fh.DeleteHistory).Methods("POST")

	// 错误码
	r.HandleFunc("/fota/codes", fh.ListCodes).Methods("GET")
}

func WebhookRegister(r *mux.Router) {
	wh := handler.NewWebhookHandler()

	// Webhook配置管理
	r.HandleFunc("/webhook", wh.CreateWebhook).Methods("POST")
	r.HandleFunc("/webhook/list", wh.ListWebhooks).Methods("GET")
	r.HandleFunc("/webhook/get", wh.GetWebhook).Methods("GET")
	r.HandleFunc("/webhook/update", wh.UpdateWebhook).Methods("PUT")
	r.HandleFunc("/webhook/delete", wh.DeleteWebhook).Methods("DELETE")
	r.HandleFunc("/webhook/test", wh.TestWebhook).Methods("POST")
}

func SettingRegister(r *mux.Router) {
	sh := handler.NewSettingHandler()

	// 设置管理
	r.HandleFunc("/settings", sh.GetSettings).Methods("GET")
	r.HandleFunc("/settings/history", sh.UpdateHistorySettings).Methods("PUT")
	r.HandleFunc("/settings/webhook", sh.UpdateWebhookSettings).Methods("PUT")
}

func WebSocketRegister(r *mux.Router) {
	ws := handler.NewWebSocketHandler()

	r.HandleFunc("/ws/fota", ws.HandleWebSocket)
}

func StaticServer(r *mux.Router, webroot string) {
	fs := http.FileServer(http.Dir(webroot))
	r.PathPrefix("/").Handler(fs)
}
