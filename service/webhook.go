package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rehiy/modem-fota/database"
	"github.com/rehiy/modem-fota/models"
)

const (
	webhookEvent       = "fota_finished"
	webhookConcurrency = 5
	webhookRetries     = 3
)

var (
	webhookCache     []models.Webhook
	webhookCacheTime time.Time
	webhookCacheMux  sync.RWMutex
	cacheTTL         = 30 * time.Second // 缓存30秒
)

// InvalidateWebhookCache 配置变更后清空缓存
func InvalidateWebhookCache() {
	webhookCacheMux.Lock()
	webhookCache = nil
	webhookCacheTime = time.Time{}
	webhookCacheMux.Unlock()
}

// WebhookService 升级结束时通知外部地址
type WebhookService struct {
	client     *http.Client
	retryDelay time.Duration
}

// NewWebhookService 创建webhook服务
func NewWebhookService() *WebhookService {
	return &WebhookService{
		client:     &http.Client{Timeout: 30 * time.Second},
		retryDelay: 2 * time.Second,
	}
}

// getCachedWebhooks 获取缓存的webhook列表
func (w *WebhookService) getCachedWebhooks() ([]models.Webhook, error) {
	webhookCacheMux.RLock()
	if time.Since(webhookCacheTime) < cacheTTL && len(webhookCache) > 0 {
		webhooks := webhookCache
		webhookCacheMux.RUnlock()
		return webhooks, nil
	}
	webhookCacheMux.RUnlock()

	// 缓存过期或为空，重新查询
	webhooks, err := database.GetEnabledWebhookList()
	if err != nil {
		return nil, err
	}

	webhookCacheMux.Lock()
	webhookCache = webhooks
	webhookCacheTime = time.Now()
	webhookCacheMux.Unlock()

	return webhooks, nil
}

// HandleUpgradeFinished 异步触发webhook，不阻塞升级任务
func (w *WebhookService) HandleUpgradeFinished(rec *models.Upgrade) {
	if !database.Ready() || !database.IsWebhookEnabled() {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Webhook] Panic recovered: %v", r)
			}
		}()
		if err := w.TriggerWebhooks(rec); err != nil {
			log.Printf("[Webhook] Failed to trigger webhooks: %v", err)
		}
	}()
}

// TriggerWebhooks 触发所有启用的webhook
func (w *WebhookService) TriggerWebhooks(rec *models.Upgrade) error {
	webhooks, err := w.getCachedWebhooks()
	if err != nil {
		return fmt.Errorf("failed to get enabled webhooks: %w", err)
	}

	if len(webhooks) == 0 {
		log.Printf("[Webhook] No enabled webhooks found")
		return nil
	}

	// 限制并发数
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, webhookConcurrency)

	for _, webhook := range webhooks {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(wh models.Webhook) {
			defer wg.Done()
			defer func() { <-semaphore }()

			w.triggerWebhook(&wh, rec)
		}(webhook)
	}

	wg.Wait()
	log.Printf("[Webhook] Triggered %d webhooks for %s", len(webhooks), rec.ModemName)

	return nil
}

// triggerWebhook 触发单个webhook，5xx 和网络错误时重试
func (w *WebhookService) triggerWebhook(webhook *models.Webhook, rec *models.Upgrade) error {
	// 准备payload，模板错误不重试
	payload, err := w.preparePayload(webhook, rec)
	if err != nil {
		log.Printf("[Webhook] Failed to prepare payload for %s: %v", webhook.Name, err)
		return err
	}

	retryDelay := w.retryDelay
	for attempt := 0; attempt < webhookRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Webhook] Retry attempt %d for webhook %s", attempt, webhook.Name)
			time.Sleep(retryDelay)
			retryDelay *= 2 // 指数退避
		}

		status, err := w.post(webhook.URL, payload)
		if err != nil {
			log.Printf("[Webhook] Failed to send request to %s (attempt %d): %v", webhook.Name, attempt+1, err)
			continue
		}

		if status >= 200 && status < 300 {
			log.Printf("[Webhook] Successfully triggered %s (status: %d)", webhook.Name, status)
			return nil
		}

		log.Printf("[Webhook] Failed to trigger %s (status: %d, attempt %d)", webhook.Name, status, attempt+1)
		if status < 500 {
			return fmt.Errorf("webhook %s rejected with status %d", webhook.Name, status)
		}
	}

	return fmt.Errorf("failed to trigger webhook %s after %d attempts", webhook.Name, webhookRetries)
}

func (w *WebhookService) post(url string, payload []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Modem-FOTA/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// preparePayload 准备webhook payload
func (w *WebhookService) preparePayload(webhook *models.Webhook, rec *models.Upgrade) ([]byte, error) {
	// 如果template为空或不是有效的JSON，使用默认模板
	if webhook.Template == "" || webhook.Template == "{}" {
		return w.getDefaultPayload(rec)
	}

	var template map[string]any
	if err := json.Unmarshal([]byte(webhook.Template), &template); err != nil {
		log.Printf("[Webhook] Invalid template for %s, using default: %v", webhook.Name, err)
		return w.getDefaultPayload(rec)
	}

	return json.Marshal(w.replaceTemplateVariables(template, rec))
}

// getDefaultPayload 获取默认payload
func (w *WebhookService) getDefaultPayload(rec *models.Upgrade) ([]byte, error) {
	payload := map[string]any{
		"event":     webhookEvent,
		"data":      rec,
		"timestamp": time.Now().Unix(),
	}

	return json.Marshal(payload)
}

// replaceTemplateVariables 替换模板中的变量
func (w *WebhookService) replaceTemplateVariables(template map[string]any, rec *models.Upgrade) map[string]any {
	result := make(map[string]any)

	for key, value := range template {
		switch v := value.(type) {
		case string:
			result[key] = w.replaceStringVariables(v, rec)
		case map[string]any:
			result[key] = w.replaceTemplateVariables(v, rec)
		default:
			result[key] = value
		}
	}

	return result
}

// replaceStringVariables 替换字符串中的变量
func (w *WebhookService) replaceStringVariables(s string, rec *models.Upgrade) string {
	code := ""
	if rec.ResultCode != nil {
		code = strconv.Itoa(*rec.ResultCode)
	}

	return strings.NewReplacer(
		"{{event}}", webhookEvent,
		"{{modem}}", rec.ModemName,
		"{{url}}", rec.URL,
		"{{phase}}", rec.Phase,
		"{{result_code}}", code,
		"{{message}}", rec.Message,
		"{{from_version}}", rec.FromVersion,
		"{{to_version}}", rec.ToVersion,
		"{{from_version_number}}", rec.FromVersionNumber,
		"{{to_version_number}}", rec.ToVersionNumber,
	).Replace(s)
}

// Test 使用示例记录测试webhook
func (w *WebhookService) Test(webhook *models.Webhook) error {
	code := 0
	now := time.Now()
	sample := &models.Upgrade{
		ModemName:         "ttyUSB0",
		URL:               "http://example.com/EG800K_01.200-01.300.bin",
		Mode:              1,
		Timeout:           50,
		Phase:             "succeeded",
		ResultCode:        &code,
		Message:           "upgrade succeeded",
		Progress:          100,
		FromVersion:       "EG800KEULCR07A07M04_01.200.01.200",
		FromVersionNumber: "01.200.01.200",
		ToVersion:         "EG800KEULCR07A07M04_01.300.01.300",
		ToVersionNumber:   "01.300.01.300",
		StartedAt:         now.Add(-3 * time.Minute),
		FinishedAt:        &now,
	}

	return w.triggerWebhook(webhook, sample)
}
