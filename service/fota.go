package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rehiy/modem-fota/config"
	"github.com/rehiy/modem-fota/database"
	"github.com/rehiy/modem-fota/events"
	"github.com/rehiy/modem-fota/models"
	"github.com/rehiy/modem-fota/modem"
)

const (
	verifyAttempts = 3
	verifyRetry    = 5 * time.Second
)

var (
	fotaOnce     sync.Once
	fotaInstance *FotaService

	ErrJobRunning = errors.New("upgrade job already running")
	ErrNoJob      = errors.New("no running upgrade job")
)

// FotaRequest 升级请求
type FotaRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Mode    *int   `json:"mode,omitempty"`     // 缺省使用配置
	Timeout int    `json:"timeout,omitempty"`  // 下载超时（秒）
	MaxWait int    `json:"max_wait,omitempty"` // 等待结果的最长时间（秒）
}

// FotaStatus 模块升级状态
type FotaStatus struct {
	Name    string          `json:"name"`
	Running bool            `json:"running"`
	State   modem.State     `json:"state"`
	Record  *models.Upgrade `json:"record,omitempty"`

	ModuleStatus string `json:"module_status,omitempty"` // AT+QFOTADL? 应答
}

// job 一个进行中的升级任务
type job struct {
	mu     sync.Mutex
	rec    models.Upgrade
	seq    uint64 // 最近应用的状态序号
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) snapshot() models.Upgrade {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rec
}

// apply 把模块状态写入记录，返回阶段是否变化，过期的状态直接丢弃
func (j *job) apply(st modem.State) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if st.Seq != 0 && st.Seq <= j.seq {
		return false
	}
	j.seq = st.Seq

	phase := st.Phase.String()
	changed := j.rec.Phase != phase

	j.rec.Phase = phase
	j.rec.Progress = st.Progress
	j.rec.Message = st.Message
	if st.CurrentVersion != "" {
		j.rec.FromVersion = st.CurrentVersion
		j.rec.FromVersionNumber = st.VersionNumber
	}
	if st.ResultCode != nil {
		code := *st.ResultCode
		j.rec.ResultCode = &code
	}
	return changed
}

// FotaService 在后台执行升级任务，每个模块同时只有一个
type FotaService struct {
	mu   sync.Mutex
	jobs map[string]*job
	last map[string]models.Upgrade

	cfg      config.Fota
	modems   *ModemService
	webhooks *WebhookService
}

// GetFotaService 返回单例实例
func GetFotaService() *FotaService {
	fotaOnce.Do(func() {
		fotaInstance = &FotaService{
			jobs:     map[string]*job{},
			last:     map[string]models.Upgrade{},
			cfg:      config.Default().Fota,
			modems:   GetModemService(),
			webhooks: NewWebhookService(),
		}
	})
	return fotaInstance
}

// Configure 应用升级配置
func (s *FotaService) Configure(cfg config.Fota) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Start 校验请求并在后台开始升级，返回新建的记录
func (s *FotaService) Start(req FotaRequest) (*models.Upgrade, error) {
	conn, err := s.modems.GetConn(req.Name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	mreq := modem.Request{
		URL:     req.URL,
		Mode:    modem.ResetMode(cfg.ResetMode),
		Timeout: req.Timeout,
	}
	if req.Mode != nil {
		mreq.Mode = modem.ResetMode(*req.Mode)
	}
	if mreq.Timeout == 0 {
		mreq.Timeout = cfg.DownloadTimeout
	}
	if err := mreq.Validate(); err != nil {
		return nil, err
	}

	maxWait := cfg.MaxWait
	if req.MaxWait > 0 {
		maxWait = time.Duration(req.MaxWait) * time.Second
	}

	s.mu.Lock()
	if _, ok := s.jobs[conn.Name]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("[%s] %w", conn.Name, ErrJobRunning)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		rec: models.Upgrade{
			ModemName:   conn.Name,
			URL:         mreq.URL,
			Mode:        int(mreq.Mode),
			Timeout:     mreq.Timeout,
			Phase:       modem.PhaseIdle.String(),
			FromVersion: conn.Info().FirmwareVersion,
			StartedAt:   time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.jobs[conn.Name] = j
	s.mu.Unlock()

	s.persist(j)
	rec := j.snapshot()

	go s.run(ctx, conn, j, mreq, maxWait)
	return &rec, nil
}

// Cancel 取消模块上进行中的升级等待
func (s *FotaService) Cancel(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("[%s] %w", name, ErrNoJob)
	}
	j.cancel()
	return nil
}

// Wait 等待模块上的任务结束
func (s *FotaService) Wait(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status 返回模块当前状态与最近一次记录
func (s *FotaService) Status(name string) (*FotaStatus, error) {
	conn, err := s.modems.GetConn(name)
	if err != nil {
		return nil, err
	}

	status := &FotaStatus{Name: conn.Name, State: conn.State()}

	s.mu.Lock()
	j, running := s.jobs[conn.Name]
	last, hasLast := s.last[conn.Name]
	s.mu.Unlock()

	switch {
	case running:
		rec := j.snapshot()
		status.Running = true
		status.Record = &rec
	case hasLast:
		status.Record = &last
	case database.Ready():
		if rec, err := database.GetLatestUpgrade(conn.Name); err == nil {
			status.Record = rec
		}
	}

	return status, nil
}

// ModuleStatus 查询模块侧记录的升级状态
func (s *FotaService) ModuleStatus(name string) (string, error) {
	conn, err := s.modems.GetConn(name)
	if err != nil {
		return "", err
	}
	return conn.QueryFotaStatus()
}

// run 执行升级并收尾
func (s *FotaService) run(ctx context.Context, conn *ModemConn, j *job, req modem.Request, maxWait time.Duration) {
	pf := logger(conn.Name)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FOTA] Panic recovered: %v", r)
		}
		s.finish(conn.Name, j)
	}()

	pf("upgrade to %s", req.URL)
	st, err := conn.Upgrade(ctx, req, maxWait)
	if errors.Is(err, modem.ErrUpgradeInProgress) {
		st = modem.State{Phase: modem.PhaseFailed, Message: err.Error()}
	}
	j.apply(st)

	if err != nil {
		pf("upgrade failed: %v", err)
	} else {
		pf("upgrade succeeded")
		if info := s.verify(ctx, conn); info.FirmwareVersion != "" {
			j.mu.Lock()
			j.rec.ToVersion = info.FirmwareVersion
			j.rec.ToVersionNumber = info.VersionNumber
			j.mu.Unlock()
		}
	}

	j.mu.Lock()
	finished := time.Now()
	j.rec.FinishedAt = &finished
	j.mu.Unlock()

	s.persist(j)
	rec := j.snapshot()

	s.mu.Lock()
	s.last[conn.Name] = rec
	s.mu.Unlock()

	events.GetBroker().Publish(events.TypeFinished, conn.Name, rec)
	s.webhooks.HandleUpgradeFinished(&rec)
}

// verify 等待模块重启后重新读取固件版本
func (s *FotaService) verify(ctx context.Context, conn *ModemConn) modem.ModuleInfo {
	s.mu.Lock()
	delay := s.cfg.VerifyDelay
	s.mu.Unlock()

	for attempt := 0; attempt < verifyAttempts; attempt++ {
		if !sleepCtx(ctx, delay) {
			return modem.ModuleInfo{}
		}
		if info := conn.RefreshInfo(); info.FirmwareVersion != "" {
			logger(conn.Name)("firmware after upgrade: %s", info.FirmwareVersion)
			return info
		}
		delay = verifyRetry
	}
	return modem.ModuleInfo{}
}

func (s *FotaService) finish(name string, j *job) {
	s.mu.Lock()
	if s.jobs[name] == j {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	j.cancel()
	close(j.done)
}

// onState 模块状态变化回调
func (s *FotaService) onState(name string, st modem.State) {
	events.GetBroker().Publish(events.TypeState, name, st)

	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	if j.apply(st) {
		s.persist(j)
	}
}

// persist 记录启用时写入数据库
func (s *FotaService) persist(j *job) {
	if !database.Ready() || !database.IsHistoryEnabled() {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := database.SaveUpgrade(&j.rec); err != nil {
		log.Printf("[FOTA] Failed to save upgrade record: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
