package service

import (
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/rehiy/modem-fota/config"
	"github.com/rehiy/modem-fota/events"
	"github.com/rehiy/modem-fota/modem"
)

var (
	modemOnce     sync.Once
	modemInstance *ModemService

	ErrModemNotFound     = errors.New("modem not found")
	ErrModemNotConnected = errors.New("modem not connected")
	ErrNoResponse        = errors.New("no response to AT")
)

// ModemConn 端口连接
type ModemConn struct {
	Name      string
	Connected bool
	*modem.Modem

	mu   sync.RWMutex
	info modem.ModuleInfo
}

// ModemSummary 模块列表项
type ModemSummary struct {
	Name      string           `json:"name"`
	Connected bool             `json:"connected"`
	Info      modem.ModuleInfo `json:"info"`
	Phase     modem.Phase      `json:"phase"`
}

// Info 最近一次读取的模块信息
func (c *ModemConn) Info() modem.ModuleInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// RefreshInfo 重新读取模块信息
func (c *ModemConn) RefreshInfo() modem.ModuleInfo {
	info := c.QueryModuleInfo()
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info
}

func (c *ModemConn) summary() ModemSummary {
	return ModemSummary{
		Name:      c.Name,
		Connected: c.Connected,
		Info:      c.Info(),
		Phase:     c.State().Phase,
	}
}

// ModemService 管理多个串口连接
type ModemService struct {
	pool map[string]*ModemConn
	mu   sync.Mutex

	cfg  config.Modem
	fota config.Fota
}

// GetModemService 返回单例实例
func GetModemService() *ModemService {
	modemOnce.Do(func() {
		defaults := config.Default()
		modemInstance = &ModemService{
			pool: map[string]*ModemConn{},
			cfg:  defaults.Modem,
			fota: defaults.Fota,
		}
	})
	return modemInstance
}

// Configure 应用串口与升级配置，之后新建的连接生效
func (m *ModemService) Configure(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.Modem
	m.fota = cfg.Fota
}

// ScanModems 扫描可用的调制解调器并连接到它们
func (m *ModemService) ScanModems(devs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 配置文件或环境变量
	if len(devs) == 0 {
		devs = m.cfg.Ports
	}

	// 尝试连接到新设备
	for _, u := range ListPorts(devs...) {
		m.makeConnect(u)
	}
}

// ListPorts 展开串口通配符，未指定时使用平台默认列表
func ListPorts(devs ...string) []string {
	// 查找潜在设备
	switch runtime.GOOS {
	case "windows":
		if len(devs) == 0 {
			devs = []string{"COM1", "COM2", "COM3", "COM4", "COM5"}
		}
		return devs
	default:
		if len(devs) == 0 {
			devs = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
		}
		pps := []string{}
		for _, p := range devs {
			matches, _ := filepath.Glob(p)
			pps = append(pps, matches...)
		}
		return pps
	}
}

// GetConnList 返回已连接的端口信息
func (m *ModemService) GetConnList() []ModemSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]ModemSummary, 0, len(m.pool))
	for _, conn := range m.pool {
		list = append(list, conn.summary())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// GetConn 返回给定端口名称的连接
func (m *ModemService) GetConn(u string) (*ModemConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := path.Base(u)
	conn, ok := m.pool[n]
	if !ok {
		return nil, fmt.Errorf("[%s] %w", n, ErrModemNotFound)
	}
	if !conn.Connected || conn.Modem == nil {
		return nil, fmt.Errorf("[%s] %w", n, ErrModemNotConnected)
	}
	return conn, nil
}

// CloseAll 断开所有连接
func (m *ModemService) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for n, conn := range m.pool {
		conn.Connected = false
		if err := conn.Disconnect(); err != nil {
			logger(n)("disconnect: %v", err)
		}
		delete(m.pool, n)
	}
}

// makeConnect 打开串口并加入连接池
func (m *ModemService) makeConnect(u string) error {
	n := path.Base(u)
	pf := logger(n)

	// 检查是否已连接
	if conn, ok := m.pool[n]; ok {
		if conn.Connected && conn.Probe() {
			pf("already connected")
			return nil
		}
		conn.Connected = false
		conn.Disconnect()
		delete(m.pool, n)
	}

	// 打开串口
	pf("connecting")
	port, err := modem.OpenSerial(u, m.cfg.BaudRate)
	if err != nil {
		pf("connect failed: %v", err)
		return err
	}

	_, err = m.attach(n, port)
	return err
}

// attach 在已打开的传输上建立连接，调用方持有 m.mu
func (m *ModemService) attach(n string, port modem.Transport) (*ModemConn, error) {
	pf := logger(n)

	dev := modem.New(port,
		modem.WithPrintf(pf),
		modem.WithCommandTimeout(m.cfg.CommandTimeout),
		modem.WithAckTimeout(m.cfg.AckTimeout),
		modem.WithPollInterval(m.fota.PollInterval),
		modem.WithEventHandler(func(ev modem.Event) {
			events.GetBroker().Publish(events.TypeURC, n, ev)
		}),
		modem.WithStateHandler(func(st modem.State) {
			GetFotaService().onState(n, st)
		}),
	)
	dev.Name = n

	if !dev.Probe() {
		pf("at test failed")
		dev.Disconnect()
		return nil, fmt.Errorf("[%s] %w", n, ErrNoResponse)
	}

	// 关闭回显
	dev.EchoOff()

	conn := &ModemConn{Name: n, Connected: true, Modem: dev}
	info := conn.RefreshInfo()
	pf("connected, firmware %s, imei %s", info.FirmwareVersion, info.IMEI)

	m.pool[n] = conn
	events.GetBroker().Publish(events.TypeModem, n, conn.summary())
	return conn, nil
}

// logger 返回带端口前缀的日志函数
func logger(n string) func(string, ...any) {
	return func(s string, v ...any) {
		log.Printf(fmt.Sprintf("[%s] %s", n, s), v...)
	}
}
