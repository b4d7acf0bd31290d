package modem

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Modem 是一个 EC800K / EG800K 模块的连接。
type Modem struct {
	Name string

	cfg    Config
	engine *Engine
	state  *stateBox

	lmu sync.Mutex
	lis *listener
}

// Connect 打开串口并创建模块连接。
func Connect(path string, baud int, opts ...Option) (*Modem, error) {
	port, err := OpenSerial(path, baud)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	m := New(port, opts...)
	m.Name = filepath.Base(path)
	return m, nil
}

// New 在已打开的传输上创建模块连接。
func New(port Transport, opts ...Option) *Modem {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Modem{cfg: cfg}
	m.engine = NewEngine(port, cfg.Printf)
	m.engine.onURC = m.handleEvent
	m.state = newStateBox(m.stateChanged)
	return m
}

// Probe 发送 AT，模块应答 OK 时返回 true。
func (m *Modem) Probe() bool {
	return m.Send(cmdCheck).OK
}

// EchoOff 关闭命令回显。
func (m *Modem) EchoOff() bool {
	return m.Send(cmdEchoOff).OK
}

// Send 以默认超时发送任意命令。
func (m *Modem) Send(command string) Result {
	return m.engine.Send(command, m.cfg.CommandTimeout)
}

// SendTimeout 以指定超时发送任意命令。
func (m *Modem) SendTimeout(command string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = m.cfg.CommandTimeout
	}
	return m.engine.Send(command, timeout)
}

// QueryVersion 读取固件版本及版本号，失败时返回空字符串。
func (m *Modem) QueryVersion() (string, string) {
	res := m.Send(cmdVersion)
	if !res.OK {
		return "", ""
	}
	return ParseVersion(res.Text)
}

// QueryModuleInfo 读取版本、IMEI、SIM 状态与 ATI 信息，单项失败不影响其他项。
func (m *Modem) QueryModuleInfo() ModuleInfo {
	info := ModuleInfo{}

	info.FirmwareVersion, info.VersionNumber = m.QueryVersion()

	if res := m.Send(cmdIMEI); res.OK {
		info.IMEI = ParseIMEI(res.Text)
	}

	if res := m.Send(cmdSIMStatus); res.OK {
		info.SIMStatus = ParseSIMStatus(extractValue(res.Text))
	}

	if res := m.Send(cmdInfo); res.OK {
		info.Details = ParseInfo(res.Text)
	}

	return info
}

// QueryNetworkStatus 读取注册状态、信号质量与 PDP 上下文。
func (m *Modem) QueryNetworkStatus() NetworkStatus {
	status := NetworkStatus{Registration: Unknown}

	if res := m.Send(cmdRegistry); res.OK {
		status.Registration, status.RegistrationKnown = ParseRegistration(res.Text)
	}

	if res := m.Send(cmdSignal); res.OK {
		if sig, ok := ParseSignal(res.Text); ok {
			status.Signal = &sig
		}
	}

	if res := m.Send(cmdPDPContext); res.OK {
		status.PDPContext = ParsePDPContext(res.Text)
	}

	return status
}

// QueryFotaStatus 查询模块侧的升级状态（AT+QFOTADL?），返回去掉回显和结果码的应答。
func (m *Modem) QueryFotaStatus() (string, error) {
	res := m.Send(cmdFotaStatus)
	if !res.OK {
		if res.Err != nil {
			return "", res.Err
		}
		return "", fmt.Errorf("%s: %s", cmdFotaStatus, strings.TrimSpace(res.Text))
	}
	return strings.Join(dataLines(res.Text), "\n"), nil
}

// State 返回当前升级状态。
func (m *Modem) State() State {
	return m.state.Snapshot()
}

// Disconnect 停止监听并关闭串口，进行中的升级标记为失败。
func (m *Modem) Disconnect() error {
	m.engine.Stop()
	m.stopListener()
	m.state.Abort("disconnected")
	return m.engine.Close()
}

// handleEvent 处理 +QIND 上报，可能来自监听器或命令应答。
func (m *Modem) handleEvent(ev Event) {
	if ev.IsFota() {
		switch ev.SubType {
		case subHTTPBeg:
			m.state.Note(-1, "firmware download started")
		case subHTTPEnd:
			if code, ok := ev.Code(); ok {
				if code != 0 {
					m.logf("download ended with %d: %s", code, DescribeHTTPCode(code))
				}
				m.state.Note(-1, "download: "+DescribeHTTPCode(code))
			}
		case subStart:
			m.state.Note(0, "upgrade started")
		case subUpdating:
			if pct, ok := ev.Percent(); ok {
				m.logf("upgrading %d%%", pct)
				m.state.Note(pct, "")
			}
		case subEnd:
			if code, ok := ev.Code(); ok {
				m.logf("upgrade ended with %d: %s", code, DescribeCode(code))
				m.state.Resolve(code)
			}
		}
	} else {
		m.logf("urc: %s", ev.Raw)
	}

	if m.cfg.OnEvent != nil {
		m.cfg.OnEvent(ev)
	}
}

func (m *Modem) stateChanged(st State) {
	if m.cfg.OnState != nil {
		m.cfg.OnState(st)
	}
}

func (m *Modem) startListener() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	if m.lis == nil {
		m.lis = startListener(m.engine, m.handleEvent)
	}
}

func (m *Modem) stopListener() {
	m.lmu.Lock()
	lis := m.lis
	m.lis = nil
	m.lmu.Unlock()

	if lis != nil {
		lis.Stop()
	}
}

func (m *Modem) logf(format string, v ...any) {
	if m.cfg.Printf != nil {
		m.cfg.Printf(format, v...)
	}
}
