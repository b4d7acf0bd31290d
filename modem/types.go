package modem

import (
	"strconv"
	"strings"
	"time"
)

// Result 是一次命令交互的结果。
type Result struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
	Err  error  `json:"-"`
}

// ModuleInfo 模块基本信息，缺失的字段保持为空。
type ModuleInfo struct {
	FirmwareVersion string `json:"firmware_version,omitempty"`
	VersionNumber   string `json:"version_number,omitempty"`
	IMEI            string `json:"imei,omitempty"`
	SIMStatus       string `json:"sim_status,omitempty"`
	Details         string `json:"details,omitempty"` // ATI
}

// Registration 网络注册状态 (+CREG 的 stat 字段)。
type Registration int

const (
	Unregistered Registration = iota
	RegisteredHome
	Searching
	Denied
	Unknown
	RegisteredRoaming
)

func (r Registration) String() string {
	switch r {
	case Unregistered:
		return "unregistered"
	case RegisteredHome:
		return "registered (home)"
	case Searching:
		return "searching"
	case Denied:
		return "registration denied"
	case RegisteredRoaming:
		return "registered (roaming)"
	default:
		return "unknown"
	}
}

// Registered 是否已注册到网络（本地或漫游）。
func (r Registration) Registered() bool {
	return r == RegisteredHome || r == RegisteredRoaming
}

func (r Registration) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Signal 信号质量 (+CSQ)。
type Signal struct {
	RSSI  int  `json:"rssi"`
	BER   int  `json:"ber"`
	DBM   int  `json:"dbm"`
	Level int  `json:"level"`
	Known bool `json:"known"`
}

func (s Signal) String() string {
	if !s.Known {
		return "unknown or undetectable"
	}
	return "RSSI=" + strconv.Itoa(s.RSSI) + " (" + strconv.Itoa(s.DBM) + "dBm)"
}

// NetworkStatus 网络状态。
type NetworkStatus struct {
	Registration      Registration `json:"registration"`
	RegistrationKnown bool         `json:"registration_known"`
	Signal            *Signal      `json:"signal,omitempty"`
	PDPContext        []PDPContext `json:"pdp_context,omitempty"`
}

// PDPContext PDP 上下文激活状态 (+CGACT)。
type PDPContext struct {
	CID    int  `json:"cid"`
	Active bool `json:"active"`
}

// ResetMode 升级完成后的重启方式。
type ResetMode int

const (
	ResetManual ResetMode = 0
	ResetAuto   ResetMode = 1
)

func (m ResetMode) String() string {
	if m == ResetAuto {
		return "automatic reset"
	}
	return "manual reset"
}

// Request 描述一次升级请求。
type Request struct {
	URL     string    `json:"url"`
	Mode    ResetMode `json:"mode"`
	Timeout int       `json:"timeout"` // 下载超时，单位秒
}

// Phase 升级阶段。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseVersionCheck
	PhaseNetworkCheck
	PhaseTransferRequested
	PhaseAwaitingCompletion
	PhaseSucceeded
	PhaseFailed
	PhaseTimedOut
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseVersionCheck:       "version_check",
	PhaseNetworkCheck:       "network_check",
	PhaseTransferRequested:  "transfer_requested",
	PhaseAwaitingCompletion: "awaiting_completion",
	PhaseSucceeded:          "succeeded",
	PhaseFailed:             "failed",
	PhaseTimedOut:           "timed_out",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "phase(" + strconv.Itoa(int(p)) + ")"
	}
	return phaseNames[p]
}

// Terminal 是否为终止阶段。
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseTimedOut
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePhase 将名称转换为 Phase。
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == strings.ToLower(strings.TrimSpace(s)) {
			return Phase(i), true
		}
	}
	return PhaseIdle, false
}

// State 升级状态快照。
type State struct {
	Phase          Phase     `json:"phase"`
	ResultCode     *int      `json:"result_code,omitempty"`
	Message        string    `json:"message,omitempty"`
	Progress       int       `json:"progress"`
	CurrentVersion string    `json:"current_version,omitempty"`
	VersionNumber  string    `json:"version_number,omitempty"`
	URL            string    `json:"url,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Seq            uint64    `json:"seq"`
}

// Event 来自 +QIND 的非请求上报。
type Event struct {
	Category string   `json:"category"`
	SubType  string   `json:"sub_type"`
	Payload  []string `json:"payload,omitempty"`
	Raw      string   `json:"raw"`
}

// Code 返回 HTTPEND / END 携带的结果码。
func (e Event) Code() (int, bool) {
	if len(e.Payload) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(e.Payload[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Percent 返回 UPDATING 的进度百分比。
func (e Event) Percent() (int, bool) {
	if e.SubType != subUpdating {
		return 0, false
	}
	n, ok := e.Code()
	if !ok || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// IsFota 是否属于 FOTA 类别。
func (e Event) IsFota() bool {
	return e.Category == fotaUpdate
}

// IsEnd 是否为升级结束上报。
func (e Event) IsEnd() bool {
	return e.IsFota() && e.SubType == subEnd
}
