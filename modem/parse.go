package modem

import (
	"strconv"
	"strings"
)

// ParseVersion 从 AT+QGMR 响应中提取固件版本字符串，
// 以及末尾形如 01.300.01.300 的版本号（不存在时为空）。
func ParseVersion(text string) (string, string) {
	version := extractValue(text)
	if version == "" {
		return "", ""
	}
	return version, reVersionNumber.FindString(version)
}

// ParseInfo 将 ATI 响应的数据行合并为一行，例如 Quectel EG800K Revision: ...。
func ParseInfo(text string) string {
	return strings.Join(dataLines(text), " ")
}

// ParseIMEI 返回响应中第一个恰好 15 位的数字串。
func ParseIMEI(text string) string {
	for _, run := range reIMEI.FindAllString(text, -1) {
		if len(run) == imeiLength {
			return run
		}
	}
	return ""
}

// ParseSIMStatus 解析 AT+CPIN? 响应。
func ParseSIMStatus(text string) string {
	if strings.Contains(text, respReady) {
		return "ready"
	}
	return strings.TrimSpace(text)
}

// ParseRegistration 解析 <tag>: <n>,<stat>，未知的 stat 归为 Unknown。
func ParseRegistration(text string) (Registration, bool) {
	m := reRegistration.FindStringSubmatch(text)
	if len(m) < 2 {
		return Unknown, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return Unknown, false
	}
	return RegistrationFromCode(code), true
}

// RegistrationFromCode 将 stat 数值映射为注册状态。
func RegistrationFromCode(code int) Registration {
	switch code {
	case 0:
		return Unregistered
	case 1:
		return RegisteredHome
	case 2:
		return Searching
	case 3:
		return Denied
	case 5:
		return RegisteredRoaming
	default:
		return Unknown
	}
}

// ParseSignal 解析 <tag>: <rssi>,<ber>。rssi 为 99 表示未知或不可检测。
func ParseSignal(text string) (Signal, bool) {
	m := reSignal.FindStringSubmatch(text)
	if len(m) < 3 {
		return Signal{}, false
	}
	rssi, err := strconv.Atoi(m[1])
	if err != nil {
		return Signal{}, false
	}
	ber, _ := strconv.Atoi(m[2])
	return SignalFromRSSI(rssi, ber), true
}

// ParsePDPContext 解析 AT+CGACT? 的所有 +CGACT: <cid>,<state> 行。
func ParsePDPContext(text string) []PDPContext {
	var list []PDPContext
	for _, m := range rePDPContext.FindAllStringSubmatch(text, -1) {
		cid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		list = append(list, PDPContext{CID: cid, Active: m[2] == "1"})
	}
	return list
}

// SignalFromRSSI 计算 dBm (-113 + 2*rssi) 与信号等级。
func SignalFromRSSI(rssi, ber int) Signal {
	if rssi == rssiUnknown {
		return Signal{RSSI: rssi, BER: ber}
	}

	// 计算信号等级
	level := 0
	switch {
	case rssi >= 20:
		level = 5
	case rssi >= 15:
		level = 4
	case rssi >= 10:
		level = 3
	case rssi >= 5:
		level = 2
	case rssi >= 1:
		level = 1
	}

	return Signal{
		RSSI:  rssi,
		BER:   ber,
		DBM:   -113 + 2*rssi,
		Level: level,
		Known: true,
	}
}

// ParseEvent 解析以 +QIND: 开头的上报行，例如 +QIND: "FOTA","UPDATING",42。
func ParseEvent(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, urcMarker) {
		return Event{}, false
	}

	fields := strings.Split(strings.TrimPrefix(line, urcMarker), ",")
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"`)
	}
	if fields[0] == "" {
		return Event{}, false
	}

	ev := Event{Category: strings.ToUpper(fields[0]), Raw: line}
	if len(fields) > 1 {
		ev.SubType = strings.ToUpper(fields[1])
	}
	if len(fields) > 2 {
		ev.Payload = fields[2:]
	}
	return ev, true
}

// isURC 是否为非请求上报行。
func isURC(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), urcMarker)
}

// isTerminal 判断响应文本是否已包含结束行（OK / ERROR / +CME ERROR）。
func isTerminal(text string) bool {
	return reOKLine.MatchString(text) || reErrorLine.MatchString(text)
}

// extractValue 返回第一条既不是回显也不是结果码的数据行。
func extractValue(text string) string {
	if lines := dataLines(text); len(lines) > 0 {
		return lines[0]
	}
	return ""
}

// dataLines 过滤回显、结果码和上报，返回剩余的数据行。
func dataLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == respOK || strings.HasPrefix(line, "AT") || isURC(line) {
			continue
		}
		if reErrorLine.MatchString(line) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
