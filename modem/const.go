package modem

import (
	"regexp"
	"time"
)

const (
	// AT 命令
	cmdEchoOff    = "ATE0"
	cmdCheck      = "AT"
	cmdInfo       = "ATI"
	cmdVersion    = "AT+QGMR"
	cmdIMEI       = "AT+GSN"
	cmdSIMStatus  = "AT+CPIN?"
	cmdRegistry   = "AT+CREG?"
	cmdSignal     = "AT+CSQ"
	cmdPDPContext = "AT+CGACT?"
	cmdFotaStatus = "AT+QFOTADL?"
	cmdFotaDL     = `AT+QFOTADL="%s",%d,%d`

	// 特殊字符
	eof = "\r\n"

	// 常用响应
	respOK    = "OK"
	respError = "ERROR"
	respReady = "READY"

	// URC 标记
	urcMarker   = "+QIND:"
	fotaUpdate  = "FOTA"
	subStart    = "START"
	subUpdating = "UPDATING"
	subEnd      = "END"
	subHTTPBeg  = "HTTPSTART"
	subHTTPEnd  = "HTTPEND"

	// 限制
	MaxURLLength   = 700
	DefaultBaud    = 115200
	rssiUnknown    = 99
	imeiLength     = 15
	bufferSize     = 256
	eventBuffer    = 32
	maxLineLength  = 1024
	readTimeout    = 100 * time.Millisecond
	pollBackoff    = 50 * time.Millisecond
	errorSleep     = 100 * time.Millisecond
	ackTimeout     = 5 * time.Second
	defaultTimeout = 2 * time.Second

	// 升级等待
	DefaultMaxWait      = 5 * time.Minute
	DefaultPollInterval = 500 * time.Millisecond
)

var (
	// 正则表达式
	reVersionNumber = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+)$`)
	reIMEI          = regexp.MustCompile(`\d+`)
	reRegistration  = regexp.MustCompile(`\+\w+:\s*\d+\s*,\s*(\d+)`)
	reSignal        = regexp.MustCompile(`\+\w+:\s*(\d+)\s*,\s*(\d+)`)
	rePDPContext    = regexp.MustCompile(`\+CGACT:\s*(\d+)\s*,\s*(\d+)`)
	reOKLine        = regexp.MustCompile(`(?m)^\s*OK\s*$`)
	reErrorLine     = regexp.MustCompile(`(?m)^\s*(\+CM[ES] )?ERROR\b`)
)
