package modem

import (
	"errors"
	"fmt"
)

var (
	// 常用错误
	ErrNotConnected      = errors.New("transport not connected")
	ErrTimeout           = errors.New("command timeout")
	ErrStopped           = errors.New("modem stopped")
	ErrUpgradeInProgress = errors.New("upgrade already in progress")
	ErrUpgradeTimedOut   = errors.New("upgrade timed out waiting for completion")
	ErrNotStarted        = errors.New("no upgrade awaiting completion")
)

// IOError 传输层读写失败。
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ValidationError 请求参数校验失败，不会触达串口。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// NetworkError 网络未注册。
type NetworkError struct {
	Status string
}

func (e *NetworkError) Error() string {
	return "network not registered: " + e.Status
}

// TransferError 升级指令未被模块接受。
type TransferError struct {
	Reply string
	Err   error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer rejected: %v", e.Err)
	}
	return fmt.Sprintf("transfer rejected: %q", e.Reply)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// UpgradeError 模块上报了非零的升级结果码。
type UpgradeError struct {
	Code int
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade failed with code %d: %s", e.Code, DescribeCode(e.Code))
}
