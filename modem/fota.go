package modem

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultDownloadTimeout = 50

// StartUpgrade 校验请求并依次执行版本检查、网络检查、下发升级指令。
// 返回 nil 时升级已被模块接受，需再调用 AwaitUpgrade 等待结果。
func (m *Modem) StartUpgrade(ctx context.Context, req Request) error {
	if err := m.state.Arm(req.URL); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		m.state.Fail(PhaseFailed, err.Error(), nil)
		return err
	}

	// 1. 检查当前版本，失败不影响后续流程
	m.state.Advance(PhaseVersionCheck)
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}
	if version, number := m.QueryVersion(); version != "" {
		m.logf("current version: %s", version)
		m.state.Update(func(st *State) {
			st.CurrentVersion = version
			st.VersionNumber = number
		})
	} else {
		m.logf("current version unavailable")
	}

	// 2. 检查网络注册
	m.state.Advance(PhaseNetworkCheck)
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}
	status := m.QueryNetworkStatus()
	if status.Signal != nil {
		m.logf("signal: %s", status.Signal)
	}
	if !status.Registration.Registered() {
		err := &NetworkError{Status: status.Registration.String()}
		m.state.Fail(PhaseFailed, err.Error(), nil)
		return err
	}
	m.logf("network: %s", status.Registration)

	// 3. 下发升级指令
	m.state.Advance(PhaseTransferRequested)
	if err := ctx.Err(); err != nil {
		return m.abort(err)
	}
	command := fmt.Sprintf(cmdFotaDL, req.URL, req.Mode, req.Timeout)
	res := m.engine.Send(command, m.cfg.AckTimeout)
	if !res.OK {
		err := &TransferError{Reply: res.Text, Err: res.Err}
		m.state.Fail(PhaseFailed, err.Error(), nil)
		return err
	}

	// 4. 由监听器接管读取，等待结束上报
	m.startListener()
	m.state.Advance(PhaseAwaitingCompletion)
	m.logf("upgrade accepted, %s after completion", req.Mode)
	return nil
}

// AwaitUpgrade 等待 END 上报，最长 maxWait（<=0 时使用 DefaultMaxWait）。
// 成功返回 nil；失败返回 *UpgradeError；超时返回 ErrUpgradeTimedOut。
func (m *Modem) AwaitUpgrade(ctx context.Context, maxWait time.Duration) (State, error) {
	st := m.state.Snapshot()
	if !st.Phase.Terminal() && st.Phase != PhaseTransferRequested && st.Phase != PhaseAwaitingCompletion {
		return st, ErrNotStarted
	}
	defer m.stopListener()

	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	wctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	st, err := m.state.Wait(wctx, m.cfg.PollInterval, func(s State) bool {
		return s.Phase.Terminal()
	})
	if err != nil {
		if ctx.Err() != nil {
			m.state.Fail(PhaseFailed, "wait canceled: "+ctx.Err().Error(), nil)
		} else {
			m.state.Fail(PhaseTimedOut, fmt.Sprintf("no completion within %s", maxWait), nil)
		}
		st = m.state.Snapshot()
	}

	return st, outcome(st)
}

// Upgrade 执行完整的升级流程并等待结果。
func (m *Modem) Upgrade(ctx context.Context, req Request, maxWait time.Duration) (State, error) {
	if err := m.StartUpgrade(ctx, req); err != nil {
		return m.state.Snapshot(), err
	}
	return m.AwaitUpgrade(ctx, maxWait)
}

func (m *Modem) abort(err error) error {
	m.state.Fail(PhaseFailed, "canceled: "+err.Error(), nil)
	return err
}

// Validate 校验升级请求，下载超时为 0 时使用默认值。
func (req *Request) Validate() error {
	if req.URL == "" {
		return &ValidationError{Field: "url", Reason: "empty"}
	}
	if len(req.URL) > MaxURLLength {
		return &ValidationError{
			Field:  "url",
			Reason: fmt.Sprintf("length %d exceeds the %d character limit", len(req.URL), MaxURLLength),
		}
	}
	if req.Mode != ResetManual && req.Mode != ResetAuto {
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unsupported value %d", req.Mode)}
	}
	if req.Timeout < 0 {
		return &ValidationError{Field: "timeout", Reason: "negative"}
	}
	if req.Timeout == 0 {
		req.Timeout = defaultDownloadTimeout
	}
	return nil
}

// outcome 将终止状态映射为错误。
func outcome(st State) error {
	switch st.Phase {
	case PhaseSucceeded:
		return nil
	case PhaseTimedOut:
		return ErrUpgradeTimedOut
	case PhaseFailed:
		if st.ResultCode != nil {
			return &UpgradeError{Code: *st.ResultCode}
		}
		if st.Message != "" {
			return errors.New(st.Message)
		}
		return errors.New("upgrade failed")
	}
	return ErrNotStarted
}
