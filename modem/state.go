package modem

import (
	"context"
	"sync"
	"time"
)

// stateBox 保存升级状态。前台流程与后台监听都会修改它，所有访问都经过 mu。
// 每次变化都会关闭并替换 changed，等待方据此被唤醒。
// notify 按 Seq 顺序串行调用。
type stateBox struct {
	mu      sync.Mutex
	state   State
	seq     uint64
	changed chan struct{}
	notify  func(State)
	armed   bool // Arm 之后、终止之前为 true

	notifyMu sync.Mutex
}

func newStateBox(notify func(State)) *stateBox {
	return &stateBox{
		state:   State{Phase: PhaseIdle},
		changed: make(chan struct{}),
		notify:  notify,
	}
}

// Snapshot 返回当前状态的副本。
func (b *stateBox) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

// Arm 开始新的升级流程，上一次流程未终止时返回 ErrUpgradeInProgress。
func (b *stateBox) Arm(url string) error {
	b.mu.Lock()
	if b.armed {
		b.mu.Unlock()
		return ErrUpgradeInProgress
	}
	now := time.Now()
	b.armed = true
	b.state = State{Phase: PhaseIdle, URL: url, StartedAt: now, UpdatedAt: now}
	return b.commitLocked()
}

// Advance 前进到 next。已处于终止阶段或 next 不在当前阶段之后时忽略。
func (b *stateBox) Advance(next Phase) bool {
	b.mu.Lock()
	if b.state.Phase.Terminal() || next <= b.state.Phase {
		b.mu.Unlock()
		return false
	}
	b.state.Phase = next
	b.commitLocked()
	return true
}

// Fail 以失败结束流程，已终止时忽略。
func (b *stateBox) Fail(phase Phase, msg string, code *int) bool {
	b.mu.Lock()
	if b.state.Phase.Terminal() {
		b.mu.Unlock()
		return false
	}
	b.state.Phase = phase
	b.state.Message = msg
	b.state.ResultCode = code
	b.commitLocked()
	return true
}

// Abort 以失败结束进行中的流程，没有进行中的流程时忽略。
func (b *stateBox) Abort(msg string) bool {
	b.mu.Lock()
	if !b.armed {
		b.mu.Unlock()
		return false
	}
	b.state.Phase = PhaseFailed
	b.state.Message = msg
	b.state.ResultCode = nil
	b.commitLocked()
	return true
}

// Update 在锁内修改非阶段字段（版本、进度、说明）。
func (b *stateBox) Update(fn func(*State)) {
	b.mu.Lock()
	fn(&b.state)
	b.commitLocked()
}

// Note 记录下载、升级过程中的进度与说明，仅在升级指令发出之后生效。
func (b *stateBox) Note(progress int, msg string) bool {
	b.mu.Lock()
	if p := b.state.Phase; p != PhaseTransferRequested && p != PhaseAwaitingCompletion {
		b.mu.Unlock()
		return false
	}
	if progress >= 0 {
		b.state.Progress = progress
	}
	if msg != "" {
		b.state.Message = msg
	}
	b.commitLocked()
	return true
}

// Resolve 根据 END 上报结束流程。只在升级指令发出之后生效。
func (b *stateBox) Resolve(code int) bool {
	b.mu.Lock()
	if p := b.state.Phase; p != PhaseTransferRequested && p != PhaseAwaitingCompletion {
		b.mu.Unlock()
		return false
	}
	c := code
	b.state.ResultCode = &c
	if code == 0 {
		b.state.Phase = PhaseSucceeded
		b.state.Progress = 100
		b.state.Message = DescribeCode(code)
	} else {
		b.state.Phase = PhaseFailed
		b.state.Message = DescribeCode(code)
	}
	b.commitLocked()
	return true
}

// Wait 等待 pred 成立，每次状态变化或每隔 interval 检查一次。
func (b *stateBox) Wait(ctx context.Context, interval time.Duration, pred func(State) bool) (State, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.mu.Lock()
		st := b.copyLocked()
		ch := b.changed
		b.mu.Unlock()

		if pred(st) {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		case <-ticker.C:
		}
	}
}

// commitLocked 更新时间戳、唤醒等待方、回调通知，并释放锁。
// notifyMu 在释放 mu 之前获取，回调顺序与提交顺序一致。
func (b *stateBox) commitLocked() error {
	b.seq++
	b.state.Seq = b.seq
	b.state.UpdatedAt = time.Now()
	if b.state.Phase.Terminal() {
		b.armed = false
	}
	close(b.changed)
	b.changed = make(chan struct{})
	st := b.copyLocked()

	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	if b.notify != nil {
		b.notify(st)
	}
	return nil
}

func (b *stateBox) copyLocked() State {
	st := b.state
	if st.ResultCode != nil {
		c := *st.ResultCode
		st.ResultCode = &c
	}
	return st
}
