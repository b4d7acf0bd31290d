package modem

import (
	"strings"
	"sync"
	"time"
)

// Engine 负责在串口上收发 AT 命令。
// 同一时间只进行一次命令交互；监听器接管读取后，应答行由监听器转交。
type Engine struct {
	port   Transport
	printf func(string, ...any)
	onURC  func(Event)

	mu sync.Mutex // 串行化命令交互

	routeMu sync.Mutex
	route   *route

	stop     chan struct{}
	stopOnce sync.Once
}

// route 监听器持有读取权时，向引擎转交非上报行。
type route struct {
	lines chan string
	done  chan struct{}
}

// NewEngine 创建命令引擎。
func NewEngine(port Transport, printf func(string, ...any)) *Engine {
	return &Engine{
		port:   port,
		printf: printf,
		stop:   make(chan struct{}),
	}
}

// Send 发送命令并等待 OK / ERROR，或超时。
func (e *Engine) Send(command string, timeout time.Duration) Result {
	if e == nil || e.port == nil || e.stopped() {
		return Result{Err: ErrNotConnected}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.currentRoute()
	if r == nil {
		// 清理历史未读数据，避免旧数据干扰本次响应
		if f, ok := e.port.(flusher); ok {
			_ = f.Flush()
		}
	} else {
		r.drain()
	}

	e.logf(">> %s", command)
	if _, err := e.port.Write([]byte(command + eof)); err != nil {
		ioErr := &IOError{Op: "write", Err: err}
		e.logf("!! %v", ioErr)
		return Result{Text: ioErr.Error(), Err: ioErr}
	}

	var buf strings.Builder
	deadline := time.Now().Add(timeout)

	var res Result
	if r != nil {
		res = e.collectRouted(r, &buf, deadline)
	} else {
		res = e.collect(&buf, deadline)
	}

	if text := strings.TrimSpace(res.Text); text != "" {
		e.logf("<< %s", text)
	}
	if res.Err != nil {
		e.logf("!! %s: %v", command, res.Err)
	}
	return res
}

// collect 直接轮询串口，直到出现结束行或超时。
func (e *Engine) collect(buf *strings.Builder, deadline time.Time) Result {
	chunk := make([]byte, bufferSize)
	for {
		if e.stopped() {
			return Result{Text: buf.String(), Err: ErrStopped}
		}

		n, err := e.port.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if isTerminal(buf.String()) {
				return e.finish(buf.String())
			}
		}
		if !idleRead(err) {
			ioErr := &IOError{Op: "read", Err: err}
			text := buf.String()
			if text != "" {
				text += eof
			}
			return Result{Text: text + ioErr.Error(), Err: ioErr}
		}
		if n > 0 {
			continue
		}

		if !time.Now().Before(deadline) {
			return Result{Text: buf.String(), Err: ErrTimeout}
		}
		if !sleepOrStop(e.stop, pollBackoff) {
			return Result{Text: buf.String(), Err: ErrStopped}
		}
	}
}

// collectRouted 从监听器转交的行中收集应答。
// 监听器退出后，剩余时间内改为直接读取串口。
func (e *Engine) collectRouted(r *route, buf *strings.Builder, deadline time.Time) Result {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case line := <-r.lines:
			buf.WriteString(line + eof)
			if isTerminal(buf.String()) {
				return e.finish(buf.String())
			}
		case <-r.done:
			return e.collect(buf, deadline)
		case <-timer.C:
			return Result{Text: buf.String(), Err: ErrTimeout}
		case <-e.stop:
			return Result{Text: buf.String(), Err: ErrStopped}
		}
	}
}

// finish 生成结果，并把夹在应答中的上报行交给 onURC。
func (e *Engine) finish(text string) Result {
	if e.onURC != nil {
		for _, line := range strings.Split(text, "\n") {
			if ev, ok := ParseEvent(line); ok {
				e.onURC(ev)
			}
		}
	}
	return Result{OK: reOKLine.MatchString(text), Text: text}
}

// attach 把读取权交给监听器。会等待进行中的命令结束。
func (e *Engine) attach(r *route) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.routeMu.Lock()
	e.route = r
	e.routeMu.Unlock()
}

// detach 收回读取权。
func (e *Engine) detach(r *route) {
	e.routeMu.Lock()
	if e.route == r {
		e.route = nil
	}
	e.routeMu.Unlock()
}

func (e *Engine) currentRoute() *route {
	e.routeMu.Lock()
	defer e.routeMu.Unlock()
	return e.route
}

// Stop 通知进行中的命令尽快返回，之后的命令都会失败。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Close 停止引擎并关闭串口。
func (e *Engine) Close() error {
	e.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port.Close()
}

func (e *Engine) stopped() bool {
	select {
	case <-e.stop:
		return true
	default:
		return false
	}
}

func (e *Engine) logf(format string, v ...any) {
	if e.printf != nil {
		e.printf(format, v...)
	}
}

// drain 丢弃积压的行。
func (r *route) drain() {
	for {
		select {
		case <-r.lines:
		default:
			return
		}
	}
}
