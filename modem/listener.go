package modem

import (
	"strings"
	"sync"
)

// listener 在等待升级完成期间独占串口读取。
// +QIND 上报交给 handle，其余行转交给进行中的命令。
type listener struct {
	engine *Engine
	route  *route
	handle func(Event)

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func startListener(e *Engine, handle func(Event)) *listener {
	l := &listener{
		engine: e,
		route: &route{
			lines: make(chan string, eventBuffer),
			done:  make(chan struct{}),
		},
		handle: handle,
		stop:   make(chan struct{}),
	}

	e.attach(l.route)

	l.wg.Add(1)
	go l.readLoop()

	e.logf("listener started")
	return l
}

func (l *listener) readLoop() {
	defer l.wg.Done()
	defer close(l.route.done)
	defer l.engine.detach(l.route)

	buf := make([]byte, bufferSize)
	pending := ""

	for {
		select {
		case <-l.stop:
			l.discard(pending)
			return
		case <-l.engine.stop:
			l.discard(pending)
			return
		default:
		}

		n, err := l.engine.port.Read(buf)
		if n > 0 {
			pending += string(buf[:n])
			for {
				idx := strings.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				l.dispatch(pending[:idx])
				pending = pending[idx+1:]
			}
			if len(pending) > maxLineLength {
				l.engine.logf("drop overlong line: %q", pending)
				pending = ""
			}
			continue
		}

		if !idleRead(err) {
			l.engine.logf("listener read error: %v", err)
			if !sleepOrStop(l.stop, errorSleep) {
				l.discard(pending)
				return
			}
			continue
		}

		// 未带换行的残留保留到下次读取
		if !sleepOrStop(l.stop, pollBackoff) {
			l.discard(pending)
			return
		}
	}
}

func (l *listener) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if ev, ok := ParseEvent(line); ok {
		l.engine.logf("<< %s", line)
		if l.handle != nil {
			l.handle(ev)
		}
		return
	}

	select {
	case l.route.lines <- line:
	default:
		l.engine.logf("drop line: %s", line)
	}
}

// discard 停止时丢弃不完整的残留行
func (l *listener) discard(pending string) {
	if s := strings.TrimSpace(pending); s != "" {
		l.engine.logf("discard partial line: %q", s)
	}
}

// Stop 停止监听并等待读取协程退出。
func (l *listener) Stop() {
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		l.engine.logf("listener stopped")
	})
}
