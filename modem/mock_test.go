package modem

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// mockPort 模拟模块：按命令返回预设应答，并可在任意时刻注入上报。
type mockPort struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	replies  map[string]string
	written  []string
	writeErr error
	closed   bool
}

func newMockPort(replies map[string]string) *mockPort {
	p := &mockPort{replies: map[string]string{}}
	for k, v := range replies {
		p.replies[k] = v
	}
	return p
}

func (p *mockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed || p.rx.Len() == 0 {
		p.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	n, err := p.rx.Read(b)
	p.mu.Unlock()
	return n, err
}

func (p *mockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.closed {
		return 0, io.ErrClosedPipe
	}

	command := strings.TrimSuffix(string(b), eof)
	p.written = append(p.written, command)

	if reply, ok := p.lookup(command); ok {
		p.rx.WriteString(reply)
	}
	return len(b), nil
}

func (p *mockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// lookup 先精确匹配，再匹配以 "=" 结尾的前缀键。
func (p *mockPort) lookup(command string) (string, bool) {
	if reply, ok := p.replies[command]; ok {
		return reply, true
	}
	for key, reply := range p.replies {
		if strings.HasSuffix(key, "=") && strings.HasPrefix(command, key) {
			return reply, true
		}
	}
	return "", false
}

// Reply 设置或替换某条命令的应答。
func (p *mockPort) Reply(command, reply string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[command] = reply
}

// Inject 向读缓冲追加数据。
func (p *mockPort) Inject(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx.WriteString(data)
}

// InjectAfter 延迟注入。
func (p *mockPort) InjectAfter(d time.Duration, data ...string) {
	time.AfterFunc(d, func() {
		p.Inject(strings.Join(data, ""))
	})
}

// Written 返回已写入的命令（不含行尾）。
func (p *mockPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// BytesWritten 返回已写入的总字节数。
func (p *mockPort) BytesWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, w := range p.written {
		total += len(w) + len(eof)
	}
	return total
}

func (p *mockPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// 常用应答
const (
	replyOK      = "\r\nOK\r\n"
	replyVersion = "\r\nEG800KEULCR07A07M04_01.200.01.200\r\n\r\nOK\r\n"
	replyCREG    = "\r\n+CREG: 0,1\r\n\r\nOK\r\n"
	replyCSQ     = "\r\n+CSQ: 20,99\r\n\r\nOK\r\n"
	replyATI     = "\r\nQuectel\r\nEG800K\r\nRevision: EG800KEULCR07A07M04\r\n\r\nOK\r\n"
	replyCGACT   = "\r\n+CGACT: 1,1\r\n+CGACT: 2,0\r\n\r\nOK\r\n"
)

func readyReplies() map[string]string {
	return map[string]string{
		cmdCheck:      replyOK,
		cmdEchoOff:    replyOK,
		cmdVersion:    replyVersion,
		cmdIMEI:       "\r\n866123456789012\r\n\r\nOK\r\n",
		cmdSIMStatus:  "\r\n+CPIN: READY\r\n\r\nOK\r\n",
		cmdRegistry:   replyCREG,
		cmdSignal:     replyCSQ,
		cmdInfo:       replyATI,
		cmdPDPContext: replyCGACT,
		cmdFotaStatus: "\r\n+QFOTADL: 0\r\n\r\nOK\r\n",
		"AT+QFOTADL=": replyOK,
	}
}

func fotaURC(sub string, payload string) string {
	if payload == "" {
		return "\r\n+QIND: \"FOTA\",\"" + sub + "\"\r\n"
	}
	return "\r\n+QIND: \"FOTA\",\"" + sub + "\"," + payload + "\r\n"
}
