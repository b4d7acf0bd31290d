package modem

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
)

// Transport 是到模块的双向字节流。
// Read 在读超时内没有数据时返回 0 字节（nil、io.EOF 或超时错误均视为暂无数据）。
type Transport interface {
	io.ReadWriteCloser
}

// flusher 可选：写入命令前丢弃残留输入。
type flusher interface {
	Flush() error
}

// OpenSerial 以 8N1 打开串口，读超时为 100ms。
func OpenSerial(name string, baud int) (Transport, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// idleRead 判断一次读取错误是否只是“暂无数据”。
func idleRead(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// sleepOrStop 等待 d，或在 stop 关闭时立即返回 false。
func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
