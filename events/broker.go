package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// 事件类型
const (
	TypeURC      = "urc"
	TypeState    = "fota_state"
	TypeFinished = "fota_finished"
	TypeModem    = "modem"
)

var (
	brokerOnce     sync.Once
	brokerInstance *Broker
)

// Message 推送给订阅者的事件
type Message struct {
	Type  string    `json:"type"`
	Modem string    `json:"modem"`
	Data  any       `json:"data,omitempty"`
	Time  time.Time `json:"time"`
}

// Broker 管理事件订阅和广播。
type Broker struct {
	pool map[chan string]struct{}
	sync.RWMutex
}

// NewBroker 创建独立的广播器。
func NewBroker() *Broker {
	return &Broker{pool: make(map[chan string]struct{})}
}

// GetBroker 返回全局广播器。
func GetBroker() *Broker {
	brokerOnce.Do(func() {
		brokerInstance = NewBroker()
	})
	return brokerInstance
}

// Publish 编码为 JSON 后广播。
func (b *Broker) Publish(typ, modem string, data any) {
	msg, err := json.Marshal(Message{Type: typ, Modem: modem, Data: data, Time: time.Now()})
	if err != nil {
		log.Printf("[Events] encode %s failed: %v", typ, err)
		return
	}
	b.Broadcast(string(msg))
}

// Broadcast 非阻塞地向所有订阅者发送消息。
// 如果订阅者的通道已满，则跳过该订阅者的消息。
func (b *Broker) Broadcast(msg string) {
	b.RLock()
	defer b.RUnlock()

	for ch := range b.pool {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe 创建一个新的订阅通道。
// 返回接收消息的通道和取消订阅的函数。
func (b *Broker) Subscribe(buffer int) (chan string, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan string, buffer)

	b.Lock()
	b.pool[ch] = struct{}{}
	b.Unlock()

	return ch, func() {
		b.Lock()
		defer b.Unlock()
		if _, ok := b.pool[ch]; ok {
			delete(b.pool, ch)
			close(ch)
		}
	}
}

// Count 当前订阅者数量。
func (b *Broker) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.pool)
}
