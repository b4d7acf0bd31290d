package modem

import "time"

// Config 模块配置。
type Config struct {
	// Printf 日志输出，为 nil 时不记录
	Printf func(format string, v ...any)

	// OnEvent 收到 +QIND 上报时回调，应尽快返回
	OnEvent func(Event)

	// OnState 升级状态变化时回调
	OnState func(State)

	// CommandTimeout 普通命令的超时
	CommandTimeout time.Duration

	// AckTimeout 升级指令确认的超时
	AckTimeout time.Duration

	// PollInterval 等待升级完成时的检查间隔
	PollInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		CommandTimeout: defaultTimeout,
		AckTimeout:     ackTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// Option 配置函数。
type Option func(*Config)

// WithPrintf 设置日志函数。
func WithPrintf(pf func(format string, v ...any)) Option {
	return func(c *Config) {
		c.Printf = pf
	}
}

// WithEventHandler 设置上报回调。
func WithEventHandler(fn func(Event)) Option {
	return func(c *Config) {
		c.OnEvent = fn
	}
}

// WithStateHandler 设置状态变化回调。回调按提交顺序串行执行。
func WithStateHandler(fn func(State)) Option {
	return func(c *Config) {
		c.OnState = fn
	}
}

// WithCommandTimeout 设置普通命令超时。
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommandTimeout = d
		}
	}
}

// WithAckTimeout 设置升级指令确认超时。
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.AckTimeout = d
		}
	}
}

// WithPollInterval 设置等待升级完成的检查间隔。
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}
