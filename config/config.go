package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认配置常量
const (
	// 服务默认配置
	DefaultHTTPAddress = ":8080"
	DefaultDBPath      = "data/modem.db"
	DefaultWebRoot     = "webview"
	DefaultConfigPath  = "config.yml"

	// 模块默认配置
	DefaultBaudRate       = 115200
	DefaultCommandTimeout = 2 * time.Second
	DefaultAckTimeout     = 5 * time.Second

	// 升级默认配置
	DefaultMaxWait         = 5 * time.Minute
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultVerifyDelay     = 30 * time.Second
	DefaultDownloadTimeout = 50
	MaxDownloadTimeout     = 65535
)

// Server HTTP 服务配置
type Server struct {
	Addr    string `yaml:"Addr"`    // 监听地址
	DBPath  string `yaml:"DBPath"`  // 数据库文件路径
	WebRoot string `yaml:"WebRoot"` // 静态文件目录，不存在时忽略
}

// Modem 串口模块配置
type Modem struct {
	Ports          []string      `yaml:"Ports"`          // 串口路径或通配符
	BaudRate       int           `yaml:"BaudRate"`       // 波特率
	CommandTimeout time.Duration `yaml:"CommandTimeout"` // 普通 AT 命令超时
	AckTimeout     time.Duration `yaml:"AckTimeout"`     // 升级指令确认超时
}

// Fota 升级配置
type Fota struct {
	MaxWait         time.Duration `yaml:"MaxWait"`         // 等待 END 上报的最长时间
	PollInterval    time.Duration `yaml:"PollInterval"`    // 状态检查间隔
	VerifyDelay     time.Duration `yaml:"VerifyDelay"`     // 升级成功后重读版本前的等待
	ResetMode       int           `yaml:"ResetMode"`       // 默认重启方式 0 手动 1 自动
	DownloadTimeout int           `yaml:"DownloadTimeout"` // 默认下载超时（秒）
}

// Config 全部配置
type Config struct {
	Server Server `yaml:"Server"`
	Modem  Modem  `yaml:"Modem"`
	Fota   Fota   `yaml:"Fota"`
}

// Default 返回默认配置
func Default() *Config {
	config := &Config{}
	config.validate()
	return config
}

// Load 读取配置文件并应用环境变量。
// path 为空时依次尝试 FOTA_CONFIG 和 config.yml，默认文件不存在不算错误。
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if path = os.Getenv("FOTA_CONFIG"); path != "" {
			explicit = true
		} else {
			path = DefaultConfigPath
		}
	}

	config := &Config{}

	fileContent, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(fileContent, config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv 环境变量覆盖配置文件
func (config *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Server.DBPath = dbPath
	}

	if ports := os.Getenv("MODEM_PORT"); ports != "" {
		config.Modem.Ports = splitList(ports)
	}
}

// validate 校验配置并设置默认值
func (config *Config) validate() error {
	if err := config.validateServer(); err != nil {
		return err
	}

	if err := config.validateModem(); err != nil {
		return err
	}

	return config.validateFota()
}

// validateServer 校验服务配置并设置默认值
func (config *Config) validateServer() error {
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultHTTPAddress
	}

	if config.Server.DBPath == "" {
		config.Server.DBPath = DefaultDBPath
	}

	if config.Server.WebRoot == "" {
		config.Server.WebRoot = DefaultWebRoot
	}

	return nil
}

// validateModem 校验模块配置并设置默认值
func (config *Config) validateModem() error {
	if config.Modem.BaudRate <= 0 {
		config.Modem.BaudRate = DefaultBaudRate
	}

	if config.Modem.CommandTimeout <= 0 {
		config.Modem.CommandTimeout = DefaultCommandTimeout
	}

	if config.Modem.AckTimeout <= 0 {
		config.Modem.AckTimeout = DefaultAckTimeout
	}

	return nil
}

// validateFota 校验升级配置并设置默认值
func (config *Config) validateFota() error {
	if config.Fota.MaxWait <= 0 {
		config.Fota.MaxWait = DefaultMaxWait
	}

	if config.Fota.PollInterval <= 0 {
		config.Fota.PollInterval = DefaultPollInterval
	}

	if config.Fota.VerifyDelay <= 0 {
		config.Fota.VerifyDelay = DefaultVerifyDelay
	}

	if config.Fota.ResetMode != 0 && config.Fota.ResetMode != 1 {
		return fmt.Errorf("Fota.ResetMode must be 0 or 1, got %d", config.Fota.ResetMode)
	}

	if config.Fota.DownloadTimeout <= 0 {
		config.Fota.DownloadTimeout = DefaultDownloadTimeout
	}

	if config.Fota.DownloadTimeout > MaxDownloadTimeout {
		return fmt.Errorf("Fota.DownloadTimeout must be at most %d", MaxDownloadTimeout)
	}

	return nil
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
