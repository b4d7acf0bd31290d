package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rehiy/modem-fota/config"
	"github.com/rehiy/modem-fota/modem"
)

// 全局参数
var (
	configPath string
	baudRate   int
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "modem-fota",
	Short: "EC800K/EG800K DFOTA upgrade tool",
	Long: `Drive DFOTA firmware upgrades of Quectel EC800K/EG800K modules over a serial port.

Run a single upgrade from the command line, or start the HTTP service to
manage several modules, keep an upgrade history and notify webhooks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $FOTA_CONFIG or config.yml)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Serial baud rate (default from config, 115200)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log serial traffic")
}

// Execute 执行命令，失败时以状态码 1 退出
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig 读取配置并应用命令行参数
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if baudRate > 0 {
		cfg.Modem.BaudRate = baudRate
	}
	return cfg, nil
}

// connectModem 打开串口并确认模块应答
func connectModem(cfg *config.Config, path string, opts ...modem.Option) (*modem.Modem, error) {
	opts = append([]modem.Option{
		modem.WithCommandTimeout(cfg.Modem.CommandTimeout),
		modem.WithAckTimeout(cfg.Modem.AckTimeout),
		modem.WithPollInterval(cfg.Fota.PollInterval),
	}, opts...)
	if verbose {
		opts = append(opts, modem.WithPrintf(func(format string, v ...any) {
			log.Printf("["+path+"] "+format, v...)
		}))
	}

	fmt.Printf("Connecting to %s at %d baud...\n", path, cfg.Modem.BaudRate)
	dev, err := modem.Connect(path, cfg.Modem.BaudRate, opts...)
	if err != nil {
		return nil, err
	}

	if !dev.Probe() {
		dev.Disconnect()
		return nil, fmt.Errorf("%s: no response to AT", path)
	}
	dev.EchoOff()
	return dev, nil
}
