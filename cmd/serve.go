package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rehiy/modem-fota/database"
	"github.com/rehiy/modem-fota/router"
	"github.com/rehiy/modem-fota/service"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and websocket service",
	Example: `  modem-fota serve
  MODEM_PORT=/dev/ttyUSB2 modem-fota serve --listen :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}

	// 初始化数据库
	if err := database.InitDB(cfg.Server.DBPath); err != nil {
		return err
	}
	defer database.Close()

	// 初始化服务
	ms := service.GetModemService()
	ms.Configure(cfg)
	service.GetFotaService().Configure(cfg.Fota)
	ms.ScanModems()
	defer ms.CloseAll()

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Apply(cfg.Server.WebRoot),
	}

	// 启动服务器
	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errc:
		return err
	case <-sigChan:
	}

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
