package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rehiy/modem-fota/modem"
)

var (
	maxWaitFlag     time.Duration
	verifyDelayFlag time.Duration
)

var fotaCmd = &cobra.Command{
	Use:   "fota <port> <url> [mode] [timeout]",
	Short: "Run a DFOTA upgrade and wait for the result",
	Long: `Run a DFOTA upgrade on the module attached to <port>.

The module downloads the delta package from <url> and applies it.
  mode     0 = manual reset after upgrade (default), 1 = automatic reset
  timeout  download timeout in seconds (default 50)

Do not power off the module while the upgrade is running.`,
	Example: `  modem-fota fota /dev/ttyUSB2 "http://server/fota.bin"
  modem-fota fota COM3 "http://server/fota.bin" 1 60 --max-wait 10m`,
	Args: cobra.RangeArgs(2, 4),
	RunE: runFota,
}

func init() {
	fotaCmd.Flags().DurationVarP(&maxWaitFlag, "max-wait", "w", 0, "Maximum time to wait for completion (default from config, 5m)")
	fotaCmd.Flags().DurationVar(&verifyDelayFlag, "verify-delay", 5*time.Second, "Wait before reading the new firmware version")
	rootCmd.AddCommand(fotaCmd)
}

func runFota(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := modem.Request{
		URL:     args[1],
		Mode:    modem.ResetMode(cfg.Fota.ResetMode),
		Timeout: cfg.Fota.DownloadTimeout,
	}
	if len(args) > 2 {
		mode, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid mode %q", args[2])
		}
		req.Mode = modem.ResetMode(mode)
	}
	if len(args) > 3 {
		timeout, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid timeout %q", args[3])
		}
		req.Timeout = timeout
	}
	if err := req.Validate(); err != nil {
		return err
	}

	maxWait := cfg.Fota.MaxWait
	if maxWaitFlag > 0 {
		maxWait = maxWaitFlag
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Waiting"),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	var mu sync.Mutex
	progress, desc := -1, ""
	dev, err := connectModem(cfg, args[0], modem.WithStateHandler(func(st modem.State) {
		switch st.Phase {
		case modem.PhaseVersionCheck, modem.PhaseNetworkCheck, modem.PhaseTransferRequested:
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), st.Phase)
		case modem.PhaseAwaitingCompletion:
			mu.Lock()
			defer mu.Unlock()
			if st.Message != desc && st.Message != "" {
				desc = st.Message
				bar.Describe(desc)
			}
			if st.Progress != progress {
				progress = st.Progress
				bar.Set(progress)
			}
		}
	}))
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Upgrading from %s (%s, download timeout %ds)\n", req.URL, req.Mode, req.Timeout)
	st, err := dev.Upgrade(ctx, req, maxWait)
	if err != nil {
		fmt.Println()
		return describeFailure(st, err)
	}
	bar.Finish()

	fmt.Printf("Upgrade succeeded in %s\n", st.UpdatedAt.Sub(st.StartedAt).Round(time.Second))
	if st.CurrentVersion != "" {
		fmt.Printf("Previous version: %s\n", st.CurrentVersion)
	}

	// 等待模块重启后读取新版本
	if verifyDelayFlag > 0 {
		fmt.Printf("Waiting %s before reading the new version...\n", verifyDelayFlag)
		time.Sleep(verifyDelayFlag)
	}
	if version, _ := dev.QueryVersion(); version != "" {
		fmt.Printf("New version: %s\n", version)
	} else {
		fmt.Println("New version unavailable, the module may still be restarting")
	}
	return nil
}

// describeFailure 补充错误码说明
func describeFailure(st modem.State, err error) error {
	var uerr *modem.UpgradeError
	switch {
	case errors.As(err, &uerr):
		return fmt.Errorf("upgrade failed with code %d: %s", uerr.Code, modem.DescribeCode(uerr.Code))
	case errors.Is(err, modem.ErrUpgradeTimedOut):
		return fmt.Errorf("no completion report received (last phase %s, progress %d%%)", st.Phase, st.Progress)
	}
	return err
}
