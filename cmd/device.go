package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rehiy/modem-fota/modem"
	"github.com/rehiy/modem-fota/service"
)

var testCmd = &cobra.Command{
	Use:   "test <port>",
	Short: "Check AT communication, module info and network status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dev, err := connectModem(cfg, args[0])
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		fmt.Println("\n[1/3] AT communication... OK")

		fmt.Println("\n[2/3] Module info")
		printModuleInfo(dev.QueryModuleInfo())

		fmt.Println("\n[3/3] Network status")
		printNetworkStatus(dev.QueryNetworkStatus())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version <port>",
	Short: "Query the firmware version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dev, err := connectModem(cfg, args[0])
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		version, number := dev.QueryVersion()
		if version == "" {
			return fmt.Errorf("firmware version unavailable")
		}
		fmt.Printf("Firmware version: %s\n", version)
		if number != "" {
			fmt.Printf("Version number:   %s\n", number)
		}
		return nil
	},
}

var fotaStatusCmd = &cobra.Command{
	Use:   "fota-status <port>",
	Short: "Query the module side FOTA status (AT+QFOTADL?)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dev, err := connectModem(cfg, args[0])
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		status, err := dev.QueryFotaStatus()
		if err != nil {
			return fmt.Errorf("query fota status: %w", err)
		}
		fmt.Printf("FOTA status: %s\n", orUnknown(status))
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports [pattern...]",
	Short: "List candidate serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			args = cfg.Modem.Ports
		}

		ports := service.ListPorts(args...)
		if len(ports) == 0 {
			fmt.Fprintln(os.Stderr, "No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fotaStatusCmd)
	rootCmd.AddCommand(portsCmd)
}

func printModuleInfo(info modem.ModuleInfo) {
	fmt.Printf("  firmware: %s\n", orUnknown(info.FirmwareVersion))
	fmt.Printf("  version:  %s\n", orUnknown(info.VersionNumber))
	fmt.Printf("  imei:     %s\n", orUnknown(info.IMEI))
	fmt.Printf("  sim:      %s\n", orUnknown(info.SIMStatus))
	if info.Details != "" {
		fmt.Printf("  details:  %s\n", info.Details)
	}
}

func printNetworkStatus(status modem.NetworkStatus) {
	fmt.Printf("  registration: %s\n", status.Registration)
	if status.Signal != nil {
		fmt.Printf("  signal:       %s\n", status.Signal)
	} else {
		fmt.Printf("  signal:       unknown\n")
	}
	for _, pdp := range status.PDPContext {
		fmt.Printf("  pdp context:  cid=%d active=%v\n", pdp.CID, pdp.Active)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
