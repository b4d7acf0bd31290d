package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rehiy/modem-fota/modem"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Show DFOTA, HTTP and FTP error codes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		tables := modem.CodeTables()
		for _, name := range []string{"fota", "http", "ftp"} {
			fmt.Printf("\n[%s]\n", name)
			for _, c := range tables[name] {
				fmt.Printf("  %4d  %s\n", c.Code, c.Description)
			}
		}

		fmt.Println("\n[urc]")
		fmt.Println(`  +QIND: "FOTA","HTTPSTART"      download started`)
		fmt.Println(`  +QIND: "FOTA","HTTPEND",<err>  download finished`)
		fmt.Println(`  +QIND: "FOTA","START"          upgrade started`)
		fmt.Println(`  +QIND: "FOTA","UPDATING",<%>   upgrade progress (7-96)`)
		fmt.Println(`  +QIND: "FOTA","END",<err>      upgrade finished, 0 means success`)
	},
}

func init() {
	rootCmd.AddCommand(codesCmd)
}
