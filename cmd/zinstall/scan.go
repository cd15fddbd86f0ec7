package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voidforge/zinstall/internal/catalog"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List installable block devices and their persistent identifiers",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")

		devices, err := catalog.NewScanner(nil).Scan()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning devices: %v\n", err)
			os.Exit(exitEnv)
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(devices)
			return
		}

		fmt.Printf("%-12s %-6s %-10s %-24s %s\n", "DEVICE", "BUS", "SIZE", "MODEL", "ID")
		fmt.Println("--------------------------------------------------------------------------------")
		for _, d := range devices {
			fmt.Printf("%-12s %-6s %-10s %-24s %s\n", d.Name, d.Bus, d.SizeHuman(), d.Model, d.ID)
		}
	},
}

func init() {
	scanCmd.Flags().Bool("json", false, "Output as JSON")
}
