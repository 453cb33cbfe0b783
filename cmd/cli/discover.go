package cli

import (
	"github.com/spf13/cobra"

	"github.com/anstrom/netrecon/internal/scanning"
)

var (
	discoverTimeout   int
	discoverThreads   int
	discoverNoResolve bool
	discoverOutput    string
	discoverFile      string
	discoverQuiet     bool
)

// discoverCmd represents the discover command.
var discoverCmd = &cobra.Command{
	Use:   "discover <network>",
	Short: "Find live hosts on a network",
	Long: `Discover live hosts without scanning their ports. The address table of
this machine is read first, then every address in the range is probed with
ICMP echo where permitted and TCP reachability otherwise, and finally the
local interfaces are added. Hosts seen by several strategies are merged.`,
	Example: `  netrecon discover 192.168.1.0/24
  netrecon discover 10.0.0.1-64 --timeout 500 --threads 128
  netrecon discover 172.16.0.0/24 --output json`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 0, "Probe timeout in milliseconds")
	discoverCmd.Flags().IntVar(&discoverThreads, "threads", 0, "Concurrent probes")
	discoverCmd.Flags().BoolVar(&discoverNoResolve, "no-resolve", false, "Skip reverse DNS")
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", formatTable, "Output format")
	discoverCmd.Flags().StringVar(&discoverFile, "output-file", "", "Write the report to a file")
	discoverCmd.Flags().BoolVarP(&discoverQuiet, "quiet", "q", false, "Suppress progress output")

	discoverCmd.Flags().Lookup("output").Usage = "Output format: table, csv or json"
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanCfg := cfg.ScanConfig(args[0])
	scanCfg.ScanType = scanning.PingSweep
	scanCfg.Traceroute = false
	if cmd.Flags().Changed("timeout") {
		scanCfg.TimeoutMS = discoverTimeout
	}
	if cmd.Flags().Changed("threads") {
		scanCfg.Threads = discoverThreads
	}
	if discoverNoResolve {
		scanCfg.ResolveHostnames = false
	}

	return runAndReport(cfg, scanCfg, discoverOutput, discoverFile, discoverQuiet)
}
