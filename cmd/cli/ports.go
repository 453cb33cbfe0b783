package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/scanning"
)

var (
	portsList      string
	portsTechnique string
	portsTimeout   int
	portsThreads   int
	portsOutput    string
	portsFile      string
	portsQuiet     bool
)

// portsCmd represents the ports command.
var portsCmd = &cobra.Command{
	Use:   "ports <target>",
	Short: "Scan ports and identify services",
	Long: `Discover live hosts and probe their ports, labelling open ports with
the service the port number or banner identifies. OS detection and risk
assessment are skipped; use 'netrecon scan' for the full pipeline.

UDP ports that never answer are reported as not open, although a silent
port may still be open behind a filter.`,
	Example: `  netrecon ports 192.168.1.10 --ports 1-1024
  netrecon ports 10.0.0.0/28 --technique comprehensive
  netrecon ports 192.168.1.1 --technique syn --ports 22,80,443`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().StringVarP(&portsList, "ports", "p", "", "Ports to scan (default: the configured list)")
	portsCmd.Flags().StringVar(&portsTechnique, "technique", "", "Technique: tcp, syn, udp or comprehensive")
	portsCmd.Flags().IntVar(&portsTimeout, "timeout", 0, "Probe timeout in milliseconds")
	portsCmd.Flags().IntVar(&portsThreads, "threads", 0, "Concurrent probes")
	portsCmd.Flags().StringVarP(&portsOutput, "output", "o", formatTable, "Output format: table, csv or json")
	portsCmd.Flags().StringVar(&portsFile, "output-file", "", "Write the report to a file")
	portsCmd.Flags().BoolVarP(&portsQuiet, "quiet", "q", false, "Suppress progress output")
}

func runPorts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanCfg := cfg.ScanConfig(args[0])
	scanCfg.ScanType = scanning.Custom
	scanCfg.DetectServices = true
	scanCfg.DetectOS = false
	scanCfg.AssessVulns = false
	scanCfg.Traceroute = false

	if cmd.Flags().Changed("ports") {
		ports, err := portscan.ParsePorts(portsList)
		if err != nil {
			return fmt.Errorf("invalid --ports: %w", err)
		}
		scanCfg.Ports = ports
	}
	if cmd.Flags().Changed("technique") {
		t, err := portscan.ParseTechnique(portsTechnique)
		if err != nil {
			return err
		}
		scanCfg.Technique = t
	}
	if cmd.Flags().Changed("timeout") {
		scanCfg.TimeoutMS = portsTimeout
	}
	if cmd.Flags().Changed("threads") {
		scanCfg.Threads = portsThreads
	}

	return runAndReport(cfg, scanCfg, portsOutput, portsFile, portsQuiet)
}
