package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/scanning"
)

var (
	scanType      string
	scanTechnique string
	scanPorts     string
	scanExtended  bool
	scanTimeout   int
	scanThreads   int
	scanRateLimit int
	scanBanners   bool
	scanTrace     bool
	scanNoResolve bool
	scanNoService bool
	scanNoOS      bool
	scanNoVulns   bool
	scanOutput    string
	scanFile      string
	scanQuiet     bool
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a host or network range",
	Long: `Run the full reconnaissance pipeline against a target: host discovery,
port scanning, service and OS detection, risk assessment and, when enabled,
path mapping. Unset flags take their value from the config file.

The target is an address or hostname, a last-octet range such as
192.168.1.10-20, or a CIDR block such as 10.0.0.0/24.`,
	Example: `  netrecon scan 192.168.1.0/24
  netrecon scan 10.0.0.5 --type full
  netrecon scan 192.168.1.1-50 --ports 22,80,8000-8100 --output csv --output-file hosts.csv
  netrecon scan 172.16.0.0/28 --technique udp --ports 53,123,161`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanType, "type", "t", "", "Scan type")
	scanCmd.Flags().StringVar(&scanTechnique, "technique", "", "Port scan technique")
	scanCmd.Flags().StringVarP(&scanPorts, "ports", "p", "", "Ports to scan")
	scanCmd.Flags().BoolVar(&scanExtended, "extended-ports", false, "Use the extended port list")
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Probe timeout in milliseconds")
	scanCmd.Flags().IntVar(&scanThreads, "threads", 0, "Concurrent probes")
	scanCmd.Flags().IntVar(&scanRateLimit, "rate-limit", 0, "Probe starts per second")
	scanCmd.Flags().BoolVar(&scanBanners, "banners", false, "Grab service banners")
	scanCmd.Flags().BoolVar(&scanTrace, "traceroute", false, "Map the path to the internet")
	scanCmd.Flags().BoolVar(&scanNoResolve, "no-resolve", false, "Skip reverse DNS")
	scanCmd.Flags().BoolVar(&scanNoService, "no-services", false, "Skip service detection")
	scanCmd.Flags().BoolVar(&scanNoOS, "no-os", false, "Skip OS detection")
	scanCmd.Flags().BoolVar(&scanNoVulns, "no-vulns", false, "Skip risk assessment")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", formatTable, "Output format")
	scanCmd.Flags().StringVar(&scanFile, "output-file", "", "Write the report to a file")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "Suppress progress output")

	scanCmd.Flags().Lookup("type").Usage = "Scan type: ping, port, full or custom (full enables every phase)"
	scanCmd.Flags().Lookup("technique").Usage = "Port scan technique: tcp, syn, udp or comprehensive"
	scanCmd.Flags().Lookup("ports").Usage = "Ports to scan (e.g., '22,80,443' or '1-1024')"
	scanCmd.Flags().Lookup("output").Usage = "Output format: table, csv or json"
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanCfg, err := buildScanConfig(cmd, cfg, args[0])
	if err != nil {
		return err
	}
	if scanRateLimit > 0 {
		cfg.Scanning.RateLimit = scanRateLimit
	}

	return runAndReport(cfg, scanCfg, scanOutput, scanFile, scanQuiet)
}

// buildScanConfig starts from the configured defaults and applies the
// flags the user set.
func buildScanConfig(cmd *cobra.Command, cfg *config.Config, target string) (scanning.Config, error) {
	scanCfg := cfg.ScanConfig(target)
	flags := cmd.Flags()

	if flags.Changed("type") {
		t, err := scanning.ParseScanType(scanType)
		if err != nil {
			return scanCfg, err
		}
		scanCfg.ScanType = t
	}
	if flags.Changed("technique") {
		t, err := portscan.ParseTechnique(scanTechnique)
		if err != nil {
			return scanCfg, err
		}
		scanCfg.Technique = t
	}
	if flags.Changed("ports") {
		ports, err := portscan.ParsePorts(scanPorts)
		if err != nil {
			return scanCfg, fmt.Errorf("invalid --ports: %w", err)
		}
		scanCfg.Ports = ports
	}
	if flags.Changed("extended-ports") {
		scanCfg.ExtendedPorts = scanExtended
	}
	if flags.Changed("timeout") {
		scanCfg.TimeoutMS = scanTimeout
	}
	if flags.Changed("threads") {
		scanCfg.Threads = scanThreads
	}
	if flags.Changed("banners") {
		scanCfg.GrabBanners = scanBanners
	}
	if flags.Changed("traceroute") {
		scanCfg.Traceroute = scanTrace
	}
	if scanNoResolve {
		scanCfg.ResolveHostnames = false
	}
	if scanNoService {
		scanCfg.DetectServices = false
	}
	if scanNoOS {
		scanCfg.DetectOS = false
	}
	if scanNoVulns {
		scanCfg.AssessVulns = false
	}
	return scanCfg, nil
}
