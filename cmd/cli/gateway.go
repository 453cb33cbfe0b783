package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/netrecon/internal/report"
	"github.com/anstrom/netrecon/internal/topology"
)

var (
	gatewayOutput       string
	gatewaySkipExternal bool
)

// gatewayCmd represents the gateway command.
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Show the default gateway and the path to the internet",
	Long: `Detect the default gateway, the routing table, the external address
seen by the internet and the hops to a well-known public address.`,
	Example: `  netrecon gateway
  netrecon gateway --skip-external
  netrecon gateway --output json`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return bindFlags(cmd)
	},
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)

	gatewayCmd.Flags().StringVarP(&gatewayOutput, "output", "o", formatTable, "Output format: table or json")
	gatewayCmd.Flags().BoolVar(&gatewaySkipExternal, "skip-external", false,
		"Skip the external address lookup and traceroute")
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	topoCfg := cfg.TopologyDetector()
	if gatewaySkipExternal {
		topoCfg.SkipExternal = true
	}

	ctx, stop := signalContext()
	defer stop()

	info := topology.NewDetector(topoCfg, nil, "").Detect(ctx)
	if strings.EqualFold(gatewayOutput, formatJSON) {
		return report.JSON(os.Stdout, info)
	}
	return writeGateway(os.Stdout, info)
}

// writeGateway prints info as a summary followed by the routing table.
func writeGateway(w io.Writer, info topology.Info) error {
	gateway := info.Gateway
	if gateway == "" {
		gateway = "not found"
	}
	path := "-"
	if len(info.Path) > 0 {
		path = strings.Join(info.Path, " -> ")
	}
	fmt.Fprintf(w, "Default gateway: %s\n", gateway)
	fmt.Fprintf(w, "External IP:     %s\n", info.ExternalIP)
	fmt.Fprintf(w, "Path:            %s\n", path)

	if len(info.Routes) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header("Destination", "Gateway", "Interface")
	for _, r := range info.Routes {
		if err := table.Append([]string{r.Destination, r.Gateway, r.Interface}); err != nil {
			return err
		}
	}
	return table.Render()
}
