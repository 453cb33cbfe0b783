package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/discovery"
	"github.com/anstrom/netrecon/internal/metrics"
	"github.com/anstrom/netrecon/internal/report"
	"github.com/anstrom/netrecon/internal/scanning"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

// newPinger builds the reachability check from the discovery settings.
func newPinger(d config.DiscoveryConfig) discovery.Pinger {
	tcp := discovery.NewTCPPinger()
	if len(d.ReachabilityPorts) > 0 {
		tcp.Ports = d.ReachabilityPorts
	}
	if d.UseICMP {
		if icmp := discovery.NewICMPPinger(); icmp != nil {
			return discovery.FirstOf{icmp, tcp}
		}
	}
	return tcp
}

// scanDependencies wires the engine collaborators from cfg. recorder may
// be nil.
func scanDependencies(cfg *config.Config, recorder metrics.Recorder) scanning.Dependencies {
	return scanning.Dependencies{
		Pinger:    newPinger(cfg.Discovery),
		Topology:  cfg.TopologyDetector(),
		RateLimit: cfg.Scanning.RateLimit,
		Metrics:   recorder,
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// progressPrinter writes one line per progress update unless quiet.
func progressPrinter(w io.Writer, quiet bool) scanning.ProgressFunc {
	if quiet {
		return nil
	}
	return func(p scanning.Progress) {
		fmt.Fprintf(w, "[%d/%d %3.0f%%] %s\n", p.Phase, p.TotalPhases, p.Fraction*100, p.Message)
	}
}

func validateFormat(format string) error {
	switch strings.ToLower(format) {
	case formatTable, formatCSV, formatJSON:
		return nil
	}
	return fmt.Errorf("invalid output format %q (valid: table, csv, json)", format)
}

// writeResult renders result in format to w.
func writeResult(w io.Writer, format string, result *scanning.Result) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return report.JSON(w, result)
	case formatCSV:
		return report.CSV(w, result.Hosts)
	default:
		if err := report.Table(w, result.Hosts); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "\n%d of %d hosts alive, scan %s in %s\n",
			result.AliveCount(), len(result.Hosts), strings.ToLower(string(result.State)), result.Duration.Round(time.Millisecond))
		return err
	}
}

// openOutput returns stdout when path is empty.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// runAndReport runs one scan in the foreground and writes its result. A
// cancelled scan still reports the hosts found so far.
func runAndReport(cfg *config.Config, scanCfg scanning.Config, format, outputFile string, quiet bool) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	out, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, stop := signalContext()
	defer stop()

	result, scanErr := scanning.Run(ctx, scanCfg, scanDependencies(cfg, nil), progressPrinter(os.Stderr, quiet))
	if result.State == scanning.Failed {
		return scanErr
	}
	if err := writeResult(out, format, result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return scanErr
}
