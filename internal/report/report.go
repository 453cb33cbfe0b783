// Package report renders scan results for people and for other programs:
// a console table, a flat CSV export and a node/edge graph document.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netrecon/internal/hosts"
)

// Columns are the fields of the flat export, in order.
var Columns = []string{
	"IP", "Hostname", "Response (ms)", "Ports", "Services", "OS", "Risk", "Vulnerabilities",
}

// Row returns the flat export fields for h.
func Row(h hosts.Host) []string {
	response := "-"
	if h.ResponseTime != hosts.NotMeasured {
		response = strconv.FormatInt(h.ResponseTime, 10)
	}
	return []string{
		h.IP,
		h.Hostname,
		response,
		strconv.Itoa(len(h.OpenPorts)),
		strings.Join(h.Services, "; "),
		h.OS,
		h.Risk.String(),
		strings.Join(h.Vulnerabilities, "; "),
	}
}

// Table writes hosts as an aligned console table.
func Table(w io.Writer, hs []hosts.Host) error {
	table := tablewriter.NewWriter(w)
	table.Header("IP", "Hostname", "MAC", "Vendor", "RTT", "Open Ports", "Services", "OS", "Risk")
	for i := range hs {
		h := &hs[i]
		rtt := "-"
		if h.ResponseTime != hosts.NotMeasured {
			rtt = fmt.Sprintf("%dms", h.ResponseTime)
		}
		if err := table.Append([]string{
			h.IP,
			h.Hostname,
			h.MAC,
			h.Vendor,
			rtt,
			joinInts(h.OpenPorts),
			strings.Join(h.Services, ", "),
			h.OS,
			h.Risk.String(),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// CSV writes the flat export with a header row.
func CSV(w io.Writer, hs []hosts.Host) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, h := range hs {
		if err := cw.Write(Row(h)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinInts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
