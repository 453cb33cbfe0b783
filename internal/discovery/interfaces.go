package discovery

import (
	"context"
	"net"
	"slices"

	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/anstrom/netrecon/internal/fingerprint"
	"github.com/anstrom/netrecon/internal/hosts"
)

// LocalHostname is recorded for addresses bound to this machine.
const LocalHostname = "localhost"

// InterfaceSource lists network interfaces.
type InterfaceSource func(ctx context.Context) ([]psnet.InterfaceStat, error)

// SystemInterfaces reads the interfaces of this machine.
func SystemInterfaces(ctx context.Context) ([]psnet.InterfaceStat, error) {
	list, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// LocalHosts turns every IPv4 address bound to an up, non-loopback
// interface into a live host record.
func LocalHosts(stats []psnet.InterfaceStat, catalog *fingerprint.Catalog) []hosts.Host {
	var out []hosts.Host
	for _, iface := range stats {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		mac, _ := NormalizeMAC(iface.HardwareAddr)

		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}

			h := hosts.New(ip.To4().String())
			h.Alive = true
			h.Hostname = LocalHostname
			h.MAC = mac
			if mac != "" && catalog != nil {
				h.Vendor = catalog.Vendor(mac)
			}
			out = append(out, h)
		}
	}
	return out
}
