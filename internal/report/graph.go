package report

import "github.com/anstrom/netrecon/internal/hosts"

// GatewayNodeID identifies the synthetic gateway node.
const GatewayNodeID = "gateway"

// Node kinds.
const (
	KindGateway = "gateway"
	KindHost    = "host"
)

// Node is one vertex of the graph document.
type Node struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Kind      string   `json:"kind"`
	IP        string   `json:"ip,omitempty"`
	OS        string   `json:"os,omitempty"`
	Risk      string   `json:"risk,omitempty"`
	OpenPorts []int    `json:"open_ports,omitempty"`
	Services  []string `json:"services,omitempty"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
}

// Edge links the gateway to a host.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the node/edge view of a scan.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BuildGraph returns one node per host plus a synthetic gateway node with an
// edge to every host. A host whose address is the gateway is folded into the
// gateway node instead of getting its own.
func BuildGraph(hs []hosts.Host, gateway string) Graph {
	gw := Node{ID: GatewayNodeID, Label: "Gateway", Kind: KindGateway}
	if gateway != "" {
		gw.Label = "Gateway " + gateway
		gw.IP = gateway
	}

	g := Graph{Nodes: []Node{gw}, Edges: []Edge{}}
	for _, h := range hs {
		if gateway != "" && h.IP == gateway {
			n := &g.Nodes[0]
			n.OS = h.OS
			n.Risk = h.Risk.String()
			n.OpenPorts = h.OpenPorts
			n.Services = h.Services
			continue
		}
		label := h.IP
		if h.Hostname != "" {
			label = h.Hostname + " (" + h.IP + ")"
		}
		g.Nodes = append(g.Nodes, Node{
			ID:        h.IP,
			Label:     label,
			Kind:      KindHost,
			IP:        h.IP,
			OS:        h.OS,
			Risk:      h.Risk.String(),
			OpenPorts: h.OpenPorts,
			Services:  h.Services,
			X:         h.X,
			Y:         h.Y,
		})
		g.Edges = append(g.Edges, Edge{From: GatewayNodeID, To: h.IP})
	}
	return g
}
