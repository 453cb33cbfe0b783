package fingerprint

import "context"

// Engine labels the open ports of a host.
type Engine struct {
	catalog *Catalog
	grabber *Grabber
}

// NewEngine creates an engine. A nil grabber disables banner grabbing and a
// nil catalog uses Default.
func NewEngine(catalog *Catalog, grabber *Grabber) *Engine {
	if catalog == nil {
		catalog = Default()
	}
	return &Engine{catalog: catalog, grabber: grabber}
}

// Catalog returns the tables the engine labels with.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Identify returns one service label per open port, in port order. It stops
// early when ctx is done and returns the labels gathered so far.
func (e *Engine) Identify(ctx context.Context, ip string, ports []int) []string {
	labels := make([]string, 0, len(ports))
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		banner := ""
		if e.grabber != nil {
			banner = e.grabber.Grab(ctx, ip, port)
		}
		labels = append(labels, e.catalog.Label(port, banner))
	}
	return labels
}
