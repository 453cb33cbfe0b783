// Package fingerprint identifies services on open ports. It maps ports to
// well-known service names, optionally grabs a short banner and matches it
// against product signatures, and resolves MAC address prefixes to vendors.
// The reference tables are embedded YAML assets under data/.
package fingerprint

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// UnknownService is the label for ports missing from the service table.
const UnknownService = "Unknown"

var (
	//go:embed data/services.yaml
	embeddedServices []byte

	//go:embed data/oui.yaml
	embeddedOUI []byte
)

// Signature matches a product in banner text.
type Signature struct {
	Product string `yaml:"product"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// Match is the product and version recognised in a banner.
type Match struct {
	Product string
	Version string
}

// String renders "product version", or just the product.
func (m Match) String() string {
	if m.Version == "" {
		return m.Product
	}
	return m.Product + " " + m.Version
}

// Catalog holds the port, signature and vendor tables.
type Catalog struct {
	services   map[int]string
	signatures []Signature
	vendors    map[string]string
}

type servicesFile struct {
	Services   map[int]string `yaml:"services"`
	Signatures []Signature    `yaml:"signatures"`
}

type ouiFile struct {
	Vendors map[string]string `yaml:"vendors"`
}

// Parse builds a catalog from YAML documents in the layout of the embedded assets.
func Parse(servicesYAML, ouiYAML []byte) (*Catalog, error) {
	var sf servicesFile
	if err := yaml.Unmarshal(servicesYAML, &sf); err != nil {
		return nil, fmt.Errorf("parse service table: %w", err)
	}
	var of ouiFile
	if err := yaml.Unmarshal(ouiYAML, &of); err != nil {
		return nil, fmt.Errorf("parse vendor table: %w", err)
	}

	c := &Catalog{
		services: sf.Services,
		vendors:  make(map[string]string, len(of.Vendors)),
	}
	if c.services == nil {
		c.services = map[int]string{}
	}
	for _, sig := range sf.Signatures {
		re, err := regexp.Compile("(?i)" + sig.Pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", sig.Product, err)
		}
		sig.re = re
		c.signatures = append(c.signatures, sig)
	}
	for prefix, vendor := range of.Vendors {
		c.vendors[strings.ToLower(prefix)] = vendor
	}
	return c, nil
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Parse(embeddedServices, embeddedOUI)
})

// Default returns the catalog built from the embedded assets. The assets ship
// with the binary, so a parse failure is a build defect and panics.
func Default() *Catalog {
	c, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return c
}

// ServiceName returns the well-known name for port, or UnknownService.
func (c *Catalog) ServiceName(port int) string {
	if name, ok := c.services[port]; ok {
		return name
	}
	return UnknownService
}

// Vendor returns the manufacturer registered for the MAC's OUI prefix, or "".
func (c *Catalog) Vendor(mac string) string {
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	if len(mac) < 8 {
		return ""
	}
	return c.vendors[mac[:8]]
}

// MatchBanner returns the first signature that matches banner.
func (c *Catalog) MatchBanner(banner string) (Match, bool) {
	if banner == "" {
		return Match{}, false
	}
	for _, sig := range c.signatures {
		m := sig.re.FindStringSubmatch(banner)
		if m == nil {
			continue
		}
		match := Match{Product: sig.Product}
		if len(m) > 1 {
			match.Version = m[1]
		}
		return match, true
	}
	return Match{}, false
}

// Label combines the service name for port with any product found in banner,
// e.g. "HTTP (nginx 1.24.0)".
func (c *Catalog) Label(port int, banner string) string {
	name := c.ServiceName(port)
	if match, ok := c.MatchBanner(banner); ok {
		return fmt.Sprintf("%s (%s)", name, match)
	}
	return name
}
