package fingerprint

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBannerTimeout bounds one banner grab.
	DefaultBannerTimeout = 2 * time.Second
	// DefaultBannerLines is how many lines of a banner are kept.
	DefaultBannerLines = 5

	maxLineBytes = 512
)

var httpLikePorts = map[int]bool{
	80: true, 81: true, 3000: true, 5000: true, 8000: true,
	8008: true, 8080: true, 8081: true, 8888: true, 9000: true,
}

// IsHTTPLike reports whether port is normally plain HTTP.
func IsHTTPLike(port int) bool {
	return httpLikePorts[port]
}

// Grabber reads short service banners.
type Grabber struct {
	Timeout  time.Duration
	MaxLines int
	Dialer   *net.Dialer
}

// NewGrabber creates a grabber bounded by timeout, capped at DefaultBannerTimeout.
func NewGrabber(timeout time.Duration) *Grabber {
	if timeout <= 0 || timeout > DefaultBannerTimeout {
		timeout = DefaultBannerTimeout
	}
	return &Grabber{
		Timeout:  timeout,
		MaxLines: DefaultBannerLines,
		Dialer:   &net.Dialer{Timeout: timeout},
	}
}

// Grab connects to ip:port and returns up to MaxLines lines of whatever the
// service sends. HTTP-like ports get a HEAD request first. Any failure
// yields an empty banner.
func (g *Grabber) Grab(ctx context.Context, ip string, port int) string {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	conn, err := g.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return ""
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ""
	}

	if IsHTTPLike(port) {
		probe := "HEAD / HTTP/1.0\r\nHost: " + ip + "\r\nUser-Agent: netrecon\r\n\r\n"
		if _, err := conn.Write([]byte(probe)); err != nil {
			return ""
		}
	}

	maxLines := g.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultBannerLines
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineBytes), maxLineBytes)
	lines := make([]string, 0, maxLines)
	for len(lines) < maxLines && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
