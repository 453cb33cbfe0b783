package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrNoReply is returned when a host does not answer within the timeout.
var ErrNoReply = errors.New("no reply")

// Pinger checks whether a single IPv4 address answers.
type Pinger interface {
	Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error)
}

// DefaultReachabilityPorts are dialled by the TCP reachability check.
var DefaultReachabilityPorts = []int{80, 443, 22, 445, 139}

// ICMPPinger sends ICMP echo requests. Network is "ip4:icmp" for raw
// sockets or "udp4" for unprivileged datagram ping sockets.
type ICMPPinger struct {
	Network string

	id  int
	seq atomic.Uint32
}

// NewICMPPinger probes which ICMP socket type this process may open. It
// returns nil when neither is permitted.
func NewICMPPinger() *ICMPPinger {
	for _, network := range []string{"ip4:icmp", "udp4"} {
		conn, err := icmp.ListenPacket(network, "0.0.0.0")
		if err != nil {
			continue
		}
		conn.Close()
		return &ICMPPinger{Network: network, id: rand.IntN(0xffff)}
	}
	return nil
}

// Ping sends one echo request and waits for the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error) {
	dst := net.ParseIP(ip).To4()
	if dst == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", ip)
	}

	conn, err := icmp.ListenPacket(p.Network, "0.0.0.0")
	if err != nil {
		return 0, fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte("netrecon")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	var addr net.Addr = &net.IPAddr{IP: dst}
	if p.Network == "udp4" {
		addr = &net.UDPAddr{IP: dst}
	}

	start := time.Now()
	if err := conn.SetDeadline(start.Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := conn.WriteTo(wb, addr); err != nil {
		return 0, err
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, ErrNoReply
		}
		if !sameHost(peer, dst) {
			continue
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		// Datagram ping sockets rewrite the identifier, so only the
		// sequence number is compared there.
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq &&
			(p.Network == "udp4" || echo.ID == p.id) {
			return time.Since(start), nil
		}
	}
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.IPAddr:
		return a.IP.Equal(ip)
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	}
	return false
}

// TCPPinger treats a host as alive when any of Ports accepts or actively
// refuses a connection.
type TCPPinger struct {
	Ports []int
}

// NewTCPPinger creates a TCP reachability checker over DefaultReachabilityPorts.
func NewTCPPinger() *TCPPinger {
	return &TCPPinger{Ports: DefaultReachabilityPorts}
}

// Ping dials every port concurrently and returns the first answer.
func (p *TCPPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ports := p.Ports
	if len(ports) == 0 {
		ports = DefaultReachabilityPorts
	}

	start := time.Now()
	answered := make(chan time.Duration, len(ports))
	failed := make(chan struct{}, len(ports))
	var d net.Dialer
	for _, port := range ports {
		go func(port int) {
			conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
			if err == nil {
				conn.Close()
				answered <- time.Since(start)
				return
			}
			if errors.Is(err, syscall.ECONNREFUSED) {
				answered <- time.Since(start)
				return
			}
			failed <- struct{}{}
		}(port)
	}

	for remaining := len(ports); remaining > 0; remaining-- {
		select {
		case rtt := <-answered:
			return rtt, nil
		case <-failed:
		case <-ctx.Done():
			remaining = 0
		}
	}
	if err := parentErr(ctx); err != nil {
		return 0, err
	}
	return 0, ErrNoReply
}

// parentErr reports cancellation that did not come from our own timeout.
func parentErr(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), context.Canceled) {
		return context.Canceled
	}
	return nil
}

// FirstOf runs pingers concurrently and succeeds as soon as one does.
type FirstOf []Pinger

// Ping implements Pinger.
func (f FirstOf) Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error) {
	if len(f) == 1 {
		return f[0].Ping(ctx, ip, timeout)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		rtt time.Duration
		err error
	}
	results := make(chan result, len(f))
	for _, p := range f {
		go func(p Pinger) {
			rtt, err := p.Ping(ctx, ip, timeout)
			results <- result{rtt, err}
		}(p)
	}

	var last error = ErrNoReply
	for range f {
		r := <-results
		if r.err == nil {
			return r.rtt, nil
		}
		last = r.err
	}
	return 0, last
}

// SystemPinger combines ICMP, when the process may open an ICMP socket,
// with the TCP reachability check.
func SystemPinger() Pinger {
	if p := NewICMPPinger(); p != nil {
		return FirstOf{p, NewTCPPinger()}
	}
	return NewTCPPinger()
}
