package portscan

import (
	"context"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
)

// UDPCaveat describes what a UDP verdict means. A port only counts as open
// when something answers; silence is indistinguishable from a filtered or
// closed port, so UDP results under-report and never prove a port closed.
const UDPCaveat = "UDP results list only ports that answered a probe; " +
	"ports that stayed silent may still be open or filtered"

// ProbeFunc reports whether ip:port answered within timeout.
type ProbeFunc func(ctx context.Context, ip string, port int, timeout time.Duration) bool

// ProbeTCP completes a TCP handshake with ip:port.
func ProbeTCP(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ProbeUDP sends a protocol-appropriate stimulus to ip:port and reports
// whether a valid reply arrived. See UDPCaveat.
func ProbeUDP(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return false
	}

	s := stimulusFor(port)
	if _, err := conn.Write(s.payload); err != nil {
		return false
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	return s.valid == nil || s.valid(buf[:n])
}

type stimulus struct {
	payload []byte
	valid   func(reply []byte) bool
}

func stimulusFor(port int) stimulus {
	switch port {
	case 53, 5353:
		return dnsStimulus()
	case 161, 162:
		return snmpStimulus()
	case 123:
		return ntpStimulus()
	}
	return stimulus{payload: []byte{0x00}}
}

func dnsStimulus() stimulus {
	q := new(dns.Msg)
	q.SetQuestion(".", dns.TypeNS)
	q.Id = dns.Id()
	payload, err := q.Pack()
	if err != nil {
		return stimulus{payload: []byte{0x00}}
	}
	return stimulus{
		payload: payload,
		valid: func(reply []byte) bool {
			var m dns.Msg
			return m.Unpack(reply) == nil && m.Response && m.Id == q.Id
		},
	}
}

func snmpStimulus() stimulus {
	packet := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: "public",
		PDUType:   gosnmp.GetRequest,
		RequestID: rand.Uint32() & 0x7fffffff,
		Variables: []gosnmp.SnmpPDU{{
			Name: ".1.3.6.1.2.1.1.1.0", // sysDescr
			Type: gosnmp.Null,
		}},
	}
	payload, err := packet.MarshalMsg()
	if err != nil {
		return stimulus{payload: []byte{0x00}}
	}
	return stimulus{payload: payload}
}

func ntpStimulus() stimulus {
	req := make([]byte, 48)
	req[0] = 0x1b // LI 0, version 3, mode 3 (client)
	return stimulus{
		payload: req,
		valid: func(reply []byte) bool {
			return len(reply) >= 48 && reply[0]&0x07 == 4
		},
	}
}
