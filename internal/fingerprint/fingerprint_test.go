package fingerprint

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogServiceNames(t *testing.T) {
	c := Default()

	tests := []struct {
		port int
		want string
	}{
		{22, "SSH"},
		{80, "HTTP"},
		{443, "HTTPS"},
		{3306, "MySQL"},
		{3389, "RDP"},
		{5432, "PostgreSQL"},
		{31337, UnknownService},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.port), func(t *testing.T) {
			assert.Equal(t, tt.want, c.ServiceName(tt.port))
		})
	}
}

func TestVendor(t *testing.T) {
	c := Default()
	assert.Equal(t, "Raspberry Pi", c.Vendor("b8:27:eb:12:34:56"))
	assert.Equal(t, "VMware", c.Vendor("00-50-56-AA-BB-CC"))
	assert.Equal(t, "", c.Vendor("02:00:00:00:00:01"))
	assert.Equal(t, "", c.Vendor("bad"))
}

func TestMatchBanner(t *testing.T) {
	c := Default()

	tests := []struct {
		name    string
		banner  string
		product string
		version string
	}{
		{"openssh", "SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13", "OpenSSH", "9.6p1"},
		{"nginx", "HTTP/1.1 200 OK\nServer: nginx/1.24.0", "nginx", "1.24.0"},
		{"apache", "HTTP/1.1 200 OK\nServer: Apache/2.4.58 (Debian)", "Apache", "2.4.58"},
		{"iis", "HTTP/1.1 200 OK\nServer: Microsoft-IIS/10.0", "Microsoft-IIS", "10.0"},
		{"microsoft esmtp", "220 mail.example.com Microsoft ESMTP MAIL Service ready", "Microsoft", ""},
		{"vsftpd", "220 (vsFTPd 3.0.5)", "vsFTPd", "3.0.5"},
		{"postfix", "220 mx.example.com ESMTP Postfix (Debian/GNU)", "Postfix", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := c.MatchBanner(tt.banner)
			require.True(t, ok)
			assert.Equal(t, tt.product, m.Product)
			assert.Equal(t, tt.version, m.Version)
		})
	}

	_, ok := c.MatchBanner("")
	assert.False(t, ok)
	_, ok = c.MatchBanner("hello world")
	assert.False(t, ok)
}

func TestLabel(t *testing.T) {
	c := Default()
	assert.Equal(t, "HTTP (nginx 1.24.0)", c.Label(80, "Server: nginx/1.24.0"))
	assert.Equal(t, "SMTP (Postfix)", c.Label(25, "220 ESMTP Postfix"))
	assert.Equal(t, "SSH", c.Label(22, ""))
	assert.Equal(t, UnknownService, c.Label(40000, ""))
}

func TestParseRejectsBadSignature(t *testing.T) {
	_, err := Parse([]byte("signatures:\n  - product: x\n    pattern: '('\n"), []byte("vendors: {}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("services: [\n"), nil)
	assert.Error(t, err)
}

// serveOnce accepts a single connection and runs handle on it.
func serveOnce(t *testing.T, handle func(net.Conn)) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestGrabReadsGreeting(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		_, _ = c.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
		time.Sleep(100 * time.Millisecond)
	})

	g := NewGrabber(500 * time.Millisecond)
	banner := g.Grab(context.Background(), "127.0.0.1", port)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", banner)
}

func TestGrabLimitsLines(t *testing.T) {
	port := serveOnce(t, func(c net.Conn) {
		for i := 0; i < 10; i++ {
			_, _ = c.Write([]byte("line " + strconv.Itoa(i) + "\r\n"))
		}
	})

	g := NewGrabber(500 * time.Millisecond)
	g.MaxLines = 3
	assert.Equal(t, "line 0\nline 1\nline 2", g.Grab(context.Background(), "127.0.0.1", port))
}

func TestGrabClosedPortIsEmpty(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	g := NewGrabber(200 * time.Millisecond)
	assert.Equal(t, "", g.Grab(context.Background(), "127.0.0.1", port))
}

func TestNewGrabberCapsTimeout(t *testing.T) {
	assert.Equal(t, DefaultBannerTimeout, NewGrabber(0).Timeout)
	assert.Equal(t, DefaultBannerTimeout, NewGrabber(time.Minute).Timeout)
	assert.Equal(t, time.Second, NewGrabber(time.Second).Timeout)
}

func TestIsHTTPLike(t *testing.T) {
	tests := []struct {
		port int
		want bool
	}{
		{80, true},
		{81, true},
		{3000, true},
		{5000, true},
		{8000, true},
		{8008, true},
		{8080, true},
		{8081, true},
		{8888, true},
		{9000, true},
		{22, false},
		{443, false},
		{8443, false},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.port), func(t *testing.T) {
			assert.Equal(t, tt.want, IsHTTPLike(tt.port))
		})
	}
}

func TestEngineIdentify(t *testing.T) {
	e := NewEngine(nil, nil)
	labels := e.Identify(context.Background(), "127.0.0.1", []int{22, 80, 40000})
	assert.Equal(t, []string{"SSH", "HTTP", UnknownService}, labels)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, e.Identify(ctx, "127.0.0.1", []int{22}))
}
