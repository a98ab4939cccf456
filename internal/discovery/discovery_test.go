package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(text []string, v4, v6 []net.IP) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry("CollabNotes-test", "_collabnotes._tcp", "local.")
	e.Port = 8081
	e.Text = text
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	return e
}

func TestURL(t *testing.T) {
	cases := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
	}{
		{"ipv4 with path", entry([]string{"path=/notes/ws"}, []net.IP{net.ParseIP("192.168.1.7")}, nil), "ws://192.168.1.7:8081/notes/ws"},
		{"default path", entry(nil, []net.IP{net.ParseIP("10.0.0.2")}, nil), "ws://10.0.0.2:8081/ws"},
		{"ipv6 only", entry([]string{"path=/ws"}, nil, []net.IP{net.ParseIP("fe80::1")}), "ws://[fe80::1]:8081/ws"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := URL(tc.entry)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("URL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestURLWithoutAddress(t *testing.T) {
	if _, err := URL(entry(nil, nil, nil)); err == nil {
		t.Error("entry without addresses produced a URL")
	}
}

func TestRegisterThenLookup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := fmt.Sprintf("_collabnotes-%d._tcp", os.Getpid())

	server, err := Register(service, 48081, "/test/ws", logger)
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	u, err := Lookup(ctx, service, logger)
	if errors.Is(err, ErrNotFound) {
		t.Skip("no mDNS answer on this host")
	}
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "ws://") || !strings.HasSuffix(u, ":48081/test/ws") {
		t.Errorf("Lookup = %q", u)
	}
}

func TestLookupTimesOut(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := Lookup(ctx, fmt.Sprintf("_collabnotes-none-%d._tcp", os.Getpid()), logger)
	if err == nil {
		t.Fatal("Lookup found a service nobody registered")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Skipf("multicast unavailable: %v", err)
	}
}
