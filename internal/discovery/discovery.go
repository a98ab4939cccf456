// Package discovery advertises and finds room servers on the local network
// with mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const domain = "local."

// ErrNotFound is returned when browsing ends without an answer.
var ErrNotFound = errors.New("discovery: no room server found")

// Register advertises a room server listening on port. The websocket path
// goes into the TXT record so agents can build the URL. Call Shutdown on the
// returned server when done.
func Register(service string, port int, wsPath string, logger *slog.Logger) (*zeroconf.Server, error) {
	host, _ := os.Hostname()
	instance := fmt.Sprintf("CollabNotes-%s", host)
	server, err := zeroconf.Register(instance, service, domain, port, []string{"path=" + wsPath}, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register %s: %w", service, err)
	}
	logger.Info("mDNS service registered", "service", service, "instance", instance, "port", port)
	return server, nil
}

// Lookup browses for service until the first answer or until ctx ends, and
// returns the websocket URL of the server it found.
func Lookup(ctx context.Context, service string, logger *slog.Logger) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("discovery: resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func(results <-chan *zeroconf.ServiceEntry) {
		for entry := range results {
			u, err := URL(entry)
			if err != nil {
				logger.Debug("skipping mDNS answer", "instance", entry.Instance, "err", err)
				continue
			}
			logger.Info("mDNS discovered room server", "instance", entry.Instance, "url", u)
			select {
			case found <- u:
				cancel()
			default:
			}
		}
	}(entries)

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return "", fmt.Errorf("discovery: browse %s: %w", service, err)
	}
	select {
	case u := <-found:
		return u, nil
	case <-ctx.Done():
	}
	select {
	case u := <-found:
		return u, nil
	default:
		return "", ErrNotFound
	}
}

// URL builds the websocket URL advertised by entry.
func URL(entry *zeroconf.ServiceEntry) (string, error) {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", fmt.Errorf("discovery: %s has no address", entry.Instance)
	}
	path := "/ws"
	for _, txt := range entry.Text {
		if len(txt) > 5 && txt[:5] == "path=" {
			path = txt[5:]
		}
	}
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)),
		Path:   path,
	}
	return u.String(), nil
}
