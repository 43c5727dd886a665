package grpc

import (
	"fmt"
	"net"
	"strings"
)

// ListenLoopback listens on addr and refuses any host that is not a loopback address.
// The trusted backend listener uses it so the privileged path never faces the network.
func ListenLoopback(addr string) (net.Listener, error) {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return nil, fmt.Errorf("parse trusted listen address %q: %w", addr, err)
	}
	if !IsLoopbackHost(host) {
		return nil, fmt.Errorf("trusted listen address %q must bind a loopback host", addr)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on trusted address %s: %w", addr, err)
	}
	return listener, nil
}

// IsLoopbackHost reports whether host is "localhost" or a loopback IP.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
