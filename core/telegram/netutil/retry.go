package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"syscall"
)

// Error kinds reported by Classify.
const (
	KindTimeout = "timeout"
	KindDNS     = "dns"
	KindDial    = "dial"
	KindReset   = "reset"
	KindTLS     = "tls"
	KindNetwork = "network"
	KindUnknown = "unknown"
)

// Classify names the transport failure behind err, or "" for nil.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return KindReset
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return KindTLS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindDial
		}
		return KindNetwork
	}
	return KindUnknown
}

// ShouldRetry reports whether err is a transient failure: a timeout, a failed
// dial or a reset connection.
func ShouldRetry(err error) bool {
	switch Classify(err) {
	case KindTimeout, KindDial, KindReset:
		return true
	}
	return false
}
