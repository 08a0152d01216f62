package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that must never receive server-side requests, regardless of
// what they resolve to.
var blockedHosts = []string{
	"localhost",
	"metadata.google.internal",
	"metadata.google",
}

// ValidateEndpointURL checks that an operator-configured endpoint (the
// guardian notification URL) is safe for server-side delivery. Private,
// loopback, link-local, and unspecified addresses are rejected to keep a
// misconfigured or hostile NOTIFY_URL from reaching internal services or
// cloud metadata. Both the literal host and DNS-resolved addresses are
// checked.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	// An IP literal is checked directly, no DNS resolution needed.
	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, ipStr := range ips {
		resolved := net.ParseIP(ipStr)
		if resolved == nil {
			continue
		}
		if err := checkIP(resolved); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
		}
	}

	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
