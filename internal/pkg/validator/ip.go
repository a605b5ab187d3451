package validator

import (
	"net"
	"strings"
)

// IsValidIP reports whether ip is an IPv4 or IPv6 address.
func IsValidIP(ip string) bool {
	if ip == "" {
		return false
	}
	return net.ParseIP(ip) != nil
}

// NormalizeIP strips the IPv6 zone (fe80::1%eth0 -> fe80::1) and
// canonicalizes the address, so ::ffff:10.0.0.1 and 10.0.0.1 compare equal.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if idx := strings.IndexByte(ip, '%'); idx != -1 {
		ip = ip[:idx]
	}
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}

// GetIPOrDefault returns the normalized ip, or defaultIP when it is not valid.
func GetIPOrDefault(ip, defaultIP string) string {
	normalized := NormalizeIP(ip)
	if IsValidIP(normalized) {
		return normalized
	}
	return defaultIP
}
