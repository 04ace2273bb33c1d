package scan

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Target types accepted by the scanner.
const (
	TypeURL    = "url"
	TypeDomain = "domain"
	TypeIP     = "ip"
)

// domainLabelRe matches one RFC 1035-style label: alphanumeric, hyphens
// inside, 1-63 characters.
var domainLabelRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidDomain reports whether s is a syntactically valid domain name:
// at least two labels, total length at most 253.
func ValidDomain(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !domainLabelRe.MatchString(label) {
			return false
		}
	}
	return true
}

// ValidIP reports whether s is an IPv4 or IPv6 literal.
func ValidIP(s string) bool {
	return net.ParseIP(s) != nil
}

// ValidURL reports whether s parses as an absolute http(s) URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	return ValidDomain(host) || ValidIP(host)
}

// ValidTarget dispatches on the declared type. An unknown type is invalid;
// the caller rejects it before any scan is attempted.
func ValidTarget(targetType, target string) bool {
	switch targetType {
	case TypeURL:
		return ValidURL(target)
	case TypeDomain:
		return ValidDomain(target)
	case TypeIP:
		return ValidIP(target)
	default:
		return false
	}
}
