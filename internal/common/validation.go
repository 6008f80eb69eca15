package common

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

type URLValidator struct {
	AllowedDomains       []string
	DeniedDomains        []string
	AllowPrivateNetworks bool
}

func NewURLValidator(allowed, denied []string, allowPrivate bool) *URLValidator {
	return &URLValidator{
		AllowedDomains:       allowed,
		DeniedDomains:        denied,
		AllowPrivateNetworks: allowPrivate,
	}
}

func (v *URLValidator) ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q (only http/https allowed)", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if ip := net.ParseIP(host); ip != nil && !v.AllowPrivateNetworks && isInternalIP(ip) {
		return nil, fmt.Errorf("%w: internal IP addresses are not allowed", ErrBlockedURL)
	}

	for _, denied := range v.DeniedDomains {
		if strings.Contains(host, denied) {
			return nil, fmt.Errorf("%w: domain %s is blocked", ErrBlockedURL, host)
		}
	}

	if len(v.AllowedDomains) > 0 {
		allowed := false
		for _, domain := range v.AllowedDomains {
			if strings.Contains(host, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("%w: domain %s is not in allowed list", ErrBlockedURL, host)
		}
	}

	return u, nil
}

func isInternalIP(ip net.IP) bool {
	privateCIDRs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
	}

	for _, cidr := range privateCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

var contentIDRegex = regexp.MustCompile(`^[0-9a-f]{12}$`)

// IsContentID reports whether s looks like a store-issued content id. Ids
// name files in the cache directory, so anything else must never reach the
// filesystem.
func IsContentID(s string) bool {
	return contentIDRegex.MatchString(s)
}
