package scan

import (
	"net"
	"net/url"
	"strings"

	"github.com/wardenhq/warden/internal/domain"
)

// targetInfo is the classified form of an operator-supplied target.
type targetInfo struct {
	Target string
	Type   domain.TargetType
	Host   string
	Scheme string
}

// inferTarget classifies a target as a URL, bare domain or IP address.
// Repository and local-path targets are not supported by the control plane.
func inferTarget(target string) (targetInfo, error) {
	if strings.HasPrefix(target, "git@") || strings.HasSuffix(target, ".git") {
		return targetInfo{}, domain.NewError(domain.ErrValidation, "repository targets are not supported")
	}
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "./") || strings.HasPrefix(target, "~") {
		return targetInfo{}, domain.NewError(domain.ErrValidation, "local directory targets are not supported")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return targetInfo{}, domain.NewError(domain.ErrValidation, "invalid target URL: %v", err)
		}
		switch u.Scheme {
		case "http", "https":
		default:
			return targetInfo{}, domain.NewError(domain.ErrValidation, "unsupported target scheme %q", u.Scheme)
		}
		if u.Hostname() == "" {
			return targetInfo{}, domain.NewError(domain.ErrValidation, "target URL has no host")
		}
		return targetInfo{Target: target, Type: domain.TargetTypeURL, Host: u.Hostname(), Scheme: u.Scheme}, nil
	}

	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return targetInfo{Target: target, Type: domain.TargetTypeIP, Host: host}, nil
	}
	if isDomain(host) {
		return targetInfo{Target: target, Type: domain.TargetTypeDomain, Host: host}, nil
	}
	return targetInfo{}, domain.NewError(domain.ErrValidation, "unrecognized target %q", target)
}

func isDomain(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}
