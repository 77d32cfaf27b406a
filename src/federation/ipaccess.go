package federation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// IPAccess is a CIDR-based blocklist/allowlist applied to backend
// addresses on top of the built-in loopback rejection.
//
// Evaluation order: blocklist denies first, then the allowlist permits.
// With an allowlist configured, only listed CIDRs pass (implicit deny);
// without one, any non-blocked IP is allowed.
type IPAccess struct {
	blocklist []*net.IPNet
	allowlist []*net.IPNet
}

// NewIPAccess parses CIDR strings into an access control. Invalid entries
// are logged and skipped rather than failing startup.
func NewIPAccess(blocklist, allowlist []string) *IPAccess {
	parse := func(entries []string, kind string) []*net.IPNet {
		var nets []*net.IPNet
		for _, s := range entries {
			_, n, err := net.ParseCIDR(s)
			if err != nil {
				logrus.Warnf("invalid %s CIDR %q, skipping: %v", kind, s, err)
				continue
			}
			nets = append(nets, n)
		}
		return nets
	}
	return &IPAccess{
		blocklist: parse(blocklist, "blocklist"),
		allowlist: parse(allowlist, "allowlist"),
	}
}

// Check reports whether the IP is allowed, with a reason when denied.
func (a *IPAccess) Check(ip net.IP) error {
	for _, n := range a.blocklist {
		if n.Contains(ip) {
			return fmt.Errorf("IP %s is in blocklist (%s)", ip, n)
		}
	}
	if len(a.allowlist) > 0 {
		for _, n := range a.allowlist {
			if n.Contains(ip) {
				return nil
			}
		}
		return fmt.Errorf("IP %s is not in allowlist", ip)
	}
	return nil
}

// Unconfigured reports whether neither list has entries.
func (a *IPAccess) Unconfigured() bool {
	return len(a.blocklist) == 0 && len(a.allowlist) == 0
}

// CheckAddress resolves a validated backend address and checks every
// resolved IP. The address must already carry a scheme (the output of
// ValidateAddress).
func (a *IPAccess) CheckAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("address missing host: %s", address)
	}
	if strings.Contains(host, "%") {
		return fmt.Errorf("zoned addresses are not supported: %s", host)
	}
	ips, err := resolveHost(host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %s: %w", host, err)
	}
	for _, ip := range ips {
		if err := a.Check(ip); err != nil {
			return err
		}
	}
	return nil
}
