package httptransport

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientResolver picks the address a request is attributed to for rate limiting and logs.
// X-Forwarded-For is honoured only when the connection comes from a trusted proxy.
type ClientResolver struct {
	trusted []netip.Prefix
}

// NewClientResolver accepts proxy addresses as CIDRs or bare IPs. With none, the
// connection address is always used.
func NewClientResolver(trustedProxies []string) (*ClientResolver, error) {
	c := &ClientResolver{}
	for _, entry := range trustedProxies {
		prefix, err := parseProxy(entry)
		if err != nil {
			return nil, err
		}
		c.trusted = append(c.trusted, prefix)
	}
	return c, nil
}

func parseProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("trusted proxy %q: %w", entry, err)
	}
	return netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()), nil
}

// ClientIP returns the right-most X-Forwarded-For hop that is not a trusted proxy,
// provided the connection itself is trusted. Otherwise it returns the connection address.
func (c *ClientResolver) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	if c == nil || !c.isTrusted(remote) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		if !c.isTrusted(hop) {
			return hop
		}
	}
	return remote
}

func (c *ClientResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
