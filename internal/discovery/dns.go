package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/avolpe/scanflow/internal/logging"
)

const defaultDNSTimeout = 2 * time.Second

// HostnameResolver performs best-effort reverse lookups for discovered
// hosts so report rows can carry a name next to the address.
type HostnameResolver struct {
	// Server is the DNS server to query, host:port. Required; reverse
	// zones for scan ranges usually live on an internal resolver.
	Server  string
	Timeout time.Duration

	client *dns.Client
	logger *logging.Logger
}

// NewHostnameResolver creates a resolver querying the given server.
func NewHostnameResolver(server string) *HostnameResolver {
	return &HostnameResolver{
		Server:  server,
		Timeout: defaultDNSTimeout,
		client:  &dns.Client{Timeout: defaultDNSTimeout},
		logger:  logging.Default().WithComponent("discovery"),
	}
}

// LookupPTR resolves the PTR record for an address. Returns an empty
// string when the address has no reverse entry or the query fails.
func (r *HostnameResolver) LookupPTR(ctx context.Context, address string) string {
	reverse, err := dns.ReverseAddr(address)
	if err != nil {
		return ""
	}

	msg := new(dns.Msg)
	msg.SetQuestion(reverse, dns.TypePTR)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.Server)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		if err != nil {
			r.logger.Debug("PTR lookup failed", "target", address, "error", err)
		}
		return ""
	}

	for _, answer := range resp.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}

// ResolveAll looks up names for a set of addresses, returning a map with
// entries only for the ones that resolved.
func (r *HostnameResolver) ResolveAll(ctx context.Context, addresses []string) map[string]string {
	names := make(map[string]string)
	for _, addr := range addresses {
		if ctx.Err() != nil {
			break
		}
		if name := r.LookupPTR(ctx, addr); name != "" {
			names[addr] = name
		}
	}
	return names
}
