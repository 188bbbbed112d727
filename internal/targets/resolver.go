// Package targets resolves user-supplied scan targets into a deduplicated,
// order-preserving candidate list. It accepts single IPv4 addresses and
// CIDR subnets, expanding subnets to their usable host addresses.
package targets

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/avolpe/scanflow/internal/errors"
)

// Networks larger than /16 expand to 65k+ hosts and are almost always a
// typo in the target spec.
const minPrefixBits = 16

// Target is a single resolved scan candidate.
type Target struct {
	// Address is the dotted-quad host address.
	Address string
	// FromSubnet is true when the address came from CIDR expansion.
	FromSubnet bool
}

// CandidateList is an ordered sequence of unique targets. Order is the
// first-seen input order; report rows are emitted in this order.
type CandidateList []Target

// Addresses returns the plain address strings in candidate order.
func (c CandidateList) Addresses() []string {
	out := make([]string, len(c))
	for i, t := range c {
		out[i] = t.Address
	}
	return out
}

// Contains reports whether an address is in the list.
func (c CandidateList) Contains(address string) bool {
	for _, t := range c {
		if t.Address == address {
			return true
		}
	}
	return false
}

// Resolve validates and expands a mix of single addresses and CIDR subnets
// into a candidate list. Duplicates are removed keeping the first
// occurrence. Any malformed entry fails the whole resolution.
func Resolve(inputs []string) (CandidateList, error) {
	var list CandidateList
	seen := make(map[string]struct{})

	add := func(address string, fromSubnet bool) {
		if _, ok := seen[address]; ok {
			return
		}
		seen[address] = struct{}{}
		list = append(list, Target{Address: address, FromSubnet: fromSubnet})
	}

	for _, raw := range inputs {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			hosts, err := ExpandCIDR(entry)
			if err != nil {
				return nil, err
			}
			for _, h := range hosts {
				add(h, true)
			}
			continue
		}

		addr, err := parseAddress(entry)
		if err != nil {
			return nil, err
		}
		add(addr.String(), false)
	}

	return list, nil
}

// ExpandCIDR expands an IPv4 CIDR block into its usable host addresses,
// excluding the network and broadcast addresses. A /32 yields the single
// address and a /31 yields both, per standard subnetting rules.
func ExpandCIDR(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, errors.WrapWithTarget(errors.CodeTargetInvalid, "invalid CIDR block", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return nil, errors.ErrInvalidTarget(cidr)
	}
	if prefix.Bits() < minPrefixBits {
		return nil, errors.NewWithTarget(errors.CodeTargetInvalid,
			fmt.Sprintf("network too large, /%d or smaller required", minPrefixBits), cidr)
	}

	prefix = prefix.Masked()

	switch prefix.Bits() {
	case 32:
		return []string{prefix.Addr().String()}, nil
	case 31:
		first := prefix.Addr()
		return []string{first.String(), first.Next().String()}, nil
	}

	var hosts []string
	// Skip the network address, stop before the broadcast address.
	for addr := prefix.Addr().Next(); prefix.Contains(addr); addr = addr.Next() {
		if !prefix.Contains(addr.Next()) {
			break
		}
		hosts = append(hosts, addr.String())
	}
	return hosts, nil
}

// ReadList reads one target entry per line from r, skipping blank lines
// and '#' comments. Entries are returned unvalidated; pass them to Resolve.
func ReadList(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeInputFile, "failed to read target list", err)
	}
	return entries, nil
}

func parseAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, errors.WrapWithTarget(errors.CodeTargetInvalid, "invalid address", s, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, errors.ErrInvalidTarget(s)
	}
	return addr, nil
}
