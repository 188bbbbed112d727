package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/gosnmp/gosnmp"
)

// Status is the outcome of a single liveness check.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// LivenessProbe checks whether a single address responds. Implementations
// must honor the context deadline; errors are treated as inactive by the
// engine, never as fatal.
type LivenessProbe interface {
	// Check probes one address.
	Check(ctx context.Context, address string) (Status, error)
	// Method names the probe for logging and metrics.
	Method() string
}

// NmapProbe performs an nmap ping scan (ICMP echo plus ARP on the local
// segment) against one host at a time.
type NmapProbe struct{}

// Method implements LivenessProbe.
func (p *NmapProbe) Method() string { return "nmap" }

// Check implements LivenessProbe.
func (p *NmapProbe) Check(ctx context.Context, address string) (Status, error) {
	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(address),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	)
	if err != nil {
		return StatusError, fmt.Errorf("failed to create nmap scanner: %w", err)
	}

	result, _, err := scanner.Run()
	if err != nil {
		return StatusError, fmt.Errorf("nmap ping scan failed: %w", err)
	}

	for i := range result.Hosts {
		if result.Hosts[i].Status.State == "up" {
			return StatusActive, nil
		}
	}
	return StatusInactive, nil
}

// TCPProbe considers a host alive when any of a small set of common ports
// accepts a connection. Useful where ICMP is filtered or nmap is absent.
type TCPProbe struct {
	// Ports to attempt, in order. Defaults to a short well-known set.
	Ports []int
	// DialTimeout bounds each individual connect attempt.
	DialTimeout time.Duration
}

var defaultProbePorts = []int{22, 80, 443, 445, 3389, 8080}

// Method implements LivenessProbe.
func (p *TCPProbe) Method() string { return "tcp" }

// Check implements LivenessProbe.
func (p *TCPProbe) Check(ctx context.Context, address string) (Status, error) {
	ports := p.Ports
	if len(ports) == 0 {
		ports = defaultProbePorts
	}
	dialTimeout := p.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = time.Second
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	for _, port := range ports {
		if ctx.Err() != nil {
			return StatusError, ctx.Err()
		}
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
		if err == nil {
			conn.Close()
			return StatusActive, nil
		}
	}
	return StatusInactive, nil
}

// sysDescr, present on effectively every SNMP-capable device.
const sysDescrOID = ".1.3.6.1.2.1.1.1.0"

// SNMPProbe considers a host alive when it answers an SNMP GET for
// sysDescr. Intended for network gear segments where ICMP and TCP sweeps
// are unreliable.
type SNMPProbe struct {
	Community string
	Port      uint16
	Timeout   time.Duration
}

// Method implements LivenessProbe.
func (p *SNMPProbe) Method() string { return "snmp" }

// Check implements LivenessProbe.
func (p *SNMPProbe) Check(ctx context.Context, address string) (Status, error) {
	community := p.Community
	if community == "" {
		community = "public"
	}
	port := p.Port
	if port == 0 {
		port = 161
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	client := &gosnmp.GoSNMP{
		Target:    address,
		Port:      port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   0,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return StatusError, fmt.Errorf("snmp connect failed: %w", err)
	}
	defer client.Conn.Close()

	packet, err := client.Get([]string{sysDescrOID})
	if err != nil {
		return StatusInactive, nil
	}
	if packet.Error != gosnmp.NoError {
		return StatusInactive, nil
	}
	return StatusActive, nil
}
