package results

import (
	"encoding/json"
	"strings"

	"github.com/avolpe/scanflow/internal/artifacts"
	"github.com/avolpe/scanflow/internal/errors"
)

const statusSucceeded = "SUCCEEDED"

// Wire format of the scanner's JSON artifact. Only the fields the report
// needs are decoded; the rest of the blob is ignored.
type scanResults struct {
	ScanStatus   string        `json:"scanStatus"`
	ScanFindings []scanFinding `json:"scanFindings"`
	Recon        *reconReport  `json:"reconnaissanceReport"`
}

type scanFinding struct {
	NetworkService networkService `json:"networkService"`
	Vulnerability  vulnerability  `json:"vulnerability"`
}

type reconReport struct {
	NetworkServices []networkService `json:"networkServices"`
}

type networkService struct {
	NetworkEndpoint struct {
		Hostname struct {
			Name string `json:"name"`
		} `json:"hostname"`
		Port struct {
			PortNumber int `json:"portNumber"`
		} `json:"port"`
	} `json:"networkEndpoint"`
	TransportProtocol string `json:"transportProtocol"`
	ServiceName       string `json:"serviceName"`
	Software          struct {
		Name string `json:"name"`
	} `json:"software"`
	VersionSet struct {
		Versions []struct {
			FullVersionString string `json:"fullVersionString"`
		} `json:"versions"`
	} `json:"versionSet"`
	CPEs   []string `json:"cpes"`
	Banner string   `json:"banner"`
}

type vulnerability struct {
	MainID struct {
		Publisher string `json:"publisher"`
		Value     string `json:"value"`
	} `json:"mainId"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Parse reads one artifact and converts it into a host summary plus zero or
// more findings. The host identity comes from the artifact key, not from
// the blob, so a worker cannot misfile its results under another host.
// Malformed content yields an ARTIFACT_MALFORMED error; callers downgrade
// it to a failed-scan summary rather than aborting the batch.
func Parse(artifact artifacts.Artifact) (HostSummary, []Finding, error) {
	data, err := artifact.Read()
	if err != nil {
		return HostSummary{}, nil, err
	}

	var raw scanResults
	if err := json.Unmarshal(data, &raw); err != nil {
		return HostSummary{}, nil, errors.ErrArtifactMalformed(artifact.Host, err)
	}
	if raw.ScanStatus == "" {
		return HostSummary{}, nil, errors.NewWithTarget(errors.CodeArtifactMalformed,
			"artifact has no scan status", artifact.Host)
	}

	if !strings.Contains(raw.ScanStatus, statusSucceeded) {
		// The worker ran but the scan itself failed; record it
		// explicitly instead of pretending the host is clean.
		return FailedSummary(artifact.Host, "scanner reported status "+raw.ScanStatus), nil, nil
	}

	summary := HostSummary{
		Host:    artifact.Host,
		Outcome: OutcomeNoVulnerabilities,
	}

	if raw.Recon != nil {
		for i := range raw.Recon.NetworkServices {
			svc := toService(&raw.Recon.NetworkServices[i])
			summary.Services = append(summary.Services, svc)
			if summary.Hostname == "" {
				summary.Hostname = raw.Recon.NetworkServices[i].NetworkEndpoint.Hostname.Name
			}
		}
	}

	var findings []Finding
	for i := range raw.ScanFindings {
		f := &raw.ScanFindings[i]
		svc := toService(&f.NetworkService)
		findings = append(findings, Finding{
			Host:           artifact.Host,
			Port:           svc.Port,
			Protocol:       svc.Protocol,
			Service:        svc.Name,
			Software:       svc.Software,
			Version:        svc.Version,
			VulnID:         f.Vulnerability.MainID.Value,
			Publisher:      f.Vulnerability.MainID.Publisher,
			Severity:       f.Vulnerability.Severity,
			Title:          f.Vulnerability.Title,
			Description:    f.Vulnerability.Description,
			Recommendation: f.Vulnerability.Recommendation,
		})

		// A finding's endpoint belongs in the service inventory even
		// when the recon section omitted it.
		if !hasEndpoint(summary.Services, svc) {
			summary.Services = append(summary.Services, svc)
		}
	}

	if len(findings) > 0 {
		summary.Outcome = OutcomeVulnerabilitiesFound
		summary.Vulnerable = true
		summary.FindingCount = len(findings)
	}

	return summary, findings, nil
}

func toService(ns *networkService) Service {
	svc := Service{
		Port:     ns.NetworkEndpoint.Port.PortNumber,
		Protocol: ns.TransportProtocol,
		Name:     ns.ServiceName,
		Software: ns.Software.Name,
		CPEs:     ns.CPEs,
		Banner:   ns.Banner,
	}
	if len(ns.VersionSet.Versions) > 0 {
		svc.Version = ns.VersionSet.Versions[0].FullVersionString
	}
	return svc
}

func hasEndpoint(services []Service, svc Service) bool {
	for _, s := range services {
		if s.Port == svc.Port && s.Protocol == svc.Protocol {
			return true
		}
	}
	return false
}
