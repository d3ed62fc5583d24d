package parser

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"riskscan/internal/domain"
)

// Parse converts an nmap XML report into a ScanResult. A report without host
// data is a down host, not an error.
func Parse(raw []byte, target string) (domain.ScanResult, error) {
	var run nmapRun
	if err := xml.NewDecoder(bytes.NewReader(raw)).Decode(&run); err != nil {
		return domain.ScanResult{}, &domain.ParseError{Err: fmt.Errorf("decode xml: %w", err)}
	}

	res := domain.ScanResult{
		Target:    target,
		Status:    domain.HostDown,
		Ports:     []domain.PortResult{},
		Findings:  []domain.Finding{},
		ScannedAt: scanTime(run),
	}
	if len(run.Hosts) == 0 {
		return res, nil
	}

	h := run.Hosts[0]
	if strings.EqualFold(strings.TrimSpace(h.Status.State), "up") {
		res.Status = domain.HostUp
	}
	res.Address = firstAddress(h.Addresses)
	res.Hostname = firstHostname(h.Hostnames)
	res.OS = bestOS(h.OSMatches)

	for _, s := range h.HostScripts {
		res.Findings = appendFinding(res.Findings, s, domain.FindingContext{Level: domain.LevelHost})
	}
	for _, p := range h.Ports {
		port, err := portResult(p, res.ScannedAt)
		if err != nil {
			return domain.ScanResult{}, &domain.ParseError{Err: err}
		}
		res.Ports = append(res.Ports, port)

		ctx := domain.FindingContext{
			Level:    domain.LevelPort,
			Port:     p.PortID,
			Protocol: port.Protocol,
			Service:  p.Service.Name,
			Product:  productString(p.Service),
		}
		for _, s := range p.Scripts {
			res.Findings = appendFinding(res.Findings, s, ctx)
		}
	}
	return res, nil
}

func appendFinding(dst []domain.Finding, s nmapScript, ctx domain.FindingContext) []domain.Finding {
	f := Normalize(s.ID, s.Output, ctx)
	if Actionable(f) {
		dst = append(dst, f)
	}
	return dst
}

func portResult(p nmapPort, scannedAt time.Time) (domain.PortResult, error) {
	scripts := make(map[string]string, len(p.Scripts))
	for _, s := range p.Scripts {
		scripts[s.ID] = s.Output
	}
	scriptsJSON, err := json.Marshal(scripts)
	if err != nil {
		return domain.PortResult{}, fmt.Errorf("encode scripts for port %d: %w", p.PortID, err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return domain.PortResult{}, fmt.Errorf("encode port %d: %w", p.PortID, err)
	}
	return domain.PortResult{
		Port:      p.PortID,
		Protocol:  strings.ToLower(p.Protocol),
		State:     portState(p.State.State),
		Service:   p.Service.Name,
		Product:   p.Service.Product,
		Version:   p.Service.Version,
		OSMatch:   p.Service.OSType,
		Scripts:   scriptsJSON,
		Raw:       raw,
		ScannedAt: scannedAt,
	}, nil
}

func portState(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "open", "closed", "filtered":
		return s
	case "open|filtered", "closed|filtered", "unfiltered":
		return "filtered"
	}
	return "other"
}

func productString(s nmapService) string {
	parts := make([]string, 0, 3)
	for _, v := range []string{s.Product, s.Version, s.ExtraInfo} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func firstAddress(addrs []nmapAddress) string {
	for _, a := range addrs {
		if strings.EqualFold(a.AddrType, "ipv4") {
			return a.Addr
		}
	}
	if len(addrs) > 0 {
		return addrs[0].Addr
	}
	return ""
}

func firstHostname(names []nmapHostname) string {
	if len(names) == 0 {
		return ""
	}
	return names[0].Name
}

func bestOS(matches []nmapOSMatch) string {
	best := -1
	name := ""
	for _, m := range matches {
		if m.Accuracy > best {
			best, name = m.Accuracy, m.Name
		}
	}
	return name
}

func scanTime(run nmapRun) time.Time {
	if run.Start > 0 {
		return time.Unix(run.Start, 0).UTC()
	}
	return time.Now().UTC()
}
