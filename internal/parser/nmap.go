package parser

import "encoding/xml"

// Subset of the nmap XML report that the pipeline reads.
type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Args    string     `xml:"args,attr"`
	Start   int64      `xml:"start,attr"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status      nmapStatus     `xml:"status"`
	Addresses   []nmapAddress  `xml:"address"`
	Hostnames   []nmapHostname `xml:"hostnames>hostname"`
	Ports       []nmapPort     `xml:"ports>port"`
	OSMatches   []nmapOSMatch  `xml:"os>osmatch"`
	HostScripts []nmapScript   `xml:"hostscript>script"`
	EndTime     int64          `xml:"endtime,attr"`
}

type nmapStatus struct {
	State  string `xml:"state,attr" json:"state,omitempty"`
	Reason string `xml:"reason,attr" json:"reason,omitempty"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type nmapPort struct {
	Protocol string       `xml:"protocol,attr" json:"protocol,omitempty"`
	PortID   int          `xml:"portid,attr" json:"port,omitempty"`
	State    nmapStatus   `xml:"state" json:"state,omitempty"`
	Service  nmapService  `xml:"service" json:"service,omitempty"`
	Scripts  []nmapScript `xml:"script" json:"scripts,omitempty"`
}

type nmapService struct {
	Name      string `xml:"name,attr" json:"name,omitempty"`
	Product   string `xml:"product,attr" json:"product,omitempty"`
	Version   string `xml:"version,attr" json:"version,omitempty"`
	ExtraInfo string `xml:"extrainfo,attr" json:"extrainfo,omitempty"`
	OSType    string `xml:"ostype,attr" json:"ostype,omitempty"`
	Tunnel    string `xml:"tunnel,attr" json:"tunnel,omitempty"`
}

type nmapScript struct {
	ID     string `xml:"id,attr" json:"id,omitempty"`
	Output string `xml:"output,attr" json:"output,omitempty"`
}

type nmapOSMatch struct {
	Name     string `xml:"name,attr"`
	Accuracy int    `xml:"accuracy,attr"`
}
