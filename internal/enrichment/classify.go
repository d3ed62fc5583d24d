package enrichment

import (
	"strings"

	"riskscan/internal/domain"
)

var databaseKeywords = []string{
	"mysql", "mariadb", "postgres", "mssql", "microsoft sql", "ms-sql", "oracle",
	"mongodb", "redis", "cassandra", "elasticsearch", "couchdb", "memcache",
	"db2", "sqlite", "influxdb", "neo4j", "clickhouse", "cockroach",
}

var databasePorts = map[int]bool{
	1433: true, 1521: true, 3306: true, 5432: true, 5984: true, 6379: true,
	7474: true, 8086: true, 9042: true, 9200: true, 11211: true, 26257: true,
	27017: true, 50000: true,
}

var infraKeywords = []string{
	"http", "ssh", "ftp", "smtp", "domain", "dns", "telnet", "snmp", "ldap",
	"ms-wbt-server", "rdp", "microsoft-ds", "netbios", "imap", "pop3", "vnc",
	"nginx", "apache", "iis", "openssh", "ntp", "kerberos", "rpcbind", "msrpc",
}

var infraPorts = map[int]bool{
	21: true, 22: true, 23: true, 25: true, 53: true, 80: true, 88: true,
	110: true, 111: true, 123: true, 135: true, 139: true, 143: true, 161: true,
	389: true, 443: true, 445: true, 465: true, 587: true, 636: true, 993: true,
	995: true, 3389: true, 5900: true, 8080: true, 8443: true,
}

// publicPorts are services normally reachable from outside the perimeter.
var publicPorts = map[int]bool{
	21: true, 22: true, 23: true, 25: true, 53: true, 80: true, 110: true,
	143: true, 443: true, 445: true, 465: true, 587: true, 993: true, 995: true,
	3389: true, 5900: true, 8080: true, 8443: true,
}

var managedKeywords = []string{
	"managed", "cloud", "aws", "amazon", "azure", "google", "gcp", "cloudflare",
	"akamai", "fastly", "saas", "hosted", "third-party", "third party", "vendor",
}

// Classify infers the asset type behind a finding from the product and
// service strings and the port number.
func Classify(product, service string, port int) domain.Classification {
	text := strings.ToLower(product + " " + service)
	if containsAny(text, databaseKeywords) || databasePorts[port] {
		return domain.ClassDatabase
	}
	if containsAny(text, infraKeywords) || infraPorts[port] {
		return domain.ClassInfrastructure
	}
	return domain.ClassApplication
}

// PublicFacing reports whether port belongs to the exposed port set.
func PublicFacing(port int) bool { return publicPorts[port] }

// ManagedProduct reports whether a product description names a managed or
// third-party offering.
func ManagedProduct(product string) bool {
	return containsAny(strings.ToLower(product), managedKeywords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
