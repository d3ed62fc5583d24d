package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riskscan/internal/domain"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.ClassDatabase, Classify("PostgreSQL DB 9.6", "postgresql", 5432))
	assert.Equal(t, domain.ClassDatabase, Classify("postgres", "", 5432))
	assert.Equal(t, domain.ClassDatabase, Classify("", "", 27017))
	assert.Equal(t, domain.ClassDatabase, Classify("Redis key-value store", "", 16379))
	assert.Equal(t, domain.ClassInfrastructure, Classify("", "", 443))
	assert.Equal(t, domain.ClassInfrastructure, Classify("OpenSSH 7.4", "ssh", 2222))
	assert.Equal(t, domain.ClassApplication, Classify("", "", 31337))
	assert.Equal(t, domain.ClassApplication, Classify("Acme Widget Server", "unknown", 9999))
}

func TestManagedProduct(t *testing.T) {
	assert.True(t, ManagedProduct("Amazon RDS managed PostgreSQL"))
	assert.True(t, ManagedProduct("Cloudflare http proxy"))
	assert.False(t, ManagedProduct("nginx 1.18.0"))
}
