package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscan/internal/domain"
)

type countingSource struct {
	calls int
	adv   domain.Advisory
	err   error
}

func (s *countingSource) Lookup(_ context.Context, ref string) (domain.Advisory, error) {
	s.calls++
	a := s.adv
	a.Ref = ref
	return a, s.err
}

func newCache(t *testing.T, src *countingSource) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log, _ := test.NewNullLogger()
	return NewCache(src, client, time.Hour, log), mr
}

func TestCacheServesRepeatLookups(t *testing.T) {
	src := &countingSource{adv: domain.Advisory{BaseScore: domain.Some(9.8), PatchHint: domain.Some("upgrade")}}
	c, mr := newCache(t, src)
	ctx := context.Background()

	first, err := c.Lookup(ctx, "CVE-2023-12345")
	require.NoError(t, err)
	second, err := c.Lookup(ctx, "CVE-2023-12345")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)
	assert.False(t, second.Summary.Present)
	assert.True(t, mr.Exists(keyPrefix+"CVE-2023-12345"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(keyPrefix+"CVE-2023-12345").Seconds(), 1)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	c, mr := newCache(t, src)

	_, err := c.Lookup(context.Background(), "CVE-2023-0002")
	assert.Error(t, err)
	assert.False(t, mr.Exists(keyPrefix+"CVE-2023-0002"))
}

func TestCacheFallsThroughWhenRedisDown(t *testing.T) {
	src := &countingSource{adv: domain.Advisory{BaseScore: domain.Some(5.0)}}
	c, mr := newCache(t, src)
	mr.Close()

	adv, err := c.Lookup(context.Background(), "CVE-2023-0003")
	require.NoError(t, err)
	assert.Equal(t, 5.0, adv.BaseScore.Value)
	assert.Equal(t, 1, src.calls)
}
