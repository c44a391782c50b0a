//go:build integration

package purchase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"plinth/internal/purchase"
	"plinth/internal/purchase/models"
	"plinth/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *purchase.Cache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = purchase.NewCache(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestSearchRoundTrip() {
	ctx := context.Background()

	_, hit := s.cache.GetSearch(ctx, "startup")
	s.False(hit)

	price := 14.99
	offers := []models.Offer{
		{Domain: "startup.com", Available: false},
		{Domain: "startup.dev", Available: true, Price: &price, Currency: "USD"},
	}
	s.cache.PutSearch(ctx, "startup", offers)

	cached, hit := s.cache.GetSearch(ctx, "startup")
	s.Require().True(hit)
	s.Equal(offers, cached)

	// Key is normalized, so casing and padding do not fragment the cache.
	cached, hit = s.cache.GetSearch(ctx, "  StartUp ")
	s.Require().True(hit)
	s.Equal(offers, cached)
}

func (s *RedisCacheSuite) TestSearchExpiry() {
	ctx := context.Background()
	short := purchase.NewCache(s.redis.Client, 50*time.Millisecond)

	short.PutSearch(ctx, "fleeting", []models.Offer{{Domain: "fleeting.com", Available: true}})
	_, hit := short.GetSearch(ctx, "fleeting")
	s.Require().True(hit)

	time.Sleep(100 * time.Millisecond)
	_, hit = short.GetSearch(ctx, "fleeting")
	s.False(hit)
}

func (s *RedisCacheSuite) TestOrderSnapshot() {
	ctx := context.Background()

	_, hit := s.cache.GetOrder(ctx, "ord_1")
	s.False(hit)

	order := models.Order{
		ID:     "ord_1",
		Domain: "bought.com",
		Status: models.OrderRegistering,
	}
	s.cache.PutOrder(ctx, order)

	cached, hit := s.cache.GetOrder(ctx, "ord_1")
	s.Require().True(hit)
	s.Equal(order, cached)

	// Orders without a registrar reference are never stored.
	s.cache.PutOrder(ctx, models.Order{Domain: "anon.com"})
	_, hit = s.cache.GetOrder(ctx, "")
	s.False(hit)
}

func (s *RedisCacheSuite) TestNilCacheIsSafe() {
	ctx := context.Background()
	var nilCache *purchase.Cache

	_, hit := nilCache.GetSearch(ctx, "anything")
	s.False(hit)
	nilCache.PutSearch(ctx, "anything", nil)
	nilCache.PutOrder(ctx, models.Order{ID: "ord_2"})
	_, hit = nilCache.GetOrder(ctx, "ord_2")
	s.False(hit)
}
