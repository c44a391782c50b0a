package purchase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"plinth/internal/purchase/models"
)

const (
	searchKeyPrefix = "purchase:search:"
	orderKeyPrefix  = "purchase:order:"

	// orderSnapshotTTL keeps the latest poll result readable by status
	// endpoints well past order completion.
	orderSnapshotTTL = 24 * time.Hour
)

// Cache stores registrar search results and order snapshots in redis so
// repeated searches and status reads avoid registrar round-trips. Nil-safe:
// a nil Cache disables caching.
type Cache struct {
	client    *redis.Client
	searchTTL time.Duration
}

func NewCache(client *redis.Client, searchTTL time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, searchTTL: searchTTL}
}

// GetSearch returns cached offers for the query, or (nil, false) on a miss.
// Redis failures degrade to a miss; the registrar remains the source of
// truth.
func (c *Cache) GetSearch(ctx context.Context, query string) ([]models.Offer, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, searchKey(query)).Bytes()
	if err != nil {
		return nil, false
	}
	var offers []models.Offer
	if json.Unmarshal(raw, &offers) != nil {
		return nil, false
	}
	return offers, true
}

func (c *Cache) PutSearch(ctx context.Context, query string, offers []models.Offer) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		return
	}
	c.client.Set(ctx, searchKey(query), raw, c.searchTTL)
}

// PutOrder stores the latest order snapshot keyed by registrar reference.
func (c *Cache) PutOrder(ctx context.Context, order models.Order) {
	if c == nil || order.ID == "" {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return
	}
	c.client.Set(ctx, orderKeyPrefix+order.ID, raw, orderSnapshotTTL)
}

// GetOrder returns the cached snapshot, or (zero, false) on a miss.
func (c *Cache) GetOrder(ctx context.Context, orderRef string) (models.Order, bool) {
	if c == nil {
		return models.Order{}, false
	}
	raw, err := c.client.Get(ctx, orderKeyPrefix+orderRef).Bytes()
	if err != nil {
		return models.Order{}, false
	}
	var order models.Order
	if json.Unmarshal(raw, &order) != nil {
		return models.Order{}, false
	}
	return order, true
}

func searchKey(query string) string {
	return searchKeyPrefix + strings.ToLower(strings.TrimSpace(query))
}
