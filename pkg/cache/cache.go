package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultOperationTimeout = 5 * time.Second

// ErrCacheMiss is returned by Get when the key is absent or caching is off.
var ErrCacheMiss = errors.New("cache miss")

type Cache struct {
	client  *redis.Client
	enabled bool
}

func NewCache(addr string, enable bool) (*Cache, error) {
	if !enable {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{
		client:  client,
		enabled: true,
	}, nil
}

func (c *Cache) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultOperationTimeout)
}

func (c *Cache) Set(key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, jsonData, expiration).Err()
}

func (c *Cache) Get(key string, dest interface{}) error {
	if !c.enabled {
		return ErrCacheMiss
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) Delete(key string) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	return c.client.Del(ctx, key).Err()
}

func (c *Cache) DeletePattern(pattern string) error {
	if !c.enabled {
		return nil
	}

	ctx, cancel := c.operationContext()
	defer cancel()

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Cache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}

func pagesKey(formID uint) string {
	return fmt.Sprintf("form:%d:pages", formID)
}

func pageSnapshotKey(formID, pageID uint, version int) string {
	return fmt.Sprintf("form:%d:page:%d:v%d", formID, pageID, version)
}

// CachePages stores the ordered page list of a form.
func (c *Cache) CachePages(formID uint, pages interface{}, ttl time.Duration) error {
	return c.Set(pagesKey(formID), pages, ttl)
}

func (c *Cache) GetCachedPages(formID uint, dest interface{}) error {
	return c.Get(pagesKey(formID), dest)
}

// CachePageSnapshot stores the rendered field list of one page at a version.
// Version 0 addresses the latest state.
func (c *Cache) CachePageSnapshot(formID, pageID uint, version int, snapshot interface{}, ttl time.Duration) error {
	return c.Set(pageSnapshotKey(formID, pageID, version), snapshot, ttl)
}

func (c *Cache) GetCachedPageSnapshot(formID, pageID uint, version int, dest interface{}) error {
	return c.Get(pageSnapshotKey(formID, pageID, version), dest)
}

// InvalidateForm drops every cached entry of a form.
func (c *Cache) InvalidateForm(formID uint) error {
	if err := c.Delete(pagesKey(formID)); err != nil {
		return err
	}
	return c.DeletePattern(fmt.Sprintf("form:%d:page:*", formID))
}
