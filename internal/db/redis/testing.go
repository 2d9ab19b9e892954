package redis

import "github.com/redis/rueidis"

// NewStoreForTest creates a Store with the provided rueidis client and default index settings (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return newStore(c, Config{})
}
