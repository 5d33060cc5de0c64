// Package redis implements cache.Backend on Redis with go-redis.
package redis
