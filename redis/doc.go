// Package redis provides the Redis-backed session store for
// multi-process deployments, where tab counters must be shared across
// hub instances, plus the client wrapper and component lifecycle glue
// around go-redis.
package redis
