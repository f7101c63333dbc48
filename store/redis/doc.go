// Package redis implements store.Store on a Redis client. Suitable for
// multi-process deployments where workers and schedulers run on
// different hosts. Pending queues are Lists popped with LPOP, so
// concurrent workers never receive the same job; entities are stored as
// JSON values with Set indexes; schedule entry locks are SET NX keys
// with a TTL.
//
// The caller owns the client lifecycle -- redis never closes it. Pass
// any redis.Cmdable through the constructor:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	st := redis.New(client)
//	if err := st.Ping(ctx); err != nil { ... }
package redis
