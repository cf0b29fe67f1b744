// Package cache provides the in-memory memoization layer used by the DOI
// resolver. Each Memo is a bounded LRU (capacity from config.CacheSize) keyed
// by string, with per-key single-flight loading: concurrent callers for the
// same missing key share one upstream call, and a caller that gives up only
// cancels the load when nobody else is still waiting. Entries never expire;
// they leave the cache through capacity eviction, Invalidate or Purge.
// Nothing is persisted across restarts.
package cache
