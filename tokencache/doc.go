// Package tokencache caches short-lived credentials per key with
// expiry-aware reuse, deduplicated concurrent generation and explicit
// invalidation. It performs no I/O itself beyond one call to the injected
// generator per miss and holds no durable state.
package tokencache
