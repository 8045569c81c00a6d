// Package transport resolves a single upstream URL through an ordered list of
// relay adapters.
//
// Each relay is tried once (or up to RetryConfig.MaxAttempts times for
// network failures) with a bounded timeout. The first relay returning a JSON
// object wins. Rate limiting (429), forbidden (403) and malformed payloads are
// never retried on the same relay; the resolver moves on immediately.
//
// Example usage:
//
//	resolver, err := transport.New(transport.DefaultRelays(), transport.DefaultConfig())
//	payload, err := resolver.Resolve(ctx, "https://api.steampowered.com/...")
//
// When every relay fails, Resolve returns an *Error with Kind
// KindExhausted whose Last field holds the most recent specific failure.
package transport
