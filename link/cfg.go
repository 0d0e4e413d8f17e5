package link

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Config is the configuration for a link-layer interface.
type Config struct {
	// CacheTTL bounds how long a learned neighbour binding is trusted.
	//
	// Entries are purged by the periodic sweep, not on lookup: a binding
	// that outlived the TTL but has not been swept yet is still served.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// ResolveTTL bounds how long a resolution may stay outstanding.
	// While a resolution is outstanding no duplicate request is sent;
	// once the TTL is crossed the resolution and the datagrams queued
	// behind it are dropped.
	ResolveTTL time.Duration `yaml:"resolve_ttl"`

	// MaxPendingBytes caps the datagram bytes queued behind a single
	// unresolved next hop. The first datagram of a resolution is always
	// accepted; later ones are dropped once the cap would be crossed.
	// Zero means no bound.
	MaxPendingBytes datasize.ByteSize `yaml:"max_pending_bytes"`
}

// DefaultConfig returns the interface configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		CacheTTL:   30 * time.Second,
		ResolveTTL: 5 * time.Second,
	}
}
