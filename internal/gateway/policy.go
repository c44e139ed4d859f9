package gateway

import "time"

// BatchPolicy controls how batch calls pace themselves against the provider.
type BatchPolicy struct {
	// GroupSize is the number of accounts fetched concurrently per group.
	GroupSize int `yaml:"group_size"`
	// GroupDelay is the minimum pause between consecutive groups.
	GroupDelay time.Duration `yaml:"group_delay"`
	// DetailBatchSize is the number of transaction details fetched concurrently.
	DetailBatchSize int `yaml:"detail_batch_size"`
	// DetailDelay is the pause between detail sub-batches.
	DetailDelay time.Duration `yaml:"detail_delay"`
	// RequestsPerSecond caps single RPC calls; 0 disables the token bucket.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the token bucket size.
	Burst int `yaml:"burst"`
}

// PrivilegedPolicy is used when a provider credential is configured.
func PrivilegedPolicy() BatchPolicy {
	return BatchPolicy{
		GroupSize:         5,
		GroupDelay:        250 * time.Millisecond,
		DetailBatchSize:   15,
		DetailDelay:       100 * time.Millisecond,
		RequestsPerSecond: 40,
		Burst:             15,
	}
}

// PublicPolicy is used against the public fallback endpoint.
func PublicPolicy() BatchPolicy {
	return BatchPolicy{
		GroupSize:         3,
		GroupDelay:        1500 * time.Millisecond,
		DetailBatchSize:   5,
		DetailDelay:       time.Second,
		RequestsPerSecond: 4,
		Burst:             5,
	}
}

// PolicyFor picks the policy by credential presence.
func PolicyFor(hasCredential bool) BatchPolicy {
	if hasCredential {
		return PrivilegedPolicy()
	}
	return PublicPolicy()
}

func (p BatchPolicy) withDefaults() BatchPolicy {
	if p.GroupSize <= 0 {
		p.GroupSize = 1
	}
	if p.DetailBatchSize <= 0 {
		p.DetailBatchSize = 1
	}
	if p.Burst <= 0 {
		p.Burst = 1
	}
	return p
}

// CacheTTLs are the response cache lifetimes.
type CacheTTLs struct {
	Balance  time.Duration `yaml:"balance"`
	Price    time.Duration `yaml:"price"`
	Metadata time.Duration `yaml:"metadata"`
}

// DefaultCacheTTLs returns 15s balance, 30s price and 5min metadata.
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Balance:  15 * time.Second,
		Price:    30 * time.Second,
		Metadata: 5 * time.Minute,
	}
}
