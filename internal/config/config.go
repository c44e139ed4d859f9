// Package config loads tracker configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"solana-wallet-tracker/internal/activity"
	"solana-wallet-tracker/internal/classifier"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/gateway"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/synccache"
)

// DefaultPublicEndpoint is the public mainnet RPC used without a credential.
const DefaultPublicEndpoint = "https://api.mainnet-beta.solana.com"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config is the full tracker configuration.
type Config struct {
	RPC           RPCConfig     `yaml:"rpc"`
	AggregatorURL string        `yaml:"aggregator_url"`
	AssetID       string        `yaml:"asset"`
	Wallets       []Wallet      `yaml:"wallets"`
	ProjectID     string        `yaml:"project_id"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Debounce      time.Duration `yaml:"debounce"`
	// BalanceMaxAge lets background cycles skip recently fetched accounts.
	BalanceMaxAge time.Duration `yaml:"balance_max_age"`
	// Watch enables live websocket triggers in serve mode.
	Watch bool `yaml:"watch"`

	// Policy overrides the credential-based batch policy when set.
	Policy     *gateway.BatchPolicy   `yaml:"policy"`
	GatewayTTL gateway.CacheTTLs      `yaml:"gateway_ttl"`
	CacheTTL   synccache.TTLs         `yaml:"cache_ttl"`
	History    gateway.HistoryOptions `yaml:"history"`
	Classifier classifier.Policy      `yaml:"classifier"`
	Status     activity.Policy        `yaml:"status"`

	Storage  StorageConfig `yaml:"storage"`
	HTTPAddr string        `yaml:"http_addr"`
	Log      LogConfig     `yaml:"log"`
}

// LogConfig enables a rotated JSON log file instead of stderr.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RPCConfig holds ledger endpoints.
type RPCConfig struct {
	// Endpoint is the privileged provider URL, used only with an APIKey.
	Endpoint       string        `yaml:"endpoint"`
	PublicEndpoint string        `yaml:"public_endpoint"`
	APIKey         string        `yaml:"api_key"`
	WSEndpoint     string        `yaml:"ws_endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

// Wallet is one watch-list entry.
type Wallet struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Group   string `yaml:"group"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	BoltPath      string `yaml:"bolt_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		RPC: RPCConfig{
			PublicEndpoint: DefaultPublicEndpoint,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
		},
		PollInterval:  60 * time.Second,
		Debounce:      500 * time.Millisecond,
		BalanceMaxAge: 30 * time.Second,
		GatewayTTL:    gateway.DefaultCacheTTLs(),
		CacheTTL:      synccache.DefaultTTLs(),
		Classifier:    classifier.DefaultPolicy(),
		Status:        activity.DefaultPolicy(),
		Storage: StorageConfig{
			Backend:  BackendMemory,
			BoltPath: "tracker.db",
		},
		HTTPAddr: ":8080",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path (optional) over the defaults, then applies TRACKER_* env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.AssetID = domain.NormalizeAddress(cfg.AssetID)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.RPC.Endpoint = envOrDefault("TRACKER_RPC_ENDPOINT", c.RPC.Endpoint)
	c.RPC.PublicEndpoint = envOrDefault("TRACKER_PUBLIC_RPC_ENDPOINT", c.RPC.PublicEndpoint)
	c.RPC.APIKey = envOrDefault("TRACKER_API_KEY", c.RPC.APIKey)
	c.RPC.WSEndpoint = envOrDefault("TRACKER_WS_ENDPOINT", c.RPC.WSEndpoint)
	c.AggregatorURL = envOrDefault("TRACKER_AGGREGATOR_URL", c.AggregatorURL)
	c.AssetID = envOrDefault("TRACKER_ASSET", c.AssetID)
	c.ProjectID = envOrDefault("TRACKER_PROJECT_ID", c.ProjectID)
	c.Storage.Backend = envOrDefault("TRACKER_STORAGE", c.Storage.Backend)
	c.Storage.BoltPath = envOrDefault("TRACKER_BOLT_PATH", c.Storage.BoltPath)
	c.Storage.PostgresDSN = envOrDefault("TRACKER_POSTGRES_DSN", c.Storage.PostgresDSN)
	c.Storage.ClickhouseDSN = envOrDefault("TRACKER_CLICKHOUSE_DSN", c.Storage.ClickhouseDSN)
	c.HTTPAddr = envOrDefault("TRACKER_HTTP_ADDR", c.HTTPAddr)
	c.Log.File = envOrDefault("TRACKER_LOG_FILE", c.Log.File)

	if v := os.Getenv("TRACKER_WALLETS"); v != "" {
		c.Wallets = ParseWallets(v)
	}
	if v := os.Getenv("TRACKER_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TRACKER_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("TRACKER_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACKER_WATCH: %w", err)
		}
		c.Watch = b
	}
	return nil
}

// ParseWallets splits a comma or whitespace separated address list.
func ParseWallets(s string) []Wallet {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]Wallet, 0, len(fields))
	for _, f := range fields {
		out = append(out, Wallet{Address: f})
	}
	return out
}

// Validate rejects configurations a refresh cycle cannot run with.
func (c Config) Validate() error {
	if err := solana.ValidateAddress(domain.NormalizeAddress(c.AssetID)); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	if len(c.Wallets) == 0 {
		return domain.ErrEmptyWatchList
	}
	if _, err := c.Accounts(); err != nil {
		return err
	}
	return c.ValidateStorage()
}

// ValidateStorage checks the backend selection only. It is enough when the
// asset and wallets come from a saved project.
func (c Config) ValidateStorage() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendBolt:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage: postgres backend requires postgres_dsn")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	return nil
}

// Accounts builds the validated watch list entries.
func (c Config) Accounts() ([]domain.WatchedAccount, error) {
	wl := domain.NewWatchList(solana.ValidateAddress)
	for _, w := range c.Wallets {
		if _, err := wl.Add(w.Address, w.Name, w.Group); err != nil {
			return nil, fmt.Errorf("wallet %q: %w", w.Address, err)
		}
	}
	return wl.Accounts(), nil
}

// HasCredential reports whether the privileged provider is configured.
func (c Config) HasCredential() bool {
	return c.RPC.APIKey != "" && c.RPC.Endpoint != ""
}

// BatchPolicy returns the explicit policy or the credential-based default.
func (c Config) BatchPolicy() gateway.BatchPolicy {
	if c.Policy != nil {
		return *c.Policy
	}
	return gateway.PolicyFor(c.HasCredential())
}

// RPCEndpoint returns the privileged endpoint with the key attached, or the
// public endpoint.
func (c Config) RPCEndpoint() string {
	if !c.HasCredential() {
		return c.RPC.PublicEndpoint
	}
	u, err := url.Parse(c.RPC.Endpoint)
	if err != nil {
		return c.RPC.Endpoint
	}
	q := u.Query()
	q.Set("api-key", c.RPC.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// WebsocketEndpoint returns the configured WS endpoint or derives it from the
// RPC endpoint.
func (c Config) WebsocketEndpoint() string {
	if c.RPC.WSEndpoint != "" {
		return c.RPC.WSEndpoint
	}
	ep := c.RPCEndpoint()
	switch {
	case strings.HasPrefix(ep, "https://"):
		return "wss://" + strings.TrimPrefix(ep, "https://")
	case strings.HasPrefix(ep, "http://"):
		return "ws://" + strings.TrimPrefix(ep, "http://")
	}
	return ep
}

// MergeSettings applies persisted settings beneath explicit config values.
func (c *Config) MergeSettings(s *domain.Settings) {
	if s == nil {
		return
	}
	if c.RPC.APIKey == "" {
		c.RPC.APIKey = s.APIKey
	}
	if c.ProjectID == "" {
		c.ProjectID = s.ActiveProjectID
	}
	if s.PollIntervalMs > 0 && c.PollInterval == Default().PollInterval {
		c.PollInterval = time.Duration(s.PollIntervalMs) * time.Millisecond
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
