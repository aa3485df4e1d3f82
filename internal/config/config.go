package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"YONASettlement/internal/pathfinding"
	"YONASettlement/internal/store"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		PublicURL   string   `yaml:"public_url"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	DB struct {
		DSN  string `yaml:"dsn"`
		Seed string `yaml:"seed"`
	} `yaml:"db"`
	Ledger struct {
		RPCEndpoints      []string `yaml:"rpc_endpoints"`
		WSEndpoints       []string `yaml:"ws_endpoints"`
		TimeoutSeconds    int      `yaml:"timeout_seconds"`
		FailoverThreshold int      `yaml:"failover_threshold"`
		BookLimit         int      `yaml:"book_limit"`
		HistoryPages      int      `yaml:"history_pages"`
	} `yaml:"ledger"`
	Members struct {
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		ClientID          string `yaml:"client_id"`
		ProbeAvailability bool   `yaml:"probe_availability"`
	} `yaml:"members"`
	Webhooks struct {
		StrictCorrelation bool `yaml:"strict_correlation"`
	} `yaml:"webhooks"`
	Pathfinding struct {
		Bridges []pathfinding.Bridge `yaml:"bridges"`
	} `yaml:"pathfinding"`
	Assets struct {
		CacheDriver     string `yaml:"cache_driver"`
		CacheSize       int    `yaml:"cache_size"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"assets"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Locks struct {
		Driver      string `yaml:"driver"`
		TTLSeconds  int    `yaml:"ttl_seconds"`
		WaitSeconds int    `yaml:"wait_seconds"`
	} `yaml:"locks"`
	Events struct {
		Driver  string   `yaml:"driver"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		NATSURL string   `yaml:"nats_url"`
		Subject string   `yaml:"subject"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telemetry struct {
		ServiceName  string `yaml:"service_name"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		Insecure     bool   `yaml:"insecure"`
	} `yaml:"telemetry"`
	Worker struct {
		RefreshSeconds   int `yaml:"refresh_seconds"`
		ReconnectSeconds int `yaml:"reconnect_seconds"`
		MaxIntents       int `yaml:"max_intents"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes data, applies environment overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.Server.PublicURL == "" {
		return nil, errors.New("server.public_url is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if len(cfg.Ledger.RPCEndpoints) == 0 {
		return nil, errors.New("ledger.rpc_endpoints is required")
	}
	if (cfg.Locks.Driver == "redis" || cfg.Assets.CacheDriver == "redis") && cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required for redis locks or cache")
	}
	return &cfg, nil
}

func (c *Config) UsesMemoryStore() bool {
	return c.DB.DSN == store.MemoryDSN
}

func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.Ledger.TimeoutSeconds) * time.Second
}

func (c *Config) MemberTimeout() time.Duration {
	return time.Duration(c.Members.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Assets.CacheTTLSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Locks.WaitSeconds) * time.Second
}

func applyDefaults(cfg *Config) {
	if cfg.Ledger.TimeoutSeconds <= 0 {
		cfg.Ledger.TimeoutSeconds = 10
	}
	if cfg.Ledger.FailoverThreshold <= 0 {
		cfg.Ledger.FailoverThreshold = 3
	}
	if cfg.Ledger.BookLimit <= 0 {
		cfg.Ledger.BookLimit = 50
	}
	if cfg.Ledger.HistoryPages <= 0 {
		cfg.Ledger.HistoryPages = 5
	}
	if cfg.Members.TimeoutSeconds <= 0 {
		cfg.Members.TimeoutSeconds = 10
	}
	if cfg.Members.ClientID == "" {
		cfg.Members.ClientID = "YONA"
	}
	if len(cfg.Pathfinding.Bridges) == 0 {
		cfg.Pathfinding.Bridges = append([]pathfinding.Bridge(nil), pathfinding.DefaultBridges...)
	}
	if cfg.Assets.CacheDriver == "" {
		cfg.Assets.CacheDriver = "memory"
	}
	if cfg.Assets.CacheSize <= 0 {
		cfg.Assets.CacheSize = 256
	}
	if cfg.Assets.CacheTTLSeconds <= 0 {
		cfg.Assets.CacheTTLSeconds = 300
	}
	if cfg.Locks.Driver == "" {
		cfg.Locks.Driver = "local"
	}
	if cfg.Locks.TTLSeconds <= 0 {
		cfg.Locks.TTLSeconds = 30
	}
	if cfg.Locks.WaitSeconds <= 0 {
		cfg.Locks.WaitSeconds = 10
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "yona.intents"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "yona.intents"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "yona-settlement"
	}
	if cfg.Worker.RefreshSeconds <= 0 {
		cfg.Worker.RefreshSeconds = 15
	}
	if cfg.Worker.ReconnectSeconds <= 0 {
		cfg.Worker.ReconnectSeconds = 5
	}
	if cfg.Worker.MaxIntents <= 0 {
		cfg.Worker.MaxIntents = 500
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCommaList(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_SEED"); v != "" {
		cfg.DB.Seed = v
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Ledger.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("WS_ENDPOINTS"); v != "" {
		cfg.Ledger.WSEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("LEDGER_TIMEOUT_SECONDS"); v != "" {
		cfg.Ledger.TimeoutSeconds = atoiOr(cfg.Ledger.TimeoutSeconds, v)
	}
	if v := os.Getenv("LEDGER_FAILOVER_THRESHOLD"); v != "" {
		cfg.Ledger.FailoverThreshold = atoiOr(cfg.Ledger.FailoverThreshold, v)
	}
	if v := os.Getenv("MEMBER_TIMEOUT_SECONDS"); v != "" {
		cfg.Members.TimeoutSeconds = atoiOr(cfg.Members.TimeoutSeconds, v)
	}
	if v := os.Getenv("MEMBER_PROBE_AVAILABILITY"); v != "" {
		cfg.Members.ProbeAvailability = boolOr(cfg.Members.ProbeAvailability, v)
	}
	if v := os.Getenv("WEBHOOKS_STRICT_CORRELATION"); v != "" {
		cfg.Webhooks.StrictCorrelation = boolOr(cfg.Webhooks.StrictCorrelation, v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOCKS_DRIVER"); v != "" {
		cfg.Locks.Driver = v
	}
	if v := os.Getenv("ASSETS_CACHE_DRIVER"); v != "" {
		cfg.Assets.CacheDriver = v
	}
	if v := os.Getenv("EVENTS_DRIVER"); v != "" {
		cfg.Events.Driver = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = splitCommaList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Events.Topic = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func boolOr(fallback bool, v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
