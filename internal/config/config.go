// Package config provides configuration management for the VNF control plane.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (nested keys joined by "_", e.g. ORCHESTRATION_MAX_INSTANCES)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Runtime provider names.
const (
	RuntimeSimulated = "simulated"
	RuntimeKubeVirt  = "kubevirt"
)

// Policy provider names.
const (
	PolicyNone = "none"
	PolicyHTTP = "http"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	RollingUpdate RollingUpdateConfig `mapstructure:"rolling_update"`
	Forecasting   ForecastingConfig   `mapstructure:"forecasting"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	SFC           SFCConfig           `mapstructure:"sfc"`
	Runtime       RuntimeConfig       `mapstructure:"runtime"`
	Database      DatabaseConfig      `mapstructure:"database"`
	River         RiverConfig         `mapstructure:"river"`
	Security      SecurityConfig      `mapstructure:"security"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	AllowCredentials  bool          `mapstructure:"allow_credentials"`
	OpenAPIValidation bool          `mapstructure:"openapi_validation"`
	// UnsafeAllowAllOrigins honours "*" in AllowedOrigins and disables
	// credentials. Without it "*" is dropped.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	ProbePoolSize   int `mapstructure:"probe_pool_size"`
}

// OrchestrationConfig drives the registry, autoscaler and periodic loops.
type OrchestrationConfig struct {
	VNFTypes     []string                `mapstructure:"vnf_types"`
	MinInstances int                     `mapstructure:"min_instances"`
	MaxInstances int                     `mapstructure:"max_instances"`
	PerType      map[string]BoundsConfig `mapstructure:"per_type"`
	Thresholds   ThresholdConfig         `mapstructure:"thresholds"`

	// InitialDeploy scales every type up to MinInstances on startup.
	InitialDeploy      bool          `mapstructure:"initial_deploy"`
	AutoscalerEnabled  bool          `mapstructure:"autoscaler_enabled"`
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	MetricsInterval    time.Duration `mapstructure:"metrics_interval"`
	HealthInterval     time.Duration `mapstructure:"health_interval"`
}

// BoundsConfig overrides the global instance bounds for one vnf type.
// Zero means "use the global value".
type BoundsConfig struct {
	MinInstances int `mapstructure:"min_instances"`
	MaxInstances int `mapstructure:"max_instances"`
}

// ThresholdConfig holds the autoscaling thresholds.
type ThresholdConfig struct {
	CPUUpper     float64 `mapstructure:"cpu_upper"`
	CPULower     float64 `mapstructure:"cpu_lower"`
	MemoryUpper  float64 `mapstructure:"memory_upper"`
	MemoryLower  float64 `mapstructure:"memory_lower"`
	LatencyUpper float64 `mapstructure:"latency_upper"`
	LatencyLower float64 `mapstructure:"latency_lower"`
}

// RollingUpdateConfig contains the health gate and drain timings.
type RollingUpdateConfig struct {
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
	HealthPollInterval time.Duration `mapstructure:"health_poll_interval"`
	DrainTimeout       time.Duration `mapstructure:"drain_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
}

// ForecastingConfig contains forecast provider settings.
type ForecastingConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	WindowSize          int     `mapstructure:"window_size"`
	Steps               int     `mapstructure:"steps"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// PolicyConfig selects the policy provider.
type PolicyConfig struct {
	Provider string        `mapstructure:"provider"` // none or http
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SFCConfig contains the chain catalog and SFC request defaults.
type SFCConfig struct {
	DefaultPriority int `mapstructure:"default_priority"`
	// CatalogFile, when set, is a YAML file whose request_types and
	// complementary_chains replace the entries below.
	CatalogFile            string                 `mapstructure:"catalog_file"`
	DefaultServiceDuration time.Duration          `mapstructure:"default_service_duration"`
	RequestTypes           map[string]ChainConfig `mapstructure:"request_types"`
	ComplementaryChains    map[string]ChainConfig `mapstructure:"complementary_chains"`
}

// ChainConfig describes one request type's chain.
type ChainConfig struct {
	Chain         []string      `mapstructure:"chain" yaml:"chain"`
	Direction     string        `mapstructure:"direction" yaml:"direction"`
	LatencyBudget time.Duration `mapstructure:"latency_budget" yaml:"latency_budget"`
}

// RuntimeConfig selects and configures the VNF runtime backend.
type RuntimeConfig struct {
	Provider         string          `mapstructure:"provider"` // simulated or kubevirt
	Namespace        string          `mapstructure:"namespace"`
	Kubeconfig       string          `mapstructure:"kubeconfig"`
	ImagePattern     string          `mapstructure:"image_pattern"`
	ProbePort        int             `mapstructure:"probe_port"`
	CPUCores         uint32          `mapstructure:"cpu_cores"`
	Memory           string          `mapstructure:"memory"`
	OperationTimeout time.Duration   `mapstructure:"operation_timeout"`
	Simulated        SimulatedConfig `mapstructure:"simulated"`
}

// SimulatedConfig tunes the in-process runtime.
type SimulatedConfig struct {
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	BaseCPU      float64       `mapstructure:"base_cpu"`
	BaseMemory   float64       `mapstructure:"base_memory"`
	BaseLatency  float64       `mapstructure:"base_latency"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// An empty URL keeps SFC records in memory and expiry on in-process timers.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains API authentication settings.
// An empty JWTSigningKey leaves mutating routes unauthenticated.
type SecurityConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// TracingConfig governs OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"` // stdout or otlp
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vnf-orchestrator")

	// orchestration.max_instances → ORCHESTRATION_MAX_INSTANCES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Security.JWTSigningKey == "" {
		logBootstrapWarn("security.jwt_signing_key is empty; mutating API routes are unauthenticated")
	}

	return &cfg, nil
}

// Bounds returns the min/max instance count for a vnf type.
func (c OrchestrationConfig) Bounds(vnfType string) (int, int) {
	lo, hi := c.MinInstances, c.MaxInstances
	if o, ok := c.PerType[vnfType]; ok {
		if o.MinInstances > 0 {
			lo = o.MinInstances
		}
		if o.MaxInstances > 0 {
			hi = o.MaxInstances
		}
	}
	return lo, hi
}

// HasVNFType reports whether vnfType is in the configured catalog.
func (c OrchestrationConfig) HasVNFType(vnfType string) bool {
	for _, t := range c.VNFTypes {
		if t == vnfType {
			return true
		}
	}
	return false
}

// Validate checks for configuration errors that must abort startup.
func (c *Config) Validate() error {
	o := c.Orchestration
	if len(o.VNFTypes) == 0 {
		return fmt.Errorf("orchestration.vnf_types must not be empty")
	}
	for _, t := range o.VNFTypes {
		lo, hi := o.Bounds(t)
		if lo < 0 || hi < 1 || lo > hi {
			return fmt.Errorf("orchestration bounds for %s invalid: min=%d max=%d", t, lo, hi)
		}
	}
	for t := range o.PerType {
		if !o.HasVNFType(t) {
			return fmt.Errorf("orchestration.per_type.%s: unknown vnf type", t)
		}
	}

	th := o.Thresholds
	if th.CPULower >= th.CPUUpper || th.MemoryLower >= th.MemoryUpper || th.LatencyLower >= th.LatencyUpper {
		return fmt.Errorf("orchestration.thresholds: every lower threshold must be below its upper threshold")
	}
	if o.EvaluationInterval <= 0 || o.MetricsInterval <= 0 || o.HealthInterval <= 0 {
		return fmt.Errorf("orchestration intervals must be positive")
	}

	r := c.RollingUpdate
	if r.HealthCheckTimeout <= 0 || r.HealthPollInterval <= 0 || r.ProbeTimeout <= 0 || r.DrainTimeout < 0 {
		return fmt.Errorf("rolling_update timings must be positive")
	}

	if c.Forecasting.WindowSize < 2 {
		return fmt.Errorf("forecasting.window_size must be at least 2")
	}
	if c.Forecasting.ConfidenceThreshold < 0 || c.Forecasting.ConfidenceThreshold > 1 {
		return fmt.Errorf("forecasting.confidence_threshold must be within [0,1]")
	}

	switch c.Policy.Provider {
	case PolicyNone, "":
	case PolicyHTTP:
		if c.Policy.Endpoint == "" {
			return fmt.Errorf("policy.endpoint is required for the http policy provider")
		}
	default:
		return fmt.Errorf("policy.provider %q not supported", c.Policy.Provider)
	}

	switch c.Runtime.Provider {
	case RuntimeSimulated, RuntimeKubeVirt:
	default:
		return fmt.Errorf("runtime.provider %q not supported", c.Runtime.Provider)
	}

	if c.SFC.DefaultPriority < 1 || c.SFC.DefaultPriority > 10 {
		return fmt.Errorf("sfc.default_priority must be within [1,10]")
	}
	for name, chain := range c.SFC.RequestTypes {
		if err := o.validateChain(chain.Chain); err != nil {
			return fmt.Errorf("sfc.request_types.%s: %w", name, err)
		}
	}
	for name, chain := range c.SFC.ComplementaryChains {
		if err := o.validateChain(chain.Chain); err != nil {
			return fmt.Errorf("sfc.complementary_chains.%s: %w", name, err)
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	return nil
}

func (c OrchestrationConfig) validateChain(chain []string) error {
	if len(chain) == 0 {
		return fmt.Errorf("chain must not be empty")
	}
	seen := make(map[string]struct{}, len(chain))
	for _, t := range chain {
		if !c.HasVNFType(t) {
			return fmt.Errorf("unknown vnf type %q", t)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("vnf type %q appears twice", t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("server.openapi_validation", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 64)
	v.SetDefault("worker.probe_pool_size", 128)

	// Orchestration
	v.SetDefault("orchestration.vnf_types", []string{
		"firewall", "antivirus", "spamfilter", "content_filtering", "encryption_gateway",
	})
	v.SetDefault("orchestration.min_instances", 1)
	v.SetDefault("orchestration.max_instances", 5)
	v.SetDefault("orchestration.thresholds.cpu_upper", 80.0)
	v.SetDefault("orchestration.thresholds.cpu_lower", 30.0)
	v.SetDefault("orchestration.thresholds.memory_upper", 85.0)
	v.SetDefault("orchestration.thresholds.memory_lower", 40.0)
	v.SetDefault("orchestration.thresholds.latency_upper", 1000.0)
	v.SetDefault("orchestration.thresholds.latency_lower", 200.0)
	v.SetDefault("orchestration.initial_deploy", true)
	v.SetDefault("orchestration.autoscaler_enabled", true)
	v.SetDefault("orchestration.evaluation_interval", "60s")
	v.SetDefault("orchestration.metrics_interval", "60s")
	v.SetDefault("orchestration.health_interval", "30s")

	// Rolling update
	v.SetDefault("rolling_update.health_check_timeout", "30s")
	v.SetDefault("rolling_update.health_poll_interval", "2s")
	v.SetDefault("rolling_update.drain_timeout", "60s")
	v.SetDefault("rolling_update.probe_timeout", "5s")

	// Forecasting
	v.SetDefault("forecasting.enabled", true)
	v.SetDefault("forecasting.window_size", 20)
	v.SetDefault("forecasting.steps", 3)
	v.SetDefault("forecasting.confidence_threshold", 0.7)

	// Policy
	v.SetDefault("policy.provider", PolicyNone)
	v.SetDefault("policy.timeout", "2s")

	// SFC catalog
	v.SetDefault("sfc.default_priority", 5)
	v.SetDefault("sfc.default_service_duration", "0s")
	v.SetDefault("sfc.request_types", map[string]interface{}{
		"inbound_user_protection": map[string]interface{}{
			"chain":          []string{"firewall", "spamfilter", "antivirus", "content_filtering"},
			"direction":      "inbound",
			"latency_budget": "100ms",
		},
		"outbound_data_protection_compliance": map[string]interface{}{
			"chain":          []string{"firewall", "content_filtering", "encryption_gateway"},
			"direction":      "outbound",
			"latency_budget": "200ms",
		},
		"auth_and_anti_spoof_enforcement": map[string]interface{}{
			"chain":          []string{"firewall", "spamfilter"},
			"direction":      "bidirectional",
			"latency_budget": "50ms",
		},
		"attachment_risk_reduction": map[string]interface{}{
			"chain":          []string{"firewall", "antivirus", "content_filtering"},
			"direction":      "inbound",
			"latency_budget": "500ms",
		},
		"branch_cloud_saas_access": map[string]interface{}{
			"chain":          []string{"firewall", "encryption_gateway"},
			"direction":      "bidirectional",
			"latency_budget": "150ms",
		},
	})
	v.SetDefault("sfc.complementary_chains", map[string]interface{}{})

	// Runtime
	v.SetDefault("runtime.provider", RuntimeSimulated)
	v.SetDefault("runtime.namespace", "vnf")
	v.SetDefault("runtime.image_pattern", "my-%s-vnf")
	v.SetDefault("runtime.probe_port", 8080)
	v.SetDefault("runtime.cpu_cores", 1)
	v.SetDefault("runtime.memory", "512Mi")
	v.SetDefault("runtime.operation_timeout", "2m")
	v.SetDefault("runtime.simulated.startup_delay", "0s")
	v.SetDefault("runtime.simulated.base_cpu", 45.0)
	v.SetDefault("runtime.simulated.base_memory", 50.0)
	v.SetDefault("runtime.simulated.base_latency", 300.0)

	// Database (optional)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", true)

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_issuer", "vnf-orchestrator")
	v.SetDefault("security.token_ttl", "1h")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "vnf-orchestrator")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
