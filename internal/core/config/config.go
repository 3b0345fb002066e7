package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Sorting modes accepted by SORTING_MODE.
const (
	SortingModeFormal     = "Formal"
	SortingModeFixedChute = "FixedChute"
	SortingModeRoundRobin = "RoundRobin"
)

// Upstream modes accepted by UPSTREAM_MODE.
const (
	UpstreamModeNone = "none"
	UpstreamModeMQTT = "mqtt"
	UpstreamModeHTTP = "http"
)

// Route plan stores accepted by ROUTE_PLAN_STORE.
const (
	RoutePlanStoreMemory = "memory"
	RoutePlanStoreRedis  = "redis"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the admin HTTP server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`
	// TopologyFile is the YAML file describing diverters, chutes and edges.
	TopologyFile string `mapstructure:"TOPOLOGY_FILE" default:"topology.yaml"`

	Sorter     SorterConfig     `mapstructure:",squash"`
	Congestion CongestionConfig `mapstructure:",squash"`
	Overload   OverloadConfig   `mapstructure:",squash"`
	Health     HealthConfig     `mapstructure:",squash"`
	Upstream   UpstreamConfig   `mapstructure:",squash"`
	MQTT       MQTTConfig       `mapstructure:",squash"`
	Redis      RedisConfig      `mapstructure:",squash"`
	Monitor    MonitorConfig    `mapstructure:",squash"`
	Simulation SimulationConfig `mapstructure:",squash"`
}

// SorterConfig holds the per-parcel routing settings.
type SorterConfig struct {
	// ExceptionChuteID is the chute every undeliverable parcel falls back to.
	ExceptionChuteID int64 `mapstructure:"EXCEPTION_CHUTE_ID" required:"true"`
	// SortingMode selects the chute selection strategy (Formal, FixedChute, RoundRobin).
	SortingMode string `mapstructure:"SORTING_MODE" default:"Formal"`
	// FixedChuteID is the target used in FixedChute mode.
	FixedChuteID int64 `mapstructure:"FIXED_CHUTE_ID"`
	// AvailableChuteIDs is the rotation used in RoundRobin mode (comma separated).
	AvailableChuteIDs []int64 `mapstructure:"AVAILABLE_CHUTE_IDS"`
	// ChuteAssignmentTimeoutMs bounds a single upstream assignment call.
	ChuteAssignmentTimeoutMs int `mapstructure:"CHUTE_ASSIGNMENT_TIMEOUT_MS" default:"10000"`
	// UpstreamMaxRetries is how many times a timed out or unavailable upstream call is retried.
	UpstreamMaxRetries int `mapstructure:"UPSTREAM_MAX_RETRIES" default:"2"`
	// ParcelTTLMs is the physical budget from detection to the chute.
	ParcelTTLMs int `mapstructure:"PARCEL_TTL_MS" default:"30000"`
	// ArrivalWindowMs is the nominal transit time from the sensor to the first diverter.
	ArrivalWindowMs int `mapstructure:"ARRIVAL_WINDOW_MS" default:"5000"`
	// ReplanCutoffMs is the point of no return for chute changes, relative to detection.
	ReplanCutoffMs int `mapstructure:"REPLAN_CUTOFF_MS" default:"3000"`
	// PathCacheSize is the number of compiled segment lists kept in memory.
	PathCacheSize int `mapstructure:"PATH_CACHE_SIZE" default:"256"`
	// EventBufferSize is the per-subscriber buffer of the execution event bus.
	EventBufferSize int `mapstructure:"EVENT_BUFFER_SIZE" default:"256"`
}

// CongestionConfig holds the detector thresholds.
type CongestionConfig struct {
	WindowSeconds         int     `mapstructure:"CONGESTION_WINDOW_SECONDS" default:"60"`
	InFlightWarning       int     `mapstructure:"CONGESTION_INFLIGHT_WARNING" default:"50"`
	InFlightSevere        int     `mapstructure:"CONGESTION_INFLIGHT_SEVERE" default:"100"`
	LatencyWarningMs      int     `mapstructure:"CONGESTION_LATENCY_WARNING_MS" default:"3000"`
	LatencySevereMs       int     `mapstructure:"CONGESTION_LATENCY_SEVERE_MS" default:"6000"`
	SuccessRateWarning    float64 `mapstructure:"CONGESTION_SUCCESS_RATE_WARNING" default:"0.9"`
	SuccessRateSevere     float64 `mapstructure:"CONGESTION_SUCCESS_RATE_SEVERE" default:"0.7"`
	MinSamplesSuccessRate int     `mapstructure:"CONGESTION_MIN_SAMPLES" default:"10"`
}

// OverloadConfig holds the overload policy flags and limits.
type OverloadConfig struct {
	Enabled                      bool `mapstructure:"OVERLOAD_POLICY_ENABLED" default:"true"`
	ForceExceptionOnSevere       bool `mapstructure:"OVERLOAD_FORCE_ON_SEVERE" default:"true"`
	ForceExceptionOnOverCapacity bool `mapstructure:"OVERLOAD_FORCE_ON_OVER_CAPACITY"`
	ForceExceptionOnTimeout      bool `mapstructure:"OVERLOAD_FORCE_ON_TIMEOUT" default:"true"`
	ForceExceptionOnWindowMiss   bool `mapstructure:"OVERLOAD_FORCE_ON_WINDOW_MISS"`
	MaxInFlightParcels           int  `mapstructure:"OVERLOAD_MAX_IN_FLIGHT" default:"120"`
	MinRequiredTTLMs             int  `mapstructure:"OVERLOAD_MIN_TTL_MS" default:"500"`
	MinArrivalWindowMs           int  `mapstructure:"OVERLOAD_MIN_ARRIVAL_WINDOW_MS" default:"200"`
	PreferRecirculation          bool `mapstructure:"OVERLOAD_PREFER_RECIRCULATION"`
}

// HealthConfig holds the degradation thresholds.
type HealthConfig struct {
	// LineDegradedRatio is the unhealthy/total node ratio at which the whole line is degraded.
	LineDegradedRatio float64 `mapstructure:"HEALTH_LINE_DEGRADED_RATIO" default:"0.5"`
}

// UpstreamConfig describes how chutes are requested and results reported.
type UpstreamConfig struct {
	// Mode is one of none, mqtt or http. http is refused in production.
	Mode string `mapstructure:"UPSTREAM_MODE" default:"none"`
	// HTTPURL is the base URL of the routing service in http mode.
	HTTPURL string `mapstructure:"UPSTREAM_HTTP_URL"`
	// HTTPRetryMax is the transport-level retry count of the http client.
	HTTPRetryMax int `mapstructure:"UPSTREAM_HTTP_RETRY_MAX" default:"1"`
	// NotificationSinkURL receives CloudEvents completion notifications in http mode.
	NotificationSinkURL string `mapstructure:"NOTIFICATION_SINK_URL"`
}

// MQTTConfig holds the broker connection and topic names.
type MQTTConfig struct {
	BrokerURL       string `mapstructure:"MQTT_BROKER_URL" default:"tcp://localhost:1883"`
	ClientID        string `mapstructure:"MQTT_CLIENT_ID" default:"parcel-sorter"`
	SensorTopic     string `mapstructure:"MQTT_SENSOR_TOPIC" default:"sorter/sensors/parcel-detected"`
	DetectedTopic   string `mapstructure:"MQTT_DETECTED_TOPIC" default:"sorter/upstream/parcel-detected"`
	AssignmentTopic string `mapstructure:"MQTT_ASSIGNMENT_TOPIC" default:"sorter/upstream/chute-assigned"`
	CompletedTopic  string `mapstructure:"MQTT_COMPLETED_TOPIC" default:"sorter/upstream/sorting-completed"`
	IngressEnabled  bool   `mapstructure:"MQTT_INGRESS_ENABLED"`
}

// RedisConfig holds the optional Redis connection.
type RedisConfig struct {
	// URL should be in the format: redis://[:password@]host[:port][/database]
	URL                     string `mapstructure:"REDIS_URL"`
	RoutePlanStore          string `mapstructure:"ROUTE_PLAN_STORE" default:"memory"`
	TrackingArchiveTTLHours int    `mapstructure:"TRACKING_ARCHIVE_TTL_HOURS" default:"72"`
}

// MonitorConfig holds the timeout, lost and retention sweeps.
type MonitorConfig struct {
	ParcelTimeoutMs   int    `mapstructure:"PARCEL_TIMEOUT_MS" default:"60000"`
	ParcelLostAfterMs int    `mapstructure:"PARCEL_LOST_AFTER_MS" default:"120000"`
	RetentionMinutes  int    `mapstructure:"TRACKING_RETENTION_MINUTES" default:"30"`
	MonitorSchedule   string `mapstructure:"MONITOR_SCHEDULE" default:"@every 5s"`
	CleanupSchedule   string `mapstructure:"CLEANUP_SCHEDULE" default:"@every 1m"`
	SensorDebounceMs  int    `mapstructure:"SENSOR_DEBOUNCE_MS" default:"1000"`
}

// SimulationConfig drives the simulated diverter driver.
type SimulationConfig struct {
	FailingDiverters []string `mapstructure:"SIM_FAILING_DIVERTERS"`
	LatencyMs        int      `mapstructure:"SIM_DIVERTER_LATENCY_MS" default:"20"`
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints. All problems are reported at once.
func (c *AppConfig) Validate() error {
	var err error

	switch c.Sorter.SortingMode {
	case SortingModeFormal, SortingModeFixedChute, SortingModeRoundRobin:
	default:
		err = multierr.Append(err, fmt.Errorf("invalid SORTING_MODE %q", c.Sorter.SortingMode))
	}

	if c.Sorter.ExceptionChuteID <= 0 {
		err = multierr.Append(err, errors.New("EXCEPTION_CHUTE_ID must be positive"))
	}

	switch c.Upstream.Mode {
	case UpstreamModeNone, UpstreamModeMQTT:
	case UpstreamModeHTTP:
		if strings.EqualFold(c.Environment, "production") {
			err = multierr.Append(err, errors.New("UPSTREAM_MODE=http is not allowed in production"))
		}
		if c.Upstream.HTTPURL == "" {
			err = multierr.Append(err, errors.New("UPSTREAM_HTTP_URL is required when UPSTREAM_MODE=http"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("invalid UPSTREAM_MODE %q", c.Upstream.Mode))
	}

	if c.Sorter.SortingMode == SortingModeFormal && c.Upstream.Mode == UpstreamModeNone {
		err = multierr.Append(err, errors.New("SORTING_MODE=Formal requires an UPSTREAM_MODE"))
	}

	switch c.Redis.RoutePlanStore {
	case RoutePlanStoreMemory:
	case RoutePlanStoreRedis:
		if c.Redis.URL == "" {
			err = multierr.Append(err, errors.New("REDIS_URL is required when ROUTE_PLAN_STORE=redis"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("invalid ROUTE_PLAN_STORE %q", c.Redis.RoutePlanStore))
	}

	if c.Congestion.InFlightSevere < c.Congestion.InFlightWarning {
		err = multierr.Append(err, errors.New("CONGESTION_INFLIGHT_SEVERE must be >= CONGESTION_INFLIGHT_WARNING"))
	}
	if c.Congestion.LatencySevereMs < c.Congestion.LatencyWarningMs {
		err = multierr.Append(err, errors.New("CONGESTION_LATENCY_SEVERE_MS must be >= CONGESTION_LATENCY_WARNING_MS"))
	}
	if c.Congestion.SuccessRateSevere > c.Congestion.SuccessRateWarning {
		err = multierr.Append(err, errors.New("CONGESTION_SUCCESS_RATE_SEVERE must be <= CONGESTION_SUCCESS_RATE_WARNING"))
	}

	if c.Health.LineDegradedRatio <= 0 || c.Health.LineDegradedRatio > 1 {
		err = multierr.Append(err, errors.New("HEALTH_LINE_DEGRADED_RATIO must be in (0, 1]"))
	}

	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// processTags iterates over the struct fields and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			if err := v.BindEnv(key); err != nil {
				return fmt.Errorf("failed to bind %s: %w", key, err)
			}
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" && isZero(val.Field(i)) {
			return fmt.Errorf("missing required configuration: %s", field.Tag.Get("mapstructure"))
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
