// Package config loads configuration from flags, environment variables, and
// an optional YAML file, and validates it before the server starts.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var registerFlagsOnce sync.Once

// Load assembles the configuration in precedence order: explicit overrides
// placed with v.Set (secret material read from files or stdin), then command
// line flags, then ISPYB_-prefixed environment variables, then an optional
// YAML config file, and finally the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	registerFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// Optional YAML file. Without an explicit --config the usual locations
	// are searched, and a missing file is not an error.
	configFile, _ := pflag.CommandLine.GetString("config")
	if configFile == "" {
		v.SetConfigName("ispyb-graphql")
		v.SetConfigType("yaml")
		for _, dir := range []string{"/etc/ispyb-graphql/", "$HOME/.ispyb-graphql", "."} {
			v.AddConfigPath(dir)
		}
	} else {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment. Canonical keys are dot plus snake_case, so the variables
	// read ISPYB_DATABASE_URL, ISPYB_S3_BUCKET, ISPYB_SERVER_PORT, and so on.
	v.SetEnvPrefix("ISPYB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindDeploymentEnvAliases(v)

	// Changed flags beat everything loaded so far.
	bindChangedFlagsToViper(v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	// Secret material may arrive through companion *_file keys instead of
	// the flat settings. A populated flat setting always wins.
	fileSourced := []struct{ key, fileKey, what string }{
		{"database.url", "database.url_file", "database URL"},
		{"database.password", "database.password_file", "database password"},
		{"s3.secret_access_key", "s3.secret_access_key_file", "S3 secret access key"},
	}
	for _, src := range fileSourced {
		if v.GetString(src.key) != "" || v.GetString(src.fileKey) == "" {
			continue
		}
		secret, err := readSecretFile(v.GetString(src.fileKey))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s file: %w", src.what, err)
		}
		v.Set(src.key, secret)
	}
	if v.GetBool("database.password_prompt") && v.GetString("database.password") == "" {
		password, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", password)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	))
	if err := v.UnmarshalExact(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindDeploymentEnvAliases honors the bare environment names existing
// deployments export, alongside the canonical ISPYB_* names. The prefixed
// name wins when both are set.
func bindDeploymentEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"database.url":         "DATABASE_URL",
		"telemetry.endpoint":   "OTEL_COLLECTOR_URL",
		"s3.bucket":            "S3_BUCKET",
		"s3.endpoint_url":      "AWS_ENDPOINT_URL",
		"s3.access_key_id":     "AWS_ACCESS_KEY_ID",
		"s3.secret_access_key": "AWS_SECRET_ACCESS_KEY",
		"s3.region":            "AWS_DEFAULT_REGION",
	}
	for key, name := range aliases {
		_ = v.BindEnv(key, name)
	}
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "version", "path":
			return
		}
		v.Set(f.Name, typedFlagValue(f))
	})
}

// typedFlagValue unpacks a flag into the Go value viper should store, so
// later lookups and unmarshalling see real ints and durations rather than
// their string forms.
func typedFlagValue(f *pflag.Flag) interface{} {
	line := pflag.CommandLine
	switch f.Value.Type() {
	case "string":
		val, _ := line.GetString(f.Name)
		return val
	case "int":
		val, _ := line.GetInt(f.Name)
		return val
	case "bool":
		val, _ := line.GetBool(f.Name)
		return val
	case "float64":
		val, _ := line.GetFloat64(f.Name)
		return val
	case "duration":
		val, _ := line.GetDuration(f.Name)
		return val
	case "stringSlice":
		val, _ := line.GetStringSlice(f.Name)
		return val
	}
	return f.Value.String()
}

// registerFlags declares every command line flag once, under canonical
// snake_case keys.
func registerFlags() {
	registerFlagsOnce.Do(func() {
		// Database connection flags
		pflag.String("database.url", "", "Complete database target: DSN (user:pass@tcp(host:port)/db) or mysql:// URL")
		pflag.String("database.url_file", "", "File holding the database URL (@- reads stdin)")
		pflag.String("database.host", "", "Database server host")
		pflag.Int("database.port", 0, "Database server port")
		pflag.String("database.user", "", "Database user")
		pflag.String("database.password", "", "Database password")
		pflag.String("database.password_file", "", "File holding the database password (@- reads stdin)")
		pflag.Bool("database.password_prompt", false, "Prompt for the database password on startup")
		pflag.String("database.name", "", "Database name")

		// Database pool flags
		pflag.Int("database.pool.max_open", 0, "Cap on open database connections")
		pflag.Int("database.pool.max_idle", 0, "Idle connections held in the pool")
		pflag.Duration("database.pool.max_lifetime", 0, "Maximum lifetime of a pooled connection (e.g. 5m)")
		pflag.Duration("database.connection_timeout", 0, "How long to wait for the database on startup (0 = fail immediately)")
		pflag.Duration("database.connection_retry_interval", 0, "Starting interval between connection retries")

		// Server flags
		pflag.String("server.host", "", "HTTP server bind address (empty = all interfaces)")
		pflag.Int("server.port", 0, "HTTP listen port")
		pflag.Bool("server.graphiql_enabled", false, "Serve GraphiQL for GET requests on /")
		pflag.Duration("server.read_timeout", 0, "HTTP read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "Grace period for draining connections on shutdown")
		pflag.Duration("server.health_check_timeout", 0, "Timeout for the database health probe")
		pflag.String("server.tls_mode", "", "TLS mode for the listener: off, auto (self-signed), or file")
		pflag.String("server.tls_cert_file", "", "TLS certificate file (file mode)")
		pflag.String("server.tls_key_file", "", "TLS private key file (file mode)")
		pflag.String("server.tls_auto_cert_dir", "", "Directory where auto mode keeps its generated pair (default: .tls)")

		// Object store flags
		pflag.String("s3.bucket", "", "S3 bucket holding processed data files")
		pflag.String("s3.endpoint_url", "", "S3 endpoint URL override (e.g. https://sci-nas-s3.diamond.ac.uk)")
		pflag.String("s3.access_key_id", "", "S3 access key ID")
		pflag.String("s3.secret_access_key", "", "S3 secret access key")
		pflag.String("s3.secret_access_key_file", "", "File holding the S3 secret access key (@- reads stdin)")
		pflag.Bool("s3.force_path_style", false, "Use path-style S3 addressing")
		pflag.String("s3.region", "", "S3 region")

		// Logging flags
		pflag.String("logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("logging.format", "", "Log format (json, text)")

		// Telemetry flags
		pflag.Bool("telemetry.enabled", false, "Enable OpenTelemetry trace export")
		pflag.String("telemetry.endpoint", "", "OTLP collector endpoint (host:port)")
		pflag.String("telemetry.protocol", "", "OTLP protocol (grpc, http)")
		pflag.Bool("telemetry.insecure", false, "Use insecure connection to the collector (no TLS)")
		pflag.Duration("telemetry.timeout", 0, "OTLP export timeout")
		pflag.Float64("telemetry.sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
		pflag.String("telemetry.service_name", "", "Service name reported in telemetry")
		pflag.String("telemetry.service_version", "", "Service version reported in telemetry")
		pflag.String("telemetry.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("telemetry.metrics_enabled", false, "Expose Prometheus metrics on /metrics")
		pflag.Bool("telemetry.log_export_enabled", false, "Ship log records to the OTLP collector")

		// Auth flags
		pflag.Bool("auth.enabled", false, "Require OIDC bearer tokens for direct access")
		pflag.String("auth.issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
		pflag.String("auth.audience", "", "Expected JWT audience (client ID)")
		pflag.Duration("auth.clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")

		// Rate limit flags
		pflag.Bool("ratelimit.enabled", false, "Enable global rate limiting for all HTTP endpoints")
		pflag.Float64("ratelimit.rps", 0, "Global rate limit requests per second")
		pflag.Int("ratelimit.burst", 0, "Global rate limit burst size")

		// CORS flags
		pflag.Bool("cors.enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("cors.allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("cors.allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("cors.allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.Bool("cors.allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("cors.max_age", 0, "CORS preflight cache duration (seconds)")

		pflag.StringP("config", "c", "", "Path to the YAML config file")
	})
}

// defaultSettings is the lowest-precedence configuration layer. Server port
// 80 matches existing deployments.
var defaultSettings = map[string]interface{}{
	"database.url":                       "",
	"database.url_file":                  "",
	"database.host":                      "localhost",
	"database.port":                      3306,
	"database.user":                      "ispyb",
	"database.password":                  "",
	"database.password_file":             "",
	"database.password_prompt":           false,
	"database.name":                      "ispyb",
	"database.pool.max_open":             25,
	"database.pool.max_idle":             5,
	"database.pool.max_lifetime":         5 * time.Minute,
	"database.connection_timeout":        60 * time.Second,
	"database.connection_retry_interval": 2 * time.Second,

	"server.host":                 "",
	"server.port":                 80,
	"server.graphiql_enabled":     true,
	"server.read_timeout":         15 * time.Second,
	"server.write_timeout":        30 * time.Second,
	"server.idle_timeout":         60 * time.Second,
	"server.shutdown_timeout":     30 * time.Second,
	"server.health_check_timeout": 2 * time.Second,
	"server.tls_mode":             "off",
	"server.tls_cert_file":        "",
	"server.tls_key_file":         "",
	"server.tls_auto_cert_dir":    ".tls",

	"s3.bucket":                 "",
	"s3.endpoint_url":           "",
	"s3.access_key_id":          "",
	"s3.secret_access_key":      "",
	"s3.secret_access_key_file": "",
	"s3.force_path_style":       false,
	"s3.region":                 "",

	"logging.level":  "info",
	"logging.format": "json",

	"telemetry.enabled":            false,
	"telemetry.endpoint":           "localhost:4317",
	"telemetry.protocol":           "grpc",
	"telemetry.insecure":           false,
	"telemetry.timeout":            10 * time.Second,
	"telemetry.sample_ratio":       1.0,
	"telemetry.service_name":       "ispyb-graphql",
	"telemetry.service_version":    "",
	"telemetry.environment":        "development",
	"telemetry.metrics_enabled":    true,
	"telemetry.log_export_enabled": false,

	"auth.enabled":    false,
	"auth.issuer_url": "",
	"auth.audience":   "",
	"auth.clock_skew": 2 * time.Minute,

	"ratelimit.enabled": false,
	"ratelimit.rps":     0.0,
	"ratelimit.burst":   0,

	"cors.enabled":           false,
	"cors.allowed_origins":   []string{},
	"cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
	"cors.allowed_headers":   []string{"Content-Type", "Authorization"},
	"cors.allow_credentials": false,
	"cors.max_age":           86400,
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaultSettings {
		v.SetDefault(key, value)
	}
}

// stdinFileKeys lists every *_file key that accepts the @- stdin marker.
// Stdin can only serve one of them.
var stdinFileKeys = []string{
	"database.url_file",
	"database.password_file",
	"s3.secret_access_key_file",
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var claimed []string
	for _, key := range stdinFileKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			claimed = append(claimed, key)
		}
	}
	if len(claimed) > 1 {
		return fmt.Errorf("only one file source may read from stdin (@-), got: %s", strings.Join(claimed, ", "))
	}
	return nil
}

// promptPassword asks for a password on the controlling terminal without
// echoing. When stdin is not a terminal the input is read as a plain line,
// so piped invocations still work.
func promptPassword() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(line)), nil
	}

	fmt.Fprint(os.Stderr, "Enter database password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func readSecretFile(path string) (string, error) {
	if path == "@-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// stringToStringSliceHookFunc lets a comma-separated env value populate a
// []string field.
func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	sliceType := reflect.TypeOf([]string{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != sliceType {
			return data, nil
		}

		raw, _ := data.(string)
		if raw == "" {
			return []string{}, nil
		}
		fields := strings.Split(raw, sep)
		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}
		return fields, nil
	}
}
