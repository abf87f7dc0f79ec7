package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// config holds the flags/env/file-layered settings for one stunprobe run,
// following the flag-plus-viper layering
// _examples/thatcooperguy-nvremote/apps/host-agent/internal/config uses for
// its daemon config. Flag names and viper keys are the same dash-separated
// strings so BindPFlags's key never needs translating; environment variable
// names use underscores in place of the dashes.
type config struct {
	Server         string
	Variant        string
	QueryType      string
	ReceiveTimeout int
	LocalBind      string
	Verbose        bool
	ConfigFile     string
}

func loadConfig(args []string) (*config, error) {
	fs := pflag.NewFlagSet("stunprobe", pflag.ContinueOnError)
	fs.String("server", "stun.l.google.com:19302", "STUN server host:port")
	fs.String("variant", "rfc3489", "discovery procedure: rfc3489 or rfc5780")
	fs.String("query-type", "exact-nat", "public-ip, open-nat, or exact-nat")
	fs.Int("receive-timeout-ms", 2000, "per-probe receive timeout in milliseconds")
	fs.String("local-bind", "", "local host:port to bind the UDP socket to")
	fs.Bool("verbose", false, "enable debug logging")
	fs.String("config", "", "path to a stunprobe config file (yaml/json/toml)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("server", "stun.l.google.com:19302")
	v.SetDefault("variant", "rfc3489")
	v.SetDefault("query-type", "exact-nat")
	v.SetDefault("receive-timeout-ms", 2000)
	v.SetDefault("local-bind", "")
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("STUNPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server":             "STUNPROBE_SERVER",
		"variant":            "STUNPROBE_VARIANT",
		"query-type":         "STUNPROBE_QUERY_TYPE",
		"receive-timeout-ms": "STUNPROBE_RECEIVE_TIMEOUT_MS",
		"local-bind":         "STUNPROBE_LOCAL_BIND",
		"verbose":            "STUNPROBE_VERBOSE",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	cfg := &config{
		Server:         v.GetString("server"),
		Variant:        v.GetString("variant"),
		QueryType:      v.GetString("query-type"),
		ReceiveTimeout: v.GetInt("receive-timeout-ms"),
		LocalBind:      v.GetString("local-bind"),
		Verbose:        v.GetBool("verbose"),
		ConfigFile:     configFile,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	switch strings.ToLower(c.Variant) {
	case "rfc3489", "rfc5780":
	default:
		return fmt.Errorf("variant must be rfc3489 or rfc5780, got %q", c.Variant)
	}
	switch strings.ToLower(c.QueryType) {
	case "public-ip", "open-nat", "exact-nat":
	default:
		return fmt.Errorf("query-type must be public-ip, open-nat, or exact-nat, got %q", c.QueryType)
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive-timeout-ms must be positive")
	}
	return nil
}
