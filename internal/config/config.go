// Package config loads the engine's runtime configuration via
// github.com/spf13/viper: defaults set in code, overridable by an
// optional YAML file and PERPD_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaintenanceTier is one row of the tiered maintenance-margin table,
// expressed in whole units of the quote currency.
type MaintenanceTier struct {
	BelowWhole int64 `mapstructure:"below_whole"`
	Percent    int64 `mapstructure:"percent"`
}

// Config is the engine's full runtime configuration.
type Config struct {
	BootstrapServers string `mapstructure:"bootstrap_servers"`

	TradeRequestGroup    string `mapstructure:"trade_request_group"`
	PriceUpdateGroup     string `mapstructure:"price_update_group"`
	BalanceResponseGroup string `mapstructure:"balance_response_group"`
	HoldingsResponseGroup string `mapstructure:"holdings_response_group"`

	TradeRequestTopic    string `mapstructure:"trade_request_topic"`
	PriceUpdateTopic     string `mapstructure:"price_update_topic"`
	BalanceResponseTopic string `mapstructure:"balance_response_topic"`
	HoldingsResponseTopic string `mapstructure:"holdings_response_topic"`

	TradeResponseTopic string `mapstructure:"trade_response_topic"`
	TradeOutcomeTopic  string `mapstructure:"trade_outcome_topic"`
	BalanceRequestTopic string `mapstructure:"balance_request_topic"`
	HoldingsRequestTopic string `mapstructure:"holdings_request_topic"`

	MaintenanceTiers   []MaintenanceTier `mapstructure:"maintenance_tiers"`
	MaintenanceDefault int64             `mapstructure:"maintenance_default_percent"`

	RiskScanInterval   time.Duration `mapstructure:"risk_scan_interval"`
	OutboundQueueSize  int           `mapstructure:"outbound_queue_size"`
	ParkingTTL         time.Duration `mapstructure:"parking_ttl"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Defaults returns the configuration used when no file or environment
// override is present.
func Defaults() Config {
	return Config{
		BootstrapServers: "localhost:9092",

		TradeRequestGroup:     "perpd-trade-request",
		PriceUpdateGroup:      "perpd-price-update",
		BalanceResponseGroup:  "perpd-balance-response",
		HoldingsResponseGroup: "perpd-holdings-response",

		TradeRequestTopic:     "trade-create-request",
		PriceUpdateTopic:      "price-updates",
		BalanceResponseTopic:  "balance-response",
		HoldingsResponseTopic: "holdings-response",

		TradeResponseTopic:   "trade-create-response",
		TradeOutcomeTopic:    "trade-outcome",
		BalanceRequestTopic:  "balance-request",
		HoldingsRequestTopic: "holdings-request",

		MaintenanceTiers: []MaintenanceTier{
			{BelowWhole: 100, Percent: 1},
			{BelowWhole: 1_000, Percent: 2},
			{BelowWhole: 10_000, Percent: 3},
			{BelowWhole: 100_000, Percent: 4},
		},
		MaintenanceDefault: 5,

		RiskScanInterval:  time.Second,
		OutboundQueueSize: 10_000,
		ParkingTTL:        30 * time.Second,

		MetricsAddr: ":9464",
	}
}

// Load reads configuration from an optional YAML file at path (ignored
// if empty or missing), layered under defaults and over PERPD_*
// environment overrides.
func Load(path string) (Config, error) {
	defaults := Defaults()

	v := viper.New()
	v.SetEnvPrefix("PERPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return defaults, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return defaults, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("bootstrap_servers", d.BootstrapServers)
	v.SetDefault("trade_request_group", d.TradeRequestGroup)
	v.SetDefault("price_update_group", d.PriceUpdateGroup)
	v.SetDefault("balance_response_group", d.BalanceResponseGroup)
	v.SetDefault("holdings_response_group", d.HoldingsResponseGroup)
	v.SetDefault("trade_request_topic", d.TradeRequestTopic)
	v.SetDefault("price_update_topic", d.PriceUpdateTopic)
	v.SetDefault("balance_response_topic", d.BalanceResponseTopic)
	v.SetDefault("holdings_response_topic", d.HoldingsResponseTopic)
	v.SetDefault("trade_response_topic", d.TradeResponseTopic)
	v.SetDefault("trade_outcome_topic", d.TradeOutcomeTopic)
	v.SetDefault("balance_request_topic", d.BalanceRequestTopic)
	v.SetDefault("holdings_request_topic", d.HoldingsRequestTopic)
	v.SetDefault("maintenance_tiers", d.MaintenanceTiers)
	v.SetDefault("maintenance_default_percent", d.MaintenanceDefault)
	v.SetDefault("risk_scan_interval", d.RiskScanInterval)
	v.SetDefault("outbound_queue_size", d.OutboundQueueSize)
	v.SetDefault("parking_ttl", d.ParkingTTL)
	v.SetDefault("metrics_addr", d.MetricsAddr)
}
