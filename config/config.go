package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App        `json:"app"        toml:"app"`
		Blockchain `json:"blockchain" toml:"blockchain"`
		Wallet     `json:"wallet"     toml:"wallet"`
		HTTP       `json:"http"       toml:"http"`
		DB         `json:"db"         toml:"db"`
		Log        `json:"logger"     toml:"logger"`
	}

	Blockchain struct {
		BSCRPCURL             string        `json:"bsc_rpc_url"             toml:"bsc_rpc_url"             env:"BSC_RPC_URL"    env-default:"https://bsc-dataseed.binance.org/"`
		SolanaRPCURL          string        `json:"solana_rpc_url"          toml:"solana_rpc_url"          env:"SOLANA_RPC_URL"`
		RequiredConfirmations uint64        `json:"required_confirmations"  toml:"required_confirmations"  env:"BSC_CONFIRMATIONS" env-default:"3"`
		ScanInterval          time.Duration `json:"scan_interval"           toml:"scan_interval"           env:"BSC_SCAN_INTERVAL" env-default:"5s"`
		BlocksPerScan         uint64        `json:"blocks_per_scan"         toml:"blocks_per_scan"         env:"BSC_BLOCKS_PER_SCAN" env-default:"50"`
		Debug                 bool          `json:"debug"                   toml:"debug"                   env:"BLOCKCHAIN_DEBUG_MODE" env-default:"false"`
	}

	Wallet struct {
		CompletionTimeout      time.Duration `json:"completion_timeout"       toml:"completion_timeout"       env:"TX_COMPLETION_TIMEOUT"       env-default:"10m"`
		CompletionPollInterval time.Duration `json:"completion_poll_interval" toml:"completion_poll_interval" env:"TX_COMPLETION_POLL_INTERVAL" env-default:"5s"`
		LightScrypt            bool          `json:"light_scrypt"             toml:"light_scrypt"             env:"WALLET_LIGHT_SCRYPT"         env-default:"false"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX" env-required:"true"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
