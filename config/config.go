// Package config loads the node configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/spf13/viper"

	staketypes "github.com/haunti-network/haunti/x/stake/types"
	tasktypes "github.com/haunti-network/haunti/x/task/types"
	"github.com/haunti-network/haunti/zk/registry"
)

// Config is the full node configuration.
type Config struct {
	API      APIConfig                            `mapstructure:"api"`
	Storage  StorageConfig                        `mapstructure:"storage"`
	Engine   EngineConfig                         `mapstructure:"engine"`
	Circuits map[string]registry.ArtifactOverride `mapstructure:"circuits"`
	Stake    StakeConfig                          `mapstructure:"stake"`
	Task     TaskConfig                           `mapstructure:"task"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`
}

// StorageConfig selects the blob-store backend.
type StorageConfig struct {
	// Backend is "memory" or "ipfs".
	Backend  string `mapstructure:"backend"`
	IPFSAddr string `mapstructure:"ipfs_addr"`
}

// EngineConfig configures the proof engine.
type EngineConfig struct {
	ProveTimeout time.Duration `mapstructure:"prove_timeout"`
}

// StakeConfig carries the staking parameters in file-friendly form.
type StakeConfig struct {
	MinStake      map[string]int64 `mapstructure:"min_stake"`
	MaxLockup     time.Duration    `mapstructure:"max_lockup"`
	SlashFraction string           `mapstructure:"slash_fraction"`
}

// TaskConfig carries the task parameters in file-friendly form.
type TaskConfig struct {
	SubmitWindow          time.Duration `mapstructure:"submit_window"`
	RewardAccrualFraction string        `mapstructure:"reward_accrual_fraction"`
	PenaltyFraction       string        `mapstructure:"penalty_fraction"`
	ForfeitToTreasury     bool          `mapstructure:"forfeit_to_treasury"`
	TreasuryAccount       string        `mapstructure:"treasury_account"`
}

// Load reads the configuration from path (or the default search locations
// when path is empty), applying HAUNTI_* environment overrides on top.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("haunti")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.haunti")
	}

	v.SetEnvPrefix("haunti")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_addr", ":8545")
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.metrics_enabled", true)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.ipfs_addr", "localhost:5001")

	v.SetDefault("engine.prove_timeout", 5*time.Minute)

	v.SetDefault("stake.max_lockup", 365*24*time.Hour)
	v.SetDefault("stake.slash_fraction", "0.10")

	v.SetDefault("task.submit_window", time.Hour)
	v.SetDefault("task.reward_accrual_fraction", "0.05")
	v.SetDefault("task.penalty_fraction", "0.10")
	v.SetDefault("task.forfeit_to_treasury", false)
}

// StakeParams converts the file form to module parameters.
func (c StakeConfig) StakeParams() (staketypes.Params, error) {
	params := staketypes.DefaultParams()
	if c.MaxLockup > 0 {
		params.MaxLockup = c.MaxLockup
	}
	if c.SlashFraction != "" {
		frac, err := math.LegacyNewDecFromStr(c.SlashFraction)
		if err != nil {
			return staketypes.Params{}, fmt.Errorf("slash fraction: %w", err)
		}
		params.SlashFraction = frac
	}
	for pool, min := range c.MinStake {
		pt := staketypes.PoolType(pool)
		if !pt.Valid() {
			return staketypes.Params{}, fmt.Errorf("unknown pool %q", pool)
		}
		params.MinStake[pt] = math.NewInt(min)
	}
	if err := params.Validate(); err != nil {
		return staketypes.Params{}, err
	}
	return params, nil
}

// TaskParams converts the file form to module parameters.
func (c TaskConfig) TaskParams() (tasktypes.Params, error) {
	params := tasktypes.DefaultParams()
	if c.SubmitWindow > 0 {
		params.SubmitWindow = c.SubmitWindow
	}
	if c.RewardAccrualFraction != "" {
		frac, err := math.LegacyNewDecFromStr(c.RewardAccrualFraction)
		if err != nil {
			return tasktypes.Params{}, fmt.Errorf("reward accrual fraction: %w", err)
		}
		params.RewardAccrualFraction = frac
	}
	if c.PenaltyFraction != "" {
		frac, err := math.LegacyNewDecFromStr(c.PenaltyFraction)
		if err != nil {
			return tasktypes.Params{}, fmt.Errorf("penalty fraction: %w", err)
		}
		params.PenaltyFraction = frac
	}
	params.ForfeitToTreasury = c.ForfeitToTreasury
	params.TreasuryAccount = c.TreasuryAccount
	if err := params.Validate(); err != nil {
		return tasktypes.Params{}, err
	}
	return params, nil
}
