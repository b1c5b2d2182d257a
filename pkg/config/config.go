// Package config loads the daemon configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/parolabs/governor/pkg/governance"
)

// Config is the daemon configuration.
type Config struct {
	Listen            string   `yaml:"listen"            envconfig:"LISTEN"`
	LogLevel          string   `yaml:"logLevel"          envconfig:"LOG_LEVEL"`
	Admin             string   `yaml:"admin"             envconfig:"ADMIN"`
	Guardians         []string `yaml:"guardians"         envconfig:"GUARDIANS"`
	RequiredGuardians int      `yaml:"requiredGuardians" envconfig:"REQUIRED_GUARDIANS"`
	EmergencyPeriod   string   `yaml:"emergencyPeriod"   envconfig:"EMERGENCY_PERIOD"`
	ParamChangeDelay  string   `yaml:"paramChangeDelay"  envconfig:"PARAM_CHANGE_DELAY"`
	// WeightPolicy is "live" or "window_start".
	WeightPolicy string `yaml:"weightPolicy" envconfig:"WEIGHT_POLICY"`

	Token    TokenConfig       `yaml:"token"`
	Staking  StakingConfig     `yaml:"staking"`
	Treasury TreasuryConfig    `yaml:"treasury"`
	Modules  map[string]string `yaml:"modules"`
	Params   ParamsConfig      `yaml:"params"`
}

// TokenConfig configures the value-token collaborator.
type TokenConfig struct {
	Symbol string `yaml:"symbol" envconfig:"TOKEN_SYMBOL"`
	// Genesis maps addresses to initial balances (decimal strings).
	Genesis map[string]string `yaml:"genesis"`
}

// StakingConfig configures the staking collaborator. A zero MaxMultiplierBps
// disables staking integration entirely.
type StakingConfig struct {
	MaxMultiplierBps uint64 `yaml:"maxMultiplierBps" envconfig:"STAKING_MAX_MULTIPLIER_BPS"`
	MaxStakingPeriod string `yaml:"maxStakingPeriod" envconfig:"STAKING_MAX_PERIOD"`
}

// TreasuryConfig configures the custody ledger.
type TreasuryConfig struct {
	Account       string   `yaml:"account"       envconfig:"TREASURY_ACCOUNT"`
	AllowedAssets []string `yaml:"allowedAssets" envconfig:"TREASURY_ALLOWED_ASSETS"`
}

// ParamsConfig holds the initial governance parameter set.
type ParamsConfig struct {
	ProposalThreshold string `yaml:"proposalThreshold" envconfig:"PROPOSAL_THRESHOLD"`
	MinVotingPeriod   string `yaml:"minVotingPeriod"   envconfig:"MIN_VOTING_PERIOD"`
	MaxVotingPeriod   string `yaml:"maxVotingPeriod"   envconfig:"MAX_VOTING_PERIOD"`
	QuorumBps         uint64 `yaml:"quorumBps"         envconfig:"QUORUM_BPS"`
	ExecutionDelay    string `yaml:"executionDelay"    envconfig:"EXECUTION_DELAY"`
	ExecutionPeriod   string `yaml:"executionPeriod"   envconfig:"EXECUTION_PERIOD"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Listen:            ":8420",
		LogLevel:          "info",
		RequiredGuardians: 2,
		EmergencyPeriod:   "48h",
		ParamChangeDelay:  "24h",
		WeightPolicy:      "live",
		Token: TokenConfig{
			Symbol: "GOV",
		},
		Staking: StakingConfig{
			MaxMultiplierBps: 25_000,
			MaxStakingPeriod: "8760h", // one year
		},
		Treasury: TreasuryConfig{
			Account: "treasury",
		},
	}
}

// Load reads the configuration from the given YAML file (optional; pass ""
// to skip) and then applies GOVERNOR_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("governor", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return cfg, nil
}

// GovernanceParameters builds the initial parameter set, falling back to
// defaults for unset fields.
func (c *Config) GovernanceParameters() (*governance.Parameters, error) {
	params := governance.DefaultParameters()

	if c.Params.ProposalThreshold != "" {
		threshold, ok := new(big.Int).SetString(c.Params.ProposalThreshold, 10)
		if !ok {
			return nil, fmt.Errorf("invalid proposal threshold %q", c.Params.ProposalThreshold)
		}
		params.ProposalThreshold = threshold
	}
	if c.Params.QuorumBps != 0 {
		params.QuorumBps = c.Params.QuorumBps
	}

	var err error
	if params.MinVotingPeriod, err = overrideDuration(c.Params.MinVotingPeriod, params.MinVotingPeriod); err != nil {
		return nil, err
	}
	if params.MaxVotingPeriod, err = overrideDuration(c.Params.MaxVotingPeriod, params.MaxVotingPeriod); err != nil {
		return nil, err
	}
	if params.ExecutionDelay, err = overrideDuration(c.Params.ExecutionDelay, params.ExecutionDelay); err != nil {
		return nil, err
	}
	if params.ExecutionPeriod, err = overrideDuration(c.Params.ExecutionPeriod, params.ExecutionPeriod); err != nil {
		return nil, err
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// Duration parses one of the config's duration strings.
func Duration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

func overrideDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return Duration(value)
}
