package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`
	ChainID     uint64 `toml:"ChainID"`
	Env         string `toml:"Env"`
	RewardToken string `toml:"RewardToken"`

	Pairs   []Pair    `toml:"pair"`
	Genesis []Balance `toml:"genesis"`
}

// Pair declares a liquidity route from a base asset to the deposit token the
// adapter mints for it. RateNum/RateDen quote deposit units per base unit.
type Pair struct {
	Base    string `toml:"Base"`
	Deposit string `toml:"Deposit"`
	RateNum uint64 `toml:"RateNum"`
	RateDen uint64 `toml:"RateDen"`
}

// Balance seeds a bank balance on first boot.
type Balance struct {
	Token   string `toml:"Token"`
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "stakehub-local"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stakehub-data"
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(path string) error {
	if c.RewardToken != "" && !common.IsHexAddress(c.RewardToken) {
		return fmt.Errorf("config file %s: RewardToken is not a hex address", path)
	}
	for i, pair := range c.Pairs {
		if !common.IsHexAddress(pair.Base) || !common.IsHexAddress(pair.Deposit) {
			return fmt.Errorf("config file %s: pair %d has a non-hex address", path, i)
		}
		if pair.RateNum == 0 || pair.RateDen == 0 {
			return fmt.Errorf("config file %s: pair %d has a zero rate component", path, i)
		}
	}
	for i, alloc := range c.Genesis {
		if !common.IsHexAddress(alloc.Token) || !common.IsHexAddress(alloc.Address) {
			return fmt.Errorf("config file %s: genesis entry %d has a non-hex address", path, i)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Amount), 10); !ok {
			return fmt.Errorf("config file %s: genesis entry %d has a non-decimal amount", path, i)
		}
	}
	return nil
}

// RewardTokenAddress returns the configured reward token, or the zero address
// when unset.
func (c *Config) RewardTokenAddress() common.Address {
	if !common.IsHexAddress(c.RewardToken) {
		return common.Address{}
	}
	return common.HexToAddress(c.RewardToken)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8080",
		DataDir:     "./stakehub-data",
		NetworkName: "stakehub-local",
		ChainID:     1,
		Env:         "dev",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
