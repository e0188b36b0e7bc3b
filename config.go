package main

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort         = 8080
	defaultStoreBackend = "sqlite"
	defaultStoreDSN     = "marketplace.db"
	defaultVaultAccount = "0x0000000000000000000000000000000000000001"
)

type Config struct {
	// API settings
	Port int `yaml:"port" envconfig:"PORT"`

	// Marketplace identity
	Owner    string   `yaml:"owner" envconfig:"OWNER"`
	Managers []string `yaml:"managers" envconfig:"MANAGERS"`

	// Persistence: "sqlite" or "postgres". For sqlite the DSN is the
	// database file path.
	StoreBackend string `yaml:"store_backend" envconfig:"STORE_BACKEND"`
	StoreDSN     string `yaml:"store_dsn" envconfig:"STORE_DSN"`

	// Escrow bank. VaultAccount holds deposits between escrow and
	// withdrawal; InitialBalances seeds accounts for demo deployments.
	VaultAccount    string `yaml:"vault_account" envconfig:"VAULT_ACCOUNT"`
	InitialBalances []struct {
		Account string `yaml:"account" json:"account"`
		Amount  uint64 `yaml:"amount" json:"amount"`
	} `yaml:"initial_balances"`

	// Nostr announcements. Disabled when the nsec is empty.
	NotifierNsec   string   `yaml:"notifier_nsec" envconfig:"NOTIFIER_NSEC"`
	NotifierRelays []string `yaml:"notifier_relays" envconfig:"NOTIFIER_RELAYS"`
}

// Load Config from a yaml file at path.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return err
	}

	c.applyDefaults()
	return nil
}

// Load Config from the environment.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return err
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.StoreBackend == "" {
		c.StoreBackend = defaultStoreBackend
	}
	if c.StoreDSN == "" {
		c.StoreDSN = defaultStoreDSN
	}
	if c.VaultAccount == "" {
		c.VaultAccount = defaultVaultAccount
	}
	if len(c.NotifierRelays) == 0 {
		c.NotifierRelays = []string{"wss://nostr.mutinywallet.com"}
	}
}
