package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/idea404/aa-dc/chains/zksync/addressbook"
	"github.com/idea404/aa-dc/chains/zksync/deployer"
	"github.com/idea404/aa-dc/chains/zksync/provider"
	"github.com/idea404/aa-dc/chains/zksync/wallet"
)

// Network is one zkSync endpoint.
type Network struct {
	RPC        string `yaml:"rpc" json:"rpc"`
	ChainID    int64  `yaml:"chain_id" json:"chain_id"`
	EthNetwork string `yaml:"eth_network,omitempty" json:"eth_network,omitempty"`
}

func (n Network) Validate() error {
	if n.RPC == "" {
		return fmt.Errorf("rpc must be specified")
	}
	if n.ChainID <= 0 {
		return fmt.Errorf("chain_id must be greater than zero")
	}
	return nil
}

// WalletSpec is a named hex private key.
type WalletSpec struct {
	Name       string `yaml:"name" json:"name"`
	PrivateKey string `yaml:"private_key" json:"private_key"`
}

// Spec is the YAML configuration of the CLI.
type Spec struct {
	Network             string             `yaml:"network" json:"network"`
	Networks            map[string]Network `yaml:"networks" json:"networks"`
	Wallets             []WalletSpec       `yaml:"wallets,omitempty" json:"wallets,omitempty"`
	Mnemonic            string             `yaml:"mnemonic,omitempty" json:"mnemonic,omitempty"`
	NumWallets          int                `yaml:"num_wallets,omitempty" json:"num_wallets,omitempty"`
	AddressBook         string             `yaml:"address_book" json:"address_book"`
	ArtifactsDir        string             `yaml:"artifacts_dir" json:"artifacts_dir"`
	ReceiptPollInterval time.Duration      `yaml:"receipt_poll_interval" json:"receipt_poll_interval"`
}

// DefaultNetworks mirrors the networks of the bundled hardhat project.
func DefaultNetworks() map[string]Network {
	return map[string]Network{
		"zkSyncLocalnet": {RPC: "http://127.0.0.1:8011", ChainID: 260, EthNetwork: "localhost"},
		"zkSyncTestnet":  {RPC: "https://zksync2-testnet.zksync.dev", ChainID: 280, EthNetwork: "goerli"},
	}
}

// Load reads, defaults and validates the spec at path.
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML spec, fills defaults and validates it.
func Parse(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("decoding config: %w", err)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid config: %w", err)
	}
	return spec, nil
}

func (s *Spec) applyDefaults() {
	if len(s.Networks) == 0 {
		s.Networks = DefaultNetworks()
	}
	if s.AddressBook == "" {
		s.AddressBook = addressbook.DefaultPath
	}
	if s.ArtifactsDir == "" {
		s.ArtifactsDir = deployer.DefaultArtifactsDir
	}
	if s.ReceiptPollInterval == 0 {
		s.ReceiptPollInterval = provider.DefaultPollInterval
	}
}

// Validate validates the Spec and returns an error if it's invalid
func (s *Spec) Validate() error {
	if s.Network == "" {
		return fmt.Errorf("network must be specified")
	}
	n, ok := s.Networks[s.Network]
	if !ok {
		return fmt.Errorf("network %q is not defined, known networks: %s", s.Network, strings.Join(s.networkNames(), ", "))
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("validating network %s: %w", s.Network, err)
	}

	if len(s.Wallets) == 0 && s.Mnemonic == "" {
		return fmt.Errorf("either wallets or mnemonic must be provided")
	}
	if s.Mnemonic != "" && s.NumWallets <= 0 {
		return fmt.Errorf("num_wallets must be greater than zero when a mnemonic is set")
	}
	for i, w := range s.Wallets {
		if _, err := wallet.KeyFromHex(w.PrivateKey); err != nil {
			return fmt.Errorf("wallet[%d] %s: %w", i, w.Name, err)
		}
	}
	if s.ReceiptPollInterval < 0 {
		return fmt.Errorf("receipt_poll_interval must not be negative")
	}
	return nil
}

func (s *Spec) networkNames() []string {
	names := make([]string, 0, len(s.Networks))
	for name := range s.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveNetwork returns the selected network.
func (s *Spec) ActiveNetwork() Network {
	return s.Networks[s.Network]
}

// ChainID returns the chain id of the selected network.
func (s *Spec) ChainID() *big.Int {
	return big.NewInt(s.ActiveNetwork().ChainID)
}

// Keys returns the configured wallet keys followed by the mnemonic-derived ones.
func (s *Spec) Keys() ([]*wallet.Key, error) {
	keys := make([]*wallet.Key, 0, len(s.Wallets)+s.NumWallets)
	for i, w := range s.Wallets {
		k, err := wallet.KeyFromHex(w.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet[%d] %s: %w", i, w.Name, err)
		}
		keys = append(keys, k)
	}
	if s.Mnemonic != "" {
		derived, err := wallet.KeysFromMnemonic(s.Mnemonic, s.NumWallets)
		if err != nil {
			return nil, err
		}
		keys = append(keys, derived...)
	}
	return keys, nil
}

// Key returns the key at index i of Keys.
func (s *Spec) Key(i int) (*wallet.Key, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(keys) {
		return nil, fmt.Errorf("wallet index %d out of range, %d wallets configured", i, len(keys))
	}
	return keys[i], nil
}
