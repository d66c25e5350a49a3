package deployer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/idea404/aa-dc/chains/zksync/create2"
)

// DefaultArtifactsDir is where hardhat-zksync writes compiled contracts.
const DefaultArtifactsDir = "artifacts-zk"

// ErrArtifactNotFound is returned when no artifact file matches a contract name.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is a compiled contract as emitted by the zksolc hardhat plugin.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	Bytecode     []byte
	// FactoryDeps maps the bytecode hash of each dependency to its
	// fully qualified contract name.
	FactoryDeps map[string]string
}

type artifactJSON struct {
	ContractName string            `json:"contractName"`
	SourceName   string            `json:"sourceName"`
	ABI          json.RawMessage   `json:"abi"`
	Bytecode     string            `json:"bytecode"`
	FactoryDeps  map[string]string `json:"factoryDeps"`
}

// ParseArtifact decodes the JSON of one artifact file.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	if raw.ContractName == "" {
		return nil, errors.New("artifact has no contract name")
	}
	parsedABI, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("parsing abi of %s: %w", raw.ContractName, err)
	}
	bytecode, err := hexutil.Decode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode of %s: %w", raw.ContractName, err)
	}
	return &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		ABI:          parsedABI,
		Bytecode:     bytecode,
		FactoryDeps:  raw.FactoryDeps,
	}, nil
}

// LoadArtifact searches dir recursively for <name>.json.
func LoadArtifact(dir, name string) (*Artifact, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != name+".json" {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", dir, err)
	}
	if found == "" {
		return nil, fmt.Errorf("%w: %s in %s", ErrArtifactNotFound, name, dir)
	}
	data, err := os.ReadFile(found)
	if err != nil {
		return nil, err
	}
	return ParseArtifact(data)
}

// BytecodeHash returns the versioned hash the contract deployer expects.
func (a *Artifact) BytecodeHash() (common.Hash, error) {
	return create2.HashBytecode(a.Bytecode)
}

// EncodeConstructor ABI-encodes constructor arguments.
func (a *Artifact) EncodeConstructor(args ...any) ([]byte, error) {
	input, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s constructor: %w", a.ContractName, err)
	}
	return input, nil
}
