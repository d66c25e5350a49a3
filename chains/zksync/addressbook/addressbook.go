// Package addressbook persists the addresses of deployed contracts per
// network in a vars.json file:
//
//	{"<network>": {"deployed": [{"name": "...", "address": "0x..."}]}}
//
// Every operation reads the whole file and Put writes it back whole. An
// advisory lock file next to it serializes processes on the same host only;
// writers on other hosts sharing the file are not coordinated.
package addressbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	zktypes "github.com/idea404/aa-dc/chains/zksync/types"
)

// DefaultPath is the address book used when none is configured.
const DefaultPath = "vars.json"

// Entry is one deployed contract.
type Entry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// AddressValue returns the parsed address.
func (e Entry) AddressValue() common.Address {
	return common.HexToAddress(e.Address)
}

type section struct {
	Deployed []Entry `json:"deployed"`
}

type document map[string]*section

// Book is a file-backed address book.
type Book struct {
	path   string
	lock   *flock.Flock
	logger *zap.Logger
}

// Open returns a book for path. The file is created on the first Put.
func Open(path string, logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With(zap.String("module", "addressbook"), zap.String("path", path)),
	}
}

func (b *Book) Path() string {
	return b.path
}

// Get returns the entry called name on network.
func (b *Book) Get(network, name string) (Entry, error) {
	if err := b.lock.RLock(); err != nil {
		return Entry{}, fmt.Errorf("locking %s: %w", b.path, err)
	}
	defer b.lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return Entry{}, err
	}
	if sec := doc[network]; sec != nil {
		for _, e := range sec.Deployed {
			if e.Name == name {
				return e, nil
			}
		}
	}
	return Entry{}, &zktypes.ContractNotFoundError{Network: network, Name: name}
}

// Address is Get returning only the address.
func (b *Book) Address(network, name string) (common.Address, error) {
	e, err := b.Get(network, name)
	if err != nil {
		return common.Address{}, err
	}
	return e.AddressValue(), nil
}

// List returns every entry of network in file order.
func (b *Book) List(network string) ([]Entry, error) {
	if err := b.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking %s: %w", b.path, err)
	}
	defer b.lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return nil, err
	}
	sec := doc[network]
	if sec == nil {
		return nil, nil
	}
	return append([]Entry(nil), sec.Deployed...), nil
}

// Put records addr under name on network, replacing an entry with the same
// name and keeping the position of the others.
func (b *Book) Put(network, name string, addr common.Address) error {
	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", b.path, err)
	}
	defer b.lock.Unlock()

	doc, err := b.read()
	if err != nil {
		return err
	}
	sec := doc[network]
	if sec == nil {
		sec = &section{}
		doc[network] = sec
	}
	entry := Entry{Name: name, Address: addr.Hex()}
	replaced := false
	for i := range sec.Deployed {
		if sec.Deployed[i].Name == name {
			sec.Deployed[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		sec.Deployed = append(sec.Deployed, entry)
	}

	if err := b.write(doc); err != nil {
		return err
	}
	b.logger.Info("address book updated",
		zap.String("network", network),
		zap.String("name", name),
		zap.String("address", entry.Address),
		zap.Bool("replaced", replaced))
	return nil
}

func (b *Book) read() (document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	doc := document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.path, err)
	}
	return doc, nil
}

func (b *Book) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding address book: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	return nil
}
