package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	logging "github.com/idea404/aa-dc/chains/log"
	"github.com/idea404/aa-dc/chains/zksync/accounts"
	"github.com/idea404/aa-dc/chains/zksync/addressbook"
	"github.com/idea404/aa-dc/chains/zksync/create2"
	"github.com/idea404/aa-dc/chains/zksync/deployer"
	"github.com/idea404/aa-dc/chains/zksync/metrics"
	"github.com/idea404/aa-dc/chains/zksync/provider"
	"github.com/idea404/aa-dc/chains/zksync/wallet"
	"github.com/idea404/aa-dc/config"
)

var (
	accountContractFlag = &cli.StringFlag{
		Name:  "account-contract",
		Usage: "account contract whose recipe is used",
		Value: accounts.TwoUserMultisig.AccountContract,
	}
	saltFlag = &cli.StringFlag{
		Name:  "salt",
		Usage: "32 byte hex deployment salt",
	}
	argFlag = &cli.StringSliceFlag{
		Name:  "arg",
		Usage: "account constructor argument, an address, an address book name or mock:<text>",
	}
	amountFlag = &cli.StringFlag{
		Name:     "amount",
		Usage:    "amount in ether",
		Required: true,
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "recipient address or address book name",
		Required: true,
	}
)

var deriveAddressCmd = &cli.Command{
	Name:  "derive-address",
	Usage: "compute the address a factory deploys an account at",
	Flags: []cli.Flag{
		accountContractFlag,
		saltFlag,
		argFlag,
		&cli.StringFlag{Name: "factory", Usage: "factory address or address book name, defaults to the recipe factory"},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, false)
		if err != nil {
			return err
		}
		recipe, err := accounts.RecipeFor(c.String(accountContractFlag.Name))
		if err != nil {
			return err
		}
		factoryRef := c.String("factory")
		if factoryRef == "" {
			factoryRef = recipe.FactoryContract
		}
		factory, err := rt.resolveAddress(factoryRef)
		if err != nil {
			return err
		}
		salt, err := parseSalt(c.String(saltFlag.Name), false)
		if err != nil {
			return err
		}
		args, err := rt.parseArgs(recipe.ArgTypes, c.StringSlice(argFlag.Name))
		if err != nil {
			return err
		}
		artifact, err := deployer.LoadArtifact(rt.spec.ArtifactsDir, recipe.AccountContract)
		if err != nil {
			return errors.Wrap(err, "failed to load account artifact")
		}
		bytecodeHash, err := artifact.BytecodeHash()
		if err != nil {
			return err
		}
		input, err := create2.EncodeArgs(recipe.ArgTypes, args...)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, create2.Address(factory, bytecodeHash, salt, input).Hex())
		return nil
	},
}

var deployFactoryCmd = &cli.Command{
	Name:  "deploy-factory",
	Usage: "deploy the factory of an account contract and record it in the address book",
	Flags: []cli.Flag{accountContractFlag, saltFlag},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		recipe, err := accounts.RecipeFor(c.String(accountContractFlag.Name))
		if err != nil {
			return err
		}
		opts := &deployer.DeployOpts{}
		if c.IsSet(saltFlag.Name) {
			salt, err := parseSalt(c.String(saltFlag.Name), false)
			if err != nil {
				return err
			}
			opts.Salt = &salt
		}
		d, err := rt.deployer()
		if err != nil {
			return err
		}
		factory, err := accounts.DeployFactory(c.Context, d, recipe, opts)
		if err != nil {
			return errors.Wrap(err, "failed to deploy factory")
		}
		if err := rt.book.Put(rt.network, recipe.FactoryContract, factory.Address); err != nil {
			return errors.Wrap(err, "failed to record factory")
		}
		fmt.Fprintln(c.App.Writer, factory.Address.Hex())
		return nil
	},
}

var deployAccountCmd = &cli.Command{
	Name:  "deploy-account",
	Usage: "deploy an account through its factory and record it in the address book",
	Flags: []cli.Flag{
		accountContractFlag,
		saltFlag,
		argFlag,
		&cli.StringFlag{Name: "name", Usage: "address book name of the account, defaults to the contract name"},
		&cli.StringFlag{Name: "fund", Usage: "ether to send to the new account"},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		recipe, err := accounts.RecipeFor(c.String(accountContractFlag.Name))
		if err != nil {
			return err
		}
		salt, err := parseSalt(c.String(saltFlag.Name), true)
		if err != nil {
			return err
		}
		args, err := rt.parseArgs(recipe.ArgTypes, c.StringSlice(argFlag.Name))
		if err != nil {
			return err
		}
		d, err := rt.deployer()
		if err != nil {
			return err
		}
		factoryAddr, err := rt.book.Address(rt.network, recipe.FactoryContract)
		if err != nil {
			return err
		}
		factoryArtifact, err := d.LoadArtifact(recipe.FactoryContract)
		if err != nil {
			return errors.Wrap(err, "failed to load factory artifact")
		}
		factory := deployer.Bind(factoryAddr, factoryArtifact, d.Caller())

		addr, err := accounts.DeployAccount(c.Context, d, factory, recipe, salt, args...)
		if err != nil {
			return errors.Wrap(err, "failed to deploy account")
		}
		name := c.String("name")
		if name == "" {
			name = recipe.AccountContract
		}
		if err := rt.book.Put(rt.network, name, addr); err != nil {
			return errors.Wrap(err, "failed to record account")
		}

		if amount := c.String("fund"); amount != "" {
			wei, err := parseEther(amount)
			if err != nil {
				return err
			}
			if _, err := accounts.Fund(c.Context, d.Account(), addr, wei); err != nil {
				return errors.Wrap(err, "failed to fund account")
			}
		}
		fmt.Fprintln(c.App.Writer, addr.Hex())
		return nil
	},
}

var fundCmd = &cli.Command{
	Name:  "fund",
	Usage: "send ether from the paying wallet",
	Flags: []cli.Flag{toFlag, amountFlag},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		to, err := rt.resolveAddress(c.String(toFlag.Name))
		if err != nil {
			return err
		}
		wei, err := parseEther(c.String(amountFlag.Name))
		if err != nil {
			return err
		}
		payer, err := rt.payer()
		if err != nil {
			return err
		}
		rt.logger.Info("funding",
			zap.String("from", payer.FormattedAddress()),
			zap.String("to", to.Hex()),
			zap.String("amount_eth", formatEther(wei)))
		receipt, err := accounts.Fund(c.Context, payer, to, wei)
		if err != nil {
			return errors.Wrap(err, "failed to fund")
		}
		fmt.Fprintln(c.App.Writer, receipt.TxHash.Hex())
		return nil
	},
}

var sendCmd = &cli.Command{
	Name:  "send",
	Usage: "transfer ether from a smart account signed by one or two owner wallets",
	Flags: []cli.Flag{
		toFlag,
		amountFlag,
		&cli.StringFlag{Name: "from", Usage: "smart account address or address book name", Required: true},
		&cli.IntSliceFlag{Name: "owner", Usage: "wallet index of an owner, in signing order", Required: true},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		from, err := rt.resolveAddress(c.String("from"))
		if err != nil {
			return err
		}
		to, err := rt.resolveAddress(c.String(toFlag.Name))
		if err != nil {
			return err
		}
		wei, err := parseEther(c.String(amountFlag.Name))
		if err != nil {
			return err
		}

		var signer *wallet.SmartAccountSigner
		owners := c.IntSlice("owner")
		switch len(owners) {
		case 1:
			k, err := rt.spec.Key(owners[0])
			if err != nil {
				return err
			}
			signer = wallet.NewSingleSigner(from, k)
		case 2:
			k1, err := rt.spec.Key(owners[0])
			if err != nil {
				return err
			}
			k2, err := rt.spec.Key(owners[1])
			if err != nil {
				return err
			}
			signer = wallet.NewDualSigner(from, k1, k2)
		default:
			return fmt.Errorf("expected one or two owners, got %d", len(owners))
		}

		account := wallet.NewAccount(signer, rt.client, rt.logger)
		receipt, err := account.Transfer(c.Context, to, wei)
		if err != nil {
			return errors.Wrap(err, "failed to send")
		}
		fmt.Fprintln(c.App.Writer, receipt.TxHash.Hex())
		return nil
	},
}

var balanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "print balances in ether",
	ArgsUsage: "<address or name>...",
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		if c.NArg() == 0 {
			return fmt.Errorf("at least one address is required")
		}
		addrs := make([]common.Address, 0, c.NArg())
		for _, ref := range c.Args().Slice() {
			addr, err := rt.resolveAddress(ref)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		balances, err := rt.client.Balances(c.Context, addrs)
		if err != nil {
			return err
		}
		for i, addr := range addrs {
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", c.Args().Get(i), addr.Hex(), formatEther(balances[addr]))
		}
		return nil
	},
}

var fastForwardCmd = &cli.Command{
	Name:  "fast-forward",
	Usage: "mine empty blocks on a local node",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "blocks", Usage: "number of blocks", Value: 1},
	},
	Action: func(c *cli.Context) error {
		rt, err := newRuntime(c, true)
		if err != nil {
			return err
		}
		defer rt.client.Close()

		height, err := rt.client.AdvanceBlocks(c.Context, c.Int("blocks"))
		if err != nil {
			return errors.Wrap(err, "failed to advance blocks")
		}
		fmt.Fprintln(c.App.Writer, height)
		return nil
	},
}

// runtime is what every command works with once the configuration is loaded.
type runtime struct {
	spec        config.Spec
	network     string
	book        *addressbook.Book
	client      *provider.Client
	walletIndex int
	logger      *zap.Logger
}

func newRuntime(c *cli.Context, dial bool) (*runtime, error) {
	logger := logging.FromContext(c.Context)

	spec, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if network := c.String("network"); network != "" {
		spec.Network = network
		if err := spec.Validate(); err != nil {
			return nil, errors.Wrap(err, "failed to validate config")
		}
	}

	rt := &runtime{
		spec:        spec,
		network:     spec.Network,
		book:        addressbook.Open(spec.AddressBook, logger),
		walletIndex: c.Int("wallet"),
		logger:      logger,
	}
	if !dial {
		return rt, nil
	}

	opts := []provider.Option{
		provider.WithLogger(logger),
		provider.WithPollInterval(spec.ReceiptPollInterval),
	}
	if config.EnvFromContext(c.Context).MetricsAddr != "" {
		m, err := metrics.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
		opts = append(opts, provider.WithMetrics(m))
	}
	rt.client, err = provider.Dial(c.Context, spec.ActiveNetwork().RPC, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial network")
	}
	logger.Info("connected", zap.String("network", rt.network), zap.String("rpc", spec.ActiveNetwork().RPC))
	return rt, nil
}

func (rt *runtime) payer() (*wallet.Account, error) {
	k, err := rt.spec.Key(rt.walletIndex)
	if err != nil {
		return nil, err
	}
	return wallet.NewAccount(wallet.NewOwnKeySigner(k), rt.client, rt.logger), nil
}

func (rt *runtime) deployer() (*deployer.Deployer, error) {
	payer, err := rt.payer()
	if err != nil {
		return nil, err
	}
	return deployer.New(payer, rt.client.Caller(), rt.spec.ArtifactsDir, rt.logger), nil
}

// resolveAddress accepts a hex address, mock:<text> or an address book name.
func (rt *runtime) resolveAddress(ref string) (common.Address, error) {
	switch {
	case common.IsHexAddress(ref):
		return common.HexToAddress(ref), nil
	case strings.HasPrefix(ref, "mock:"):
		return accounts.MockAddress(strings.TrimPrefix(ref, "mock:")), nil
	default:
		return rt.book.Address(rt.network, ref)
	}
}

func (rt *runtime) parseArgs(types []string, raw []string) ([]any, error) {
	if len(types) != len(raw) {
		return nil, fmt.Errorf("expected %d arguments (%s), got %d", len(types), strings.Join(types, ", "), len(raw))
	}
	args := make([]any, len(raw))
	for i, t := range types {
		if t != "address" {
			return nil, fmt.Errorf("unsupported argument type %s", t)
		}
		addr, err := rt.resolveAddress(raw[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = addr
	}
	return args, nil
}
