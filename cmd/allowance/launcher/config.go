package launcher

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-allowance-ledger/integration"
	"github.com/rony4d/go-allowance-ledger/issuance"
	"github.com/rony4d/go-allowance-ledger/ledger"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node     NodeConfig
	Ledger   LedgerConfig
	Simulate SimConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	Logging LoggingConfig
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

type LedgerConfig struct {
	Rules issuance.Rules
	Admin common.Address
}

// SimConfig drives the fake-network scenario runner.
type SimConfig struct {
	Holders   int
	Investors int
	Epochs    int
	Seed      int64
	Funds     uint64
}

func defaultConfig() Config {
	home := GuessHomeDir()
	return Config{
		Node: NodeConfig{
			DataDir: filepath.Join(home, ".allowance-ledger"),
			Name:    "allowance-ledger",
			Logging: LoggingConfig{
				Verbosity: 3,
				Format:    "text",
				Color:     true,
			},
		},
		Ledger: LedgerConfig{
			Rules: issuance.MainNetRules(),
		},
		Simulate: SimConfig{
			Holders:   3,
			Investors: 2,
			Epochs:    3,
			Seed:      42,
			Funds:     1000000,
		},
	}
}

// MakeAllConfigs merges defaults, an optional JSON config file, then CLI
// flag overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.GlobalString("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	if err := applyCLIOverrides(ctx, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Ledger.Rules.Validate(); err != nil {
		return cfg, err
	}
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	b, err := ioutil.ReadFile(resolvePath(path))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, cfg)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) error {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("log.format") {
		cfg.Node.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Node.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Node.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalBool("fakenet") {
		cfg.Ledger.Rules = issuance.FakeNetRules()
	}
	if name := ctx.GlobalString("preset"); name != "" {
		preset, err := integration.GetPresetByName(name)
		if err != nil {
			return err
		}
		cfg.Ledger.Rules = preset.Rules()
		cfg.Simulate.Holders = preset.Holders
		cfg.Simulate.Investors = preset.Investors
		cfg.Simulate.Epochs = preset.Epochs
		if preset.LogJSON {
			cfg.Node.Logging.Format = "json"
		}
	}
	if ctx.GlobalIsSet("epoch.length") {
		cfg.Ledger.Rules.EpochLength = idx.Block(ctx.GlobalUint64("epoch.length"))
	}
	if ctx.GlobalIsSet("curve.units") {
		cfg.Ledger.Rules.Curve = issuance.FlatCurve(ctx.GlobalUint64("curve.units"))
	}
	if ctx.GlobalIsSet("admin") {
		cfg.Ledger.Admin = common.HexToAddress(ctx.GlobalString("admin"))
	}

	if ctx.GlobalIsSet("sim.holders") {
		cfg.Simulate.Holders = ctx.GlobalInt("sim.holders")
	}
	if ctx.GlobalIsSet("sim.investors") {
		cfg.Simulate.Investors = ctx.GlobalInt("sim.investors")
	}
	if ctx.GlobalIsSet("sim.epochs") {
		cfg.Simulate.Epochs = ctx.GlobalInt("sim.epochs")
	}
	if ctx.GlobalIsSet("sim.seed") {
		cfg.Simulate.Seed = ctx.GlobalInt64("sim.seed")
	}
	if ctx.GlobalIsSet("sim.funds") {
		cfg.Simulate.Funds = ctx.GlobalUint64("sim.funds")
	}
	return nil
}

// EngineConfig maps the launcher config onto the engine's own.
func (c Config) EngineConfig() ledger.Config {
	return ledger.Config{
		Rules: c.Ledger.Rules,
		Admin: c.Ledger.Admin,
	}
}

// InvestorFunds returns the configured starting balance as a big.Int.
func (c SimConfig) InvestorFunds() *big.Int {
	return new(big.Int).SetUint64(c.Funds)
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, string(b))
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
