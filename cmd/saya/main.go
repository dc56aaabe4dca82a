// saya follows a sequencer, proves every block and registers the proofs with a fact
// registry on the settlement chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neotheprogramist/dojo/blockchain"
	"github.com/neotheprogramist/dojo/chain"
	"github.com/neotheprogramist/dojo/config"
	"github.com/neotheprogramist/dojo/dataavailability"
	log "github.com/neotheprogramist/dojo/log"
	"github.com/neotheprogramist/dojo/prover"
	"github.com/neotheprogramist/dojo/saya"
	"github.com/neotheprogramist/dojo/storage"
	"github.com/neotheprogramist/dojo/telemetry"
	"github.com/neotheprogramist/dojo/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

type runFlags struct {
	config       string
	rpcURL       string
	privateKey   string
	chainID      string
	inputFormat  string
	startBlock   uint64
	registry     string
	world        string
	account      string
	proverURL    string
	proverKey    string
	dataPath     string
	da           bool
	telemetry    string
	logLevel     string
	debug        string
	logJSON      bool
	applyDiffs   bool
	pollInterval time.Duration
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "saya",
		Short:         "Rollup block prover and fact registry submitter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(newRunCmd(), newPlanCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the sequencer and prove every new block",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "local", "Config preset name or JSON file")
	fs.StringVar(&f.rpcURL, "rpc-url", "", "Sequencer JSON-RPC endpoint")
	fs.StringVar(&f.privateKey, "private-key", "", "Settlement account private key")
	fs.StringVar(&f.chainID, "chain-id", "", "Settlement chain id signed into transactions")
	fs.Uint64Var(&f.startBlock, "start-block", 1, "First block to prove")
	fs.StringVar(&f.registry, "registry", "", "Fact registry contract address")
	fs.StringVar(&f.world, "world", "", "World contract address")
	fs.StringVar(&f.account, "account", "", "Settlement account address")
	fs.StringVar(&f.proverURL, "prover-url", "", "HTTP prover endpoint")
	fs.StringVar(&f.proverKey, "prover-key", "", "HTTP prover access key")
	fs.StringVar(&f.inputFormat, "input-format", config.InputFormatJSON, "Prover input format (json, differ)")
	fs.StringVarP(&f.dataPath, "data-path", "d", "", "Ledger directory (empty keeps it in memory)")
	fs.BoolVar(&f.da, "da", false, "Archive every state diff locally")
	fs.StringVar(&f.telemetry, "telemetry", "", "OTLP/HTTP traces endpoint (e.g. http://localhost:4318/v1/traces)")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, crit)")
	fs.StringVar(&f.debug, "debug", "", "Debug modules to enable (comma separated, or all)")
	fs.BoolVar(&f.logJSON, "log-json", false, "Emit JSON log lines")
	fs.BoolVar(&f.applyDiffs, "apply-diffs", false, "Apply proven state diffs on the world contract")
	fs.DurationVar(&f.pollInterval, "poll-interval", time.Second, "Head polling interval")
	return cmd
}

// loadConfig reads the config document and overrides it with explicitly set flags.
func loadConfig(fs *pflag.FlagSet, f *runFlags) (*config.Config, error) {
	cfg, err := config.ReadConfig(f.config)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", f.config, err)
	}
	felt := func(name, value string, dst *types.Felt) error {
		if !fs.Changed(name) {
			return nil
		}
		v, err := types.FeltFromString(value)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		*dst = v
		return nil
	}
	if err := errors.Join(
		felt("registry", f.registry, &cfg.FactRegistryAddress),
		felt("world", f.world, &cfg.WorldAddress),
		felt("account", f.account, &cfg.AccountAddress),
		felt("private-key", f.privateKey, &cfg.AccountPrivateKey),
	); err != nil {
		return nil, err
	}
	if fs.Changed("rpc-url") {
		cfg.RPCURL = f.rpcURL
	}
	if fs.Changed("chain-id") {
		cfg.ChainID = f.chainID
	}
	if fs.Changed("input-format") {
		cfg.ProverInputFormat = f.inputFormat
	}
	if fs.Changed("start-block") {
		cfg.StartBlock = f.startBlock
	}
	if fs.Changed("prover-url") {
		cfg.ProverURL = f.proverURL
	}
	if fs.Changed("prover-key") {
		cfg.ProverKey = f.proverKey
	}
	if fs.Changed("data-path") {
		cfg.DataPath = f.dataPath
	}
	if fs.Changed("da") {
		cfg.DataAvailability = f.da
	}
	if fs.Changed("telemetry") {
		cfg.TelemetryEndpoint = f.telemetry
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("debug") {
		cfg.LogModules = f.debug
	}
	if fs.Changed("log-json") {
		cfg.LogJSON = f.logJSON
	}
	if fs.Changed("apply-diffs") {
		cfg.ApplyDiffs = f.applyDiffs
	}
	if fs.Changed("poll-interval") {
		cfg.PollInterval = config.Duration{Duration: f.pollInterval}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := log.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	log.EnableModules(cfg.LogModules)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.TelemetryEndpoint, "saya")
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn(log.PipelineMonitoring, "Telemetry shutdown failed", "err", err)
		}
	}()

	provider, err := chain.DialRPC(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer provider.Close()

	var signer chain.Signer
	if !cfg.AccountPrivateKey.IsZero() {
		chainID, err := cfg.ChainIDFelt()
		if err != nil {
			return err
		}
		s, err := chain.NewLocalSigner(cfg.AccountPrivateKey, chainID, cfg.MaxFee)
		if err != nil {
			return err
		}
		log.Info(log.ChainMonitoring, "Signing with local key", "account", cfg.AccountAddress, "publicKey", s.PublicKey(), "chainID", cfg.ChainID)
		signer = s
	} else {
		log.Warn(log.PipelineMonitoring, "No private key configured, settlement transactions will fail")
	}
	account := chain.NewRPCAccount(provider, cfg.AccountAddress, signer)

	store, err := storage.NewPersistenceStore(cfg.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()
	ledger := blockchain.NewLedger(store)

	var da dataavailability.Client
	if cfg.DataAvailability {
		archive, err := dataavailability.NewArchive(store)
		if err != nil {
			return err
		}
		da = archive
	}

	p := prover.NewHTTPProver(prover.HTTPProverParams{URL: cfg.ProverURL, AccessKey: cfg.ProverKey})
	pipeline := saya.New(cfg, provider, account, p, da, ledger)

	fmt.Printf("Starting saya %s\n", Version)
	fmt.Printf("  RPC: %s\n", cfg.RPCURL)
	fmt.Printf("  Prover: %s\n", cfg.ProverURL)
	fmt.Printf("  Fact Registry: %s\n", cfg.FactRegistryAddress)
	fmt.Printf("  Start Block: %d\n", cfg.StartBlock)

	err = pipeline.Start(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Printf("\nShutting down saya at block %d\n", pipeline.Cursor())
		return nil
	}
	return err
}

func newPlanCmd() *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the recursive proving plan for a block range",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to < from {
				return fmt.Errorf("--to %d is before --from %d", to, from)
			}
			inputs := make([]types.ProgramInput, 0, to-from+1)
			for n := from; n <= to; n++ {
				inputs = append(inputs, types.ProgramInput{BlockNumber: n})
			}
			fmt.Print(prover.DescribeTree(inputs))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "First block")
	cmd.Flags().Uint64Var(&to, "to", 8, "Last block")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("saya %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
