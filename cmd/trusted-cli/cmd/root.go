package cmd

import (
	"context"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"tee/trusted-ops/internal/codec"
	"tee/trusted-ops/internal/config"
	"tee/trusted-ops/internal/keystore"
	"tee/trusted-ops/internal/metrics"
	"tee/trusted-ops/internal/rpc"
	"tee/trusted-ops/internal/signature"
	"time"
)

var version = "dev"

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfg           config.Config
	client        *rpc.Client
	metricsServer *metrics.Server
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:                "trusted-cli",
		Short:              "Build, shield and submit trusted operations to an enclave worker",
		Version:            version,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		a.queryCmd("version", "Worker version", a.printVersion),
		a.queryCmd("health", "Worker health", a.printHealth),
		a.queryCmd("shard", "Default shard of the worker", a.printShard),
		a.queryCmd("mrenclave", "Enclave measurement", a.printMrenclave),
		a.queryCmd("shielding-key", "Enclave shielding public key", a.printShieldingKey),
		a.queryCmd("vault", "Shard vault account", a.printVault),
		a.queryCmd("signer-account", "Enclave signer account", a.printSignerAccount),
		a.queryCmd("methods", "RPC methods exposed by the worker", a.printMethods),
		a.nonceCmd(),
		a.linkIdentityCmd(),
		a.toggleIdentityCmd("deactivate-identity", "Deactivate a linked identity", false),
		a.toggleIdentityCmd("activate-identity", "Re-activate a linked identity", true),
		a.requestVCCmd(),
		a.setNetworksCmd(),
		a.setBalanceCmd(),
		a.transferCmd(),
		a.getCmd(),
		a.storeKeyCmd(),
	)
	return root
}

func setupLogging(logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL value (%s): %w", logLevel, err)
	}
	log.SetLevel(level)
	log.Debugf("LOG_LEVEL=%s", level)
	return nil
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	config.LoadDotEnv()
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}
	a.cfg = cfg

	var observers metrics.Observers
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		observers = append(observers, metrics.NewPrometheusObserver(registry))
		a.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry)
		a.metricsServer.Start()
	}
	if cfg.EMF {
		observers = append(observers, metrics.NewEMFObserver(cmd.ErrOrStderr()))
	}

	opts := []rpc.Option{
		rpc.WithTimeout(cfg.Timeout),
		rpc.WithDialer(rpc.NewDialer(cfg.Dialer())),
	}
	if len(observers) > 0 {
		opts = append(opts, rpc.WithObserver(observers))
	}
	a.client = rpc.NewClient(cfg.WorkerURL, opts...)
	log.Debugf("worker %s over %s", cfg.WorkerURL, cfg.Connection())
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.metricsServer.Shutdown(ctx)
}

// shard returns the configured shard or asks the worker for its default.
func (a *app) shard(ctx context.Context) (codec.ShardIdentifier, error) {
	if shard := a.cfg.ShardID(); shard != nil {
		return *shard, nil
	}
	return a.client.GetShard(ctx)
}

func (a *app) signer(ctx context.Context) (signature.Signer, error) {
	ksCfg := a.cfg.Keystore()
	if ksCfg.Source != keystore.SourceKMS {
		return keystore.LoadSigner(ctx, ksCfg, nil, nil)
	}
	kmsProvider, ddbProvider, err := keystore.NewAWSProviders(ctx, ksCfg)
	if err != nil {
		return nil, err
	}
	return keystore.LoadSigner(ctx, ksCfg, kmsProvider, ddbProvider)
}

func (a *app) submitter(ctx context.Context) (*rpc.Submitter, error) {
	signer, err := a.signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer: %w", err)
	}
	var opts []rpc.SubmitterOption
	if shard := a.cfg.ShardID(); shard != nil {
		opts = append(opts, rpc.WithShard(*shard))
	}
	if a.cfg.Hybrid {
		opts = append(opts, rpc.WithHybridEncryption())
	}
	return rpc.NewSubmitter(a.client, signer, opts...), nil
}
