package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/tee-secret-management/api/handlers"
	"github.com/ruteri/tee-secret-management/api/servers"
	"github.com/ruteri/tee-secret-management/auth"
	"github.com/ruteri/tee-secret-management/chain"
	"github.com/ruteri/tee-secret-management/challenge"
	"github.com/ruteri/tee-secret-management/cmd/flags"
	"github.com/ruteri/tee-secret-management/cryptoutils"
	"github.com/ruteri/tee-secret-management/dispatch"
	"github.com/ruteri/tee-secret-management/interfaces"
	"github.com/ruteri/tee-secret-management/keystore"
	"github.com/ruteri/tee-secret-management/kms"
	"github.com/ruteri/tee-secret-management/session"
	"github.com/ruteri/tee-secret-management/store"
	"github.com/ruteri/tee-secret-management/vault"
	"github.com/urfave/cli/v2"
)

func env(name string) []string {
	return []string{"SMS_" + name}
}

var serverFlags = []cli.Flag{
	flags.RpcAddrFlag,
	flags.HubAddressFlag,
	flags.RpcTimeoutFlag,
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:13300",
		Usage:   "address to listen on for API",
		EnvVars: env("LISTEN_ADDR"),
	},
	&cli.StringFlag{
		Name:    "db-path",
		Value:   "sms.db",
		Usage:   "path of the SQLite database",
		EnvVars: env("DB_PATH"),
	},
	&cli.StringFlag{
		Name:    "key-location",
		Value:   "file://sms-storage.key",
		Usage:   "storage key location: file:///path, s3://bucket/key?region=, vault://host:port/mount/path",
		EnvVars: env("KEY_LOCATION"),
	},
	&cli.StringFlag{
		Name:     "tee-framework",
		Required: true,
		Usage:    "TEE framework sessions are provisioned for: scone, gramine or tdx",
		EnvVars:  env("TEE_FRAMEWORK"),
	},
	&cli.DurationFlag{
		Name:    "backend-timeout",
		Value:   dispatch.DefaultTimeout,
		Usage:   "timeout of a session backend call",
		EnvVars: env("BACKEND_TIMEOUT"),
	},

	&cli.StringFlag{Name: "scone-cas-url", Usage: "SCONE CAS url", EnvVars: env("SCONE_CAS_URL")},
	&cli.StringFlag{Name: "scone-client-cert", Usage: "client certificate presented to the CAS", EnvVars: env("SCONE_CLIENT_CERT")},
	&cli.StringFlag{Name: "scone-client-key", Usage: "key of the CAS client certificate", EnvVars: env("SCONE_CLIENT_KEY")},
	&cli.StringFlag{Name: "scone-ca-cert", Usage: "CA the CAS certificate must chain to", EnvVars: env("SCONE_CA_CERT")},
	&cli.StringSliceFlag{Name: "scone-tolerate", Usage: "attestation statuses tolerated by the CAS", EnvVars: env("SCONE_TOLERATE")},
	&cli.StringSliceFlag{Name: "scone-ignore-advisory", Usage: "security advisories ignored by the CAS", EnvVars: env("SCONE_IGNORE_ADVISORY")},

	&cli.StringFlag{Name: "gramine-sps-url", Usage: "Gramine SPS url", EnvVars: env("GRAMINE_SPS_URL")},
	&cli.StringFlag{Name: "gramine-sps-user", Usage: "Gramine SPS user", EnvVars: env("GRAMINE_SPS_USER")},
	&cli.StringFlag{Name: "gramine-sps-password", Usage: "Gramine SPS password", EnvVars: env("GRAMINE_SPS_PASSWORD")},

	&cli.StringFlag{Name: "tdx-storage-url", Usage: "TDX session storage url", EnvVars: env("TDX_STORAGE_URL")},
	&cli.StringFlag{Name: "tdx-attestation-url", Usage: "TDX attestation url handed to workers", EnvVars: env("TDX_ATTESTATION_URL")},

	&cli.StringFlag{Name: "pre-compute-image", Usage: "pre-compute stage image", EnvVars: env("PRE_COMPUTE_IMAGE")},
	&cli.StringFlag{Name: "pre-compute-fingerprint", Usage: "pre-compute stage fingerprint", EnvVars: env("PRE_COMPUTE_FINGERPRINT")},
	&cli.StringFlag{Name: "pre-compute-entrypoint", Usage: "pre-compute stage entrypoint", EnvVars: env("PRE_COMPUTE_ENTRYPOINT")},
	&cli.StringFlag{Name: "post-compute-image", Usage: "post-compute stage image", EnvVars: env("POST_COMPUTE_IMAGE")},
	&cli.StringFlag{Name: "post-compute-fingerprint", Usage: "post-compute stage fingerprint", EnvVars: env("POST_COMPUTE_FINGERPRINT")},
	&cli.StringFlag{Name: "post-compute-entrypoint", Usage: "post-compute stage entrypoint", EnvVars: env("POST_COMPUTE_ENTRYPOINT")},
}

func dispatchConfig(cCtx *cli.Context) (dispatch.Config, error) {
	framework, ok := interfaces.ParseTeeFramework(cCtx.String("tee-framework"))
	if !ok {
		return dispatch.Config{}, fmt.Errorf("invalid tee-framework %q", cCtx.String("tee-framework"))
	}
	return dispatch.Config{
		Framework: framework,
		Timeout:   cCtx.Duration("backend-timeout"),
		Scone: dispatch.SconeConfig{
			CasURL: cCtx.String("scone-cas-url"),
			TLS: cryptoutils.ClientTLSOpts{
				CertFile: cCtx.String("scone-client-cert"),
				KeyFile:  cCtx.String("scone-client-key"),
				CAFile:   cCtx.String("scone-ca-cert"),
			},
			Tolerate:         cCtx.StringSlice("scone-tolerate"),
			IgnoreAdvisories: cCtx.StringSlice("scone-ignore-advisory"),
		},
		Gramine: dispatch.GramineConfig{
			SpsURL:   cCtx.String("gramine-sps-url"),
			User:     cCtx.String("gramine-sps-user"),
			Password: cCtx.String("gramine-sps-password"),
		},
		TDX: dispatch.TDXConfig{
			StorageURL:     cCtx.String("tdx-storage-url"),
			AttestationURL: cCtx.String("tdx-attestation-url"),
		},
	}, nil
}

func sessionConfig(cCtx *cli.Context) session.Config {
	return session.Config{
		PreCompute: session.StageConfig{
			Image:       cCtx.String("pre-compute-image"),
			Fingerprint: cCtx.String("pre-compute-fingerprint"),
			Entrypoint:  cCtx.String("pre-compute-entrypoint"),
		},
		PostCompute: session.StageConfig{
			Image:       cCtx.String("post-compute-image"),
			Fingerprint: cCtx.String("post-compute-fingerprint"),
			Entrypoint:  cCtx.String("post-compute-entrypoint"),
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "sms-server",
		Usage: "Serve the TEE secret management API",
		Flags: append(serverFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			hubAddress := cCtx.String(flags.HubAddressFlag.Name)
			if !ethcommon.IsHexAddress(hubAddress) {
				return fmt.Errorf("invalid hub-address %q", hubAddress)
			}

			dispatchCfg, err := dispatchConfig(cCtx)
			if err != nil {
				return err
			}

			// Storage key: the process must not serve if the self-test fails
			keyBackend, err := keystore.BackendFor(cCtx.String("key-location"), logger)
			if err != nil {
				logger.Error("Invalid key location", "err", err)
				return err
			}
			provider, err := kms.LoadOrGenerate(ctx, keyBackend, logger)
			if err != nil {
				logger.Error("Storage key unusable", "err", err)
				return err
			}
			logger.Info("Storage key self-test passed", "backend", keyBackend.Name())

			db, err := store.New(cCtx.String("db-path"))
			if err != nil {
				logger.Error("Failed to open database", "err", err)
				return err
			}
			defer db.Close()

			logger.Info("Connecting to Ethereum RPC", "address", cCtx.String(flags.RpcAddrFlag.Name))
			oracle, ethClient, err := chain.Dial(ctx, cCtx.String(flags.RpcAddrFlag.Name), ethcommon.HexToAddress(hubAddress), logger)
			if err != nil {
				logger.Error("Failed to dial RPC", "err", err)
				return err
			}
			defer ethClient.Close()
			oracle.CallTimeout = cCtx.Duration(flags.RpcTimeoutFlag.Name)

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			factory := promauto.With(registry)

			shared := vault.NewShared(provider, vault.NewMetrics(&factory, servers.MetricsNamespace, "vault"), logger)
			web2 := vault.NewWeb2(db.Web2Secrets(), shared)
			web3 := vault.NewWeb3(db.Web3Secrets(), shared)
			compute := vault.NewCompute(db.ComputeSecrets(), shared)
			challenges := challenge.NewManager(db, provider, logger)
			gate := auth.NewGate(oracle, logger)

			dispatcher, err := dispatch.New(dispatchCfg, logger)
			if err != nil {
				logger.Error("Failed to configure session backend", "err", err)
				return err
			}
			logger.Info("Session backend configured", "framework", dispatcher.Framework())

			assembler := session.NewAssembler(sessionConfig(cCtx), oracle, web2, web3, compute, challenges, logger)
			sessions := session.NewService(gate, assembler, dispatcher, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			cfg.ReadinessCheck = db.Ping

			server, err := servers.New(cfg, registry,
				handlers.NewSecretsHandler(gate, web2, web3, compute, logger),
				handlers.NewTeeHandler(gate, challenges, sessions, logger),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

