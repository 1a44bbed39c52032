package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-secret-management/api/clients"
	"github.com/ruteri/tee-secret-management/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagPrivateKey = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded Ethereum private key signing the requests",
	EnvVars: []string{"SMS_CLIENT_PRIVATE_KEY"},
}

var flagValueFile = &cli.StringFlag{
	Name:  "value-file",
	Usage: "read the secret value from this file ('-' for stdin) instead of the argument",
}

const usage string = `Manage secrets stored in the secret management service.

Write and read commands sign their request with --private-key. The same key
must own the secret, or own the dataset or app contract for web3 and app
secrets.`

func main() {
	app := &cli.App{
		Name:  "sms-client",
		Usage: usage,
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagPrivateKey,
		},
		Commands: []*cli.Command{
			{
				Name:      "web2-add",
				Usage:     "add a user secret",
				ArgsUsage: "<name> [value]",
				Flags:     []cli.Flag{flagValueFile},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					value, err := secretValue(cCtx, 1)
					if err != nil {
						return err
					}
					return c.AddWeb2Secret(cCtx.Context, cCtx.Args().Get(0), value)
				},
			},
			{
				Name:      "web2-update",
				Usage:     "replace a user secret",
				ArgsUsage: "<name> [value]",
				Flags:     []cli.Flag{flagValueFile},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					value, err := secretValue(cCtx, 1)
					if err != nil {
						return err
					}
					return c.UpdateWeb2Secret(cCtx.Context, cCtx.Args().Get(0), value)
				},
			},
			{
				Name:      "web2-get",
				Usage:     "read back a user secret",
				ArgsUsage: "<name>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					value, err := c.GetWeb2Secret(cCtx.Context, cCtx.Args().Get(0))
					if err != nil {
						return err
					}
					fmt.Println(value)
					return nil
				},
			},
			{
				Name:      "web3-add",
				Usage:     "add the secret of an owned dataset",
				ArgsUsage: "<address> [value]",
				Flags:     []cli.Flag{flagValueFile},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					address, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					value, err := secretValue(cCtx, 1)
					if err != nil {
						return err
					}
					return c.AddWeb3Secret(cCtx.Context, address, value)
				},
			},
			{
				Name:      "app-secret-set",
				Usage:     "set the developer secret of an owned app",
				ArgsUsage: "<app address> [value]",
				Flags:     []cli.Flag{flagValueFile},
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					app, err := addressArg(cCtx, 0)
					if err != nil {
						return err
					}
					value, err := secretValue(cCtx, 1)
					if err != nil {
						return err
					}
					return c.SetComputeSecret(cCtx.Context, app, 1, value)
				},
			},
			{
				Name:      "challenge",
				Usage:     "print the enclave challenge address of a task",
				ArgsUsage: "<task id>",
				Action: func(cCtx *cli.Context) error {
					c, err := newClient(cCtx, false)
					if err != nil {
						return err
					}
					address, err := c.EnclaveChallenge(cCtx.Context, cCtx.Args().Get(0))
					if err != nil {
						return err
					}
					encoded, _ := json.Marshal(map[string]string{"address": address.Hex()})
					fmt.Println(string(encoded))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context, signing bool) (*clients.SecretsClient, error) {
	var key *ecdsa.PrivateKey
	if signing {
		raw := strings.TrimPrefix(cCtx.String(flagPrivateKey.Name), "0x")
		if raw == "" {
			return nil, errors.New("--private-key is required")
		}
		var err error
		key, err = crypto.HexToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("could not parse private key: %w", err)
		}
	}
	return clients.NewSecretsClient(cCtx.String(flags.ServerAddrFlag.Name), key), nil
}

func addressArg(cCtx *cli.Context, n int) (ethcommon.Address, error) {
	raw := cCtx.Args().Get(n)
	if !ethcommon.IsHexAddress(raw) {
		return ethcommon.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

func secretValue(cCtx *cli.Context, n int) (string, error) {
	path := cCtx.String(flagValueFile.Name)
	switch path {
	case "":
		if cCtx.Args().Len() <= n {
			return "", errors.New("missing secret value")
		}
		return cCtx.Args().Get(n), nil
	case "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	default:
		b, err := os.ReadFile(path)
		return string(b), err
	}
}
