package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenizart/edition/pkg/client"
	"github.com/tokenizart/edition/pkg/contract"
)

// Configuration keys. Each can be set by flag, environment variable or the
// .env file, in that order of precedence.
const (
	keyServer     = "rpc_url"
	keyPrivateKey = "private_key"
	keyToken      = "token"
	keyOutput     = "output"
	keyPinataJWT  = "pinata_jwt"
	keyGateway    = "gateway_url"
	keyMetadata   = "ipfs_hash_metadata"
	keyRetry      = "retry"
)

var (
	cfg       = viper.New()
	envFile   string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "editionctl",
	Short: "CLI for the single-edition token registry",
	Long: `editionctl uploads artwork to IPFS, deploys and mints the edition, and
inspects or administers the registry through the edition server API.

Settings are read from flags, then environment variables, then a .env file:
  RPC_URL (or INFURA_ENDPOINT)  edition server URL
  PRIVATE_KEY                   hex secp256k1 key used to sign requests
  PINATA_JWT, GATEWAY_URL       IPFS pinning and gateway
  IPFS_HASH_METADATA            metadata hash used by deploy`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		outputFmt = cfg.GetString(keyOutput)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	flags.String("server", "http://localhost:8080", "Edition server URL")
	flags.String("private-key", "", "Hex private key used to sign requests")
	flags.String("token", "", "Bearer token (when the server runs in jwt mode)")
	flags.StringP("output", "o", "table", "Output format: table, json, yaml")
	flags.Duration("retry", 30*time.Second, "How long to retry transient failures (0 disables)")

	_ = cfg.BindPFlag(keyServer, flags.Lookup("server"))
	_ = cfg.BindPFlag(keyPrivateKey, flags.Lookup("private-key"))
	_ = cfg.BindPFlag(keyToken, flags.Lookup("token"))
	_ = cfg.BindPFlag(keyOutput, flags.Lookup("output"))
	_ = cfg.BindPFlag(keyRetry, flags.Lookup("retry"))

	_ = cfg.BindEnv(keyServer, "RPC_URL", "INFURA_ENDPOINT", "EDITION_SERVER")
	_ = cfg.BindEnv(keyPrivateKey, "PRIVATE_KEY")
	_ = cfg.BindEnv(keyToken, "EDITION_TOKEN")
	_ = cfg.BindEnv(keyPinataJWT, "PINATA_JWT")
	_ = cfg.BindEnv(keyGateway, "GATEWAY_URL")
	_ = cfg.BindEnv(keyMetadata, "IPFS_HASH_METADATA")

	rootCmd.AddCommand(uploadCmd, fetchCmd)
	rootCmd.AddCommand(deployCmd, mintCmd, updateCmd, setCmd)
	rootCmd.AddCommand(showCmd, getCmd, existsCmd, uriCmd, metadataCmd, ownerOfCmd, balanceCmd)
	rootCmd.AddCommand(transferCmd, transferOwnershipCmd, eventsCmd)
	rootCmd.AddCommand(abiCmd, tokenCmd, healthCmd)
}

// loadConfig reads the .env file when present.
func loadConfig() error {
	if envFile == "" {
		return nil
	}
	cfg.SetConfigFile(envFile)
	cfg.SetConfigType("env")
	if err := cfg.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read %s: %w", envFile, err)
	}
	// INFURA_ENDPOINT is accepted as an alias of RPC_URL in the file too.
	if !cfg.InConfig(keyServer) && cfg.InConfig("infura_endpoint") {
		cfg.SetDefault(keyServer, cfg.GetString("infura_endpoint"))
	}
	return nil
}

func serverURL() string {
	return strings.TrimRight(cfg.GetString(keyServer), "/")
}

// signingKey returns the configured key, or nil when none is set.
func signingKey() (*ecdsa.PrivateKey, error) {
	raw := cfg.GetString(keyPrivateKey)
	if raw == "" {
		return nil, nil
	}
	return contract.LoadKey(raw)
}

func requireKey() (*ecdsa.PrivateKey, error) {
	key, err := signingKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("a private key is required (use --private-key or PRIVATE_KEY)")
	}
	return key, nil
}

func newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithRetry(cfg.GetDuration(keyRetry)),
		client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
	}
	key, err := signingKey()
	if err != nil {
		return nil, err
	}
	if key != nil {
		opts = append(opts, client.WithPrivateKey(key))
	}
	if tok := cfg.GetString(keyToken); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL(), opts...), nil
}
