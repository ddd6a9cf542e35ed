package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/contract"
)

var (
	abiVariant   string
	abiSelectors bool
	abiFields    []string
	tokenSecret  string
	tokenIssuer  string
	tokenTTL     time.Duration
	tokenAddress string
)

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Print the registry ABI, or its method selectors",
	RunE:  runABI,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a server running in jwt mode",
	RunE:  runToken,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health and readiness",
	RunE:  runHealth,
}

func init() {
	abiCmd.Flags().StringVar(&abiVariant, "variant", "", "Variant (default: full)")
	abiCmd.Flags().StringSliceVar(&abiFields, "fields", nil, "Custom field set (default: the --variant fields)")
	abiCmd.Flags().BoolVar(&abiSelectors, "selectors", false, "List 4-byte selectors and event topics")

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HS256 secret shared with the server (EDITION_JWT_SECRET)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "Token issuer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenAddress, "address", "", "Subject address (default: the signing address)")
	_ = cfg.BindPFlag("jwt_secret", tokenCmd.Flags().Lookup("secret"))
	_ = cfg.BindEnv("jwt_secret", "EDITION_JWT_SECRET")
}

func runABI(cmd *cobra.Command, args []string) error {
	variant, err := variantFromFlags(abiVariant, abiFields)
	if err != nil {
		return err
	}

	if !abiSelectors {
		data, err := contract.JSON(variant)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}

	parsed, err := contract.Parse(variant)
	if err != nil {
		return err
	}
	selectors := contract.Selectors(parsed)
	if structured() {
		return printOutput(selectors)
	}
	rows := make([][]string, 0, len(selectors))
	for _, s := range selectors {
		rows = append(rows, []string{s.Selector, s.Signature})
	}
	printTable([]string{"Selector", "Signature"}, rows)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := cfg.GetString("jwt_secret")
	if secret == "" {
		return fmt.Errorf("a secret is required (use --secret or EDITION_JWT_SECRET)")
	}
	addr, err := addressOrSigner(tokenAddress)
	if err != nil {
		return err
	}
	tok, err := authz.IssueToken([]byte(secret), addr, tokenIssuer, tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Health(cmd.Context()); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	ready := "ready"
	info, err := c.Info(cmd.Context())
	if err != nil {
		ready = "unknown: " + err.Error()
	}

	if structured() {
		return printOutput(map[string]any{
			"health":    "alive",
			"readiness": ready,
			"registry":  info,
		})
	}
	printTable([]string{"Check", "Status"}, [][]string{
		{"Liveness", "alive"},
		{"Readiness", ready},
		{"Deployed", fmt.Sprint(info.Deployed)},
		{"Minted", fmt.Sprint(info.Exists)},
	})
	return nil
}
