package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/tokenizart/edition/pkg/contract"
	"github.com/tokenizart/edition/pkg/edition"
	"github.com/tokenizart/edition/pkg/ipfs"
)

var (
	deployName      string
	deploySymbol    string
	deployRecipient string
	deployImage     string
	deployHash      string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the registry and mint the token from pinned metadata",
	Long: `Deploys the registry as the PRIVATE_KEY address, then mints the token
with offChainURI = ipfs://<IPFS_HASH_METADATA>. For variants that store data
on chain, the metadata document is fetched from the gateway and the image is
embedded as a base64 data URI (from --image, or the metadata's image CID).

Running deploy again after a partial failure resumes: an existing deployment
owned by the same key is reused.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployName, "name", "", "Collection name (default: server config)")
	deployCmd.Flags().StringVar(&deploySymbol, "symbol", "", "Collection symbol (default: server config)")
	deployCmd.Flags().StringVar(&deployRecipient, "recipient", "", "Token recipient (default: the deployer)")
	deployCmd.Flags().StringVar(&deployImage, "image", "", "Image file or data URI for the on-chain image")
	deployCmd.Flags().StringVar(&deployHash, "metadata-hash", "", "Metadata CID (default: IPFS_HASH_METADATA)")
}

// DeployResult is printed by deploy.
type DeployResult struct {
	ContractAddress string `json:"contractAddress"`
	Owner           string `json:"owner"`
	Recipient       string `json:"recipient"`
	TokenURI        string `json:"tokenURI"`
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key, err := requireKey()
	if err != nil {
		return err
	}
	deployer := contract.AddressOf(key)

	hash := deployHash
	if hash == "" {
		hash = cfg.GetString(keyMetadata)
	}
	if hash == "" {
		return fmt.Errorf("metadata hash is required (use --metadata-hash or IPFS_HASH_METADATA)")
	}
	if _, err := ipfs.ValidateCID(hash); err != nil {
		return err
	}

	recipient := deployer
	if deployRecipient != "" {
		if recipient, err = contract.ParseAddress(deployRecipient); err != nil {
			return err
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	info, err := c.Deploy(ctx, deployName, deploySymbol)
	switch {
	case errors.Is(err, edition.ErrAlreadyDeployed):
		if info, err = c.Info(ctx); err != nil {
			return err
		}
		if !strings.EqualFold(info.Owner, deployer.Hex()) {
			return fmt.Errorf("registry already deployed by %s", info.Owner)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Registry already deployed at %s, continuing\n", info.ContractAddress)
	case err != nil:
		return fmt.Errorf("deploy: %w", err)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "Registry deployed at %s\n", info.ContractAddress)
	}

	// The server may run a custom field set, so rebuild it from the fields
	// it reports rather than by name.
	variant, err := edition.NewVariant(info.Variant, info.Fields...)
	if err != nil {
		return err
	}
	values, err := buildMintValues(ctx, variant, newGateway(), hash, deployImage)
	if err != nil {
		return err
	}

	minted, err := c.Mint(ctx, recipient, values)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	result := DeployResult{
		ContractAddress: info.ContractAddress,
		Owner:           info.Owner,
		Recipient:       recipient.Hex(),
		TokenURI:        minted.TokenURI,
	}
	return printKV(result, [][]string{
		{"Contract", result.ContractAddress},
		{"Owner", result.Owner},
		{"Recipient", result.Recipient},
		{"Token URI", truncate(result.TokenURI, 80)},
	})
}

// buildMintValues assembles the mint payload for variant from the pinned
// metadata document.
func buildMintValues(ctx context.Context, variant edition.Variant, fetcher ipfs.Fetcher, hash, image string) (edition.FieldValues, error) {
	values := edition.FieldValues{}
	if variant.Has(edition.FieldOffChainURI) {
		values[edition.FieldOffChainURI] = ipfs.URI(hash)
	}
	if !variant.Has(edition.FieldOnChainMetadata) && !variant.Has(edition.FieldOnChainImage) {
		return values, nil
	}

	meta, err := fetchWithRetry(ctx, fetcher, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata %s: %w", hash, err)
	}
	if variant.Has(edition.FieldOnChainMetadata) {
		values[edition.FieldOnChainMetadata] = string(meta)
	}

	if variant.Has(edition.FieldOnChainImage) {
		switch {
		case image != "":
			img, err := imageValue(image)
			if err != nil {
				return nil, err
			}
			values[edition.FieldOnChainImage] = img
		default:
			var doc struct {
				Image string `json:"image"`
			}
			if err := json.Unmarshal(meta, &doc); err != nil || doc.Image == "" {
				return nil, fmt.Errorf("metadata %s has no image; pass --image", hash)
			}
			data, err := fetchWithRetry(ctx, fetcher, doc.Image)
			if err != nil {
				return nil, fmt.Errorf("fetch image %s: %w", doc.Image, err)
			}
			values[edition.FieldOnChainImage] = dataURI(data, "")
		}
	}
	return values, nil
}

// fetchWithRetry retries gateway failures; missing content is permanent.
func fetchWithRetry(ctx context.Context, fetcher ipfs.Fetcher, c string) ([]byte, error) {
	if _, err := ipfs.ValidateCID(c); err != nil {
		return nil, err
	}
	var data []byte
	op := func() error {
		var err error
		data, err = fetcher.Fetch(ctx, c)
		if errors.Is(err, ipfs.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	var bo backoff.BackOff = &backoff.StopBackOff{}
	if maxElapsed := cfg.GetDuration(keyRetry); maxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = maxElapsed
		bo = exp
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return data, nil
}
