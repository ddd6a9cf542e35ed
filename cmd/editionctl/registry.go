package main

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/tokenizart/edition/pkg/contract"
	"github.com/tokenizart/edition/pkg/edition"
)

var (
	mintFields     fieldFlags
	mintRecipient  string
	mintCalldata   bool
	mintVariant    string
	mintFieldSet   []string
	updateFields   fieldFlags
	transferFrom   string
	transferTo     string
	transferID     uint64
	eventsPageSize int
	eventsToken    string
	eventsAll      bool
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint the token (owner only)",
	RunE:  runMint,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the given metadata fields in one operation (owner only)",
	RunE:  runUpdate,
}

var setCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a single metadata field (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the registry state",
	RunE:  runShow,
}

var getCmd = &cobra.Command{
	Use:   "get <field>",
	Short: "Read a metadata field",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var existsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Report whether the token has been minted",
	RunE:  runExists,
}

var uriCmd = &cobra.Command{
	Use:   "uri [token-id]",
	Short: "Print the token URI",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runURI,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata [token-id]",
	Short: "Print the rendered token metadata",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMetadata,
}

var ownerOfCmd = &cobra.Command{
	Use:   "owner-of [token-id]",
	Short: "Print the token holder",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOwnerOf,
}

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print how many tokens an address holds",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer the token (holder only)",
	RunE:  runTransfer,
}

var transferOwnershipCmd = &cobra.Command{
	Use:   "transfer-ownership <address>",
	Short: "Hand the registry to a new owner (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransferOwnership,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the registry event log",
	RunE:  runEvents,
}

func init() {
	mintFields.register(mintCmd)
	mintCmd.Flags().StringVar(&mintRecipient, "recipient", "", "Token recipient (default: the signing address)")
	mintCmd.Flags().BoolVar(&mintCalldata, "print-calldata", false, "Print the ABI-encoded mint call instead of sending it")
	mintCmd.Flags().StringVar(&mintVariant, "variant", "", "Variant used to encode --print-calldata (default: full)")
	mintCmd.Flags().StringSliceVar(&mintFieldSet, "fields", nil, "Custom field set used to encode --print-calldata")

	updateFields.register(updateCmd)

	transferCmd.Flags().StringVar(&transferFrom, "from", "", "Current holder (default: the signing address)")
	transferCmd.Flags().StringVar(&transferTo, "to", "", "New holder")
	transferCmd.Flags().Uint64Var(&transferID, "id", edition.TokenID, "Token ID")
	_ = transferCmd.MarkFlagRequired("to")

	eventsCmd.Flags().IntVar(&eventsPageSize, "page-size", 20, "Events per page")
	eventsCmd.Flags().StringVar(&eventsToken, "page-token", "", "Resume after this page token")
	eventsCmd.Flags().BoolVar(&eventsAll, "all", false, "Follow page tokens to the end of the log")
}

func tokenIDArg(args []string) (uint64, error) {
	if len(args) == 0 {
		return edition.TokenID, nil
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", args[0])
	}
	return id, nil
}

// addressOrSigner parses s, defaulting to the signing address.
func addressOrSigner(s string) (common.Address, error) {
	if s != "" {
		return contract.ParseAddress(s)
	}
	key, err := requireKey()
	if err != nil {
		return common.Address{}, err
	}
	return contract.AddressOf(key), nil
}

func runMint(cmd *cobra.Command, args []string) error {
	values, err := mintFields.values()
	if err != nil {
		return err
	}
	recipient, err := addressOrSigner(mintRecipient)
	if err != nil {
		return err
	}

	if mintCalldata {
		variant, err := variantFromFlags(mintVariant, mintFieldSet)
		if err != nil {
			return err
		}
		data, err := contract.PackMint(variant, recipient, values)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hexutil.Encode(data))
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	out, err := c.Mint(cmd.Context(), recipient, values)
	if err != nil {
		return err
	}
	return printKV(out, [][]string{
		{"Token ID", strconv.FormatUint(out.TokenID, 10)},
		{"Recipient", recipient.Hex()},
		{"Token URI", truncate(out.TokenURI, 80)},
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	values, err := updateFields.values()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("nothing to update: pass --uri, --metadata or --image")
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	out, err := c.UpdateMetadata(cmd.Context(), values)
	if err != nil {
		return err
	}
	return printKV(out, [][]string{
		{"Token ID", strconv.FormatUint(out.TokenID, 10)},
		{"Token URI", truncate(out.TokenURI, 80)},
	})
}

func runSet(cmd *cobra.Command, args []string) error {
	f, err := edition.ParseField(args[0])
	if err != nil {
		return err
	}
	value := args[1]
	if f == edition.FieldOnChainImage {
		value, err = imageValue(value)
	} else {
		value, err = readValue(value)
	}
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.UpdateField(cmd.Context(), f, value); err != nil {
		return err
	}
	return printKV(edition.FieldResponse{Field: f, Value: value}, [][]string{
		{string(f), truncate(value, 80)},
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	info, err := c.Info(cmd.Context())
	if err != nil {
		return err
	}

	fields := make([]string, len(info.Fields))
	for i, f := range info.Fields {
		fields[i] = string(f)
	}
	return printKV(info, [][]string{
		{"Contract", info.ContractAddress},
		{"Name", info.Name},
		{"Symbol", info.Symbol},
		{"Owner", info.Owner},
		{"Variant", info.Variant},
		{"Fields", fmt.Sprint(fields)},
		{"Deployed", strconv.FormatBool(info.Deployed)},
		{"Minted", strconv.FormatBool(info.Exists)},
		{"Holder", info.Holder},
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	f, err := edition.ParseField(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	value, err := c.Field(cmd.Context(), f)
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(edition.FieldResponse{Field: f, Value: value})
	}
	_, err = fmt.Fprintln(stdout, value)
	return err
}

func runExists(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	exists, err := c.Exists(cmd.Context())
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(edition.ExistsResponse{Exists: exists})
	}
	_, err = fmt.Fprintln(stdout, exists)
	return err
}

func runURI(cmd *cobra.Command, args []string) error {
	id, err := tokenIDArg(args)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	uri, err := c.TokenURI(cmd.Context(), id)
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(edition.TokenURIResponse{TokenID: id, TokenURI: uri})
	}
	_, err = fmt.Fprintln(stdout, uri)
	return err
}

func runMetadata(cmd *cobra.Command, args []string) error {
	id, err := tokenIDArg(args)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	doc, err := c.TokenMetadata(cmd.Context(), id)
	if err != nil {
		return err
	}
	if outputFmt == "yaml" {
		return printYAML(doc)
	}
	return printJSON(doc)
}

func runOwnerOf(cmd *cobra.Command, args []string) error {
	id, err := tokenIDArg(args)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	holder, err := c.OwnerOf(cmd.Context(), id)
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(edition.OwnerResponse{TokenID: id, Owner: holder.Hex()})
	}
	_, err = fmt.Fprintln(stdout, holder.Hex())
	return err
}

func runBalance(cmd *cobra.Command, args []string) error {
	addr, err := contract.ParseAddress(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	balance, err := c.BalanceOf(cmd.Context(), addr)
	if err != nil {
		return err
	}
	if structured() {
		return printOutput(edition.BalanceResponse{Address: addr.Hex(), Balance: balance})
	}
	_, err = fmt.Fprintln(stdout, balance)
	return err
}

func runTransfer(cmd *cobra.Command, args []string) error {
	from, err := addressOrSigner(transferFrom)
	if err != nil {
		return err
	}
	to, err := contract.ParseAddress(transferTo)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Transfer(cmd.Context(), transferID, from, to); err != nil {
		return err
	}
	return printKV(edition.OwnerResponse{TokenID: transferID, Owner: to.Hex()}, [][]string{
		{"Token ID", strconv.FormatUint(transferID, 10)},
		{"From", from.Hex()},
		{"To", to.Hex()},
	})
}

func runTransferOwnership(cmd *cobra.Command, args []string) error {
	newOwner, err := contract.ParseAddress(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	info, err := c.TransferOwnership(cmd.Context(), newOwner)
	if err != nil {
		return err
	}
	return printKV(info, [][]string{
		{"Contract", info.ContractAddress},
		{"Owner", info.Owner},
	})
}

func runEvents(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var events []edition.Event
	token := eventsToken
	next := ""
	for {
		page, err := c.Events(cmd.Context(), eventsPageSize, token)
		if err != nil {
			return err
		}
		events = append(events, page.Events...)
		next = page.NextPageToken
		if !eventsAll || next == "" {
			break
		}
		token = next
	}

	if structured() {
		return printOutput(edition.EventPage{Events: events, NextPageToken: next})
	}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			strconv.FormatUint(ev.Seq, 10),
			string(ev.Kind),
			ev.Actor,
			ev.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	printTable([]string{"Seq", "Kind", "Actor", "Time"}, rows)
	if next != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "More events: --page-token %s\n", next)
	}
	return nil
}
