package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/edition"
	"github.com/tokenizart/edition/pkg/ipfs"
	"github.com/tokenizart/edition/pkg/server"
)

// Hardhat development account #0.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), dataURI(pngBytes, ".PNG"))
	assert.True(t, strings.HasPrefix(dataURI([]byte("x"), ".jpeg"), "data:image/jpeg;base64,"))
	assert.True(t, strings.HasPrefix(dataURI(pngBytes, ""), "data:image/png;base64,"), "sniffed from content")
}

func TestReadValueAndImageValue(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte("{\"name\":\"x\"}\n"), 0o644))

	v, err := readValue("@" + metaPath)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, v)

	v, err = readValue("literal")
	require.NoError(t, err)
	assert.Equal(t, "literal", v)

	_, err = readValue("@" + filepath.Join(dir, "missing"))
	assert.Error(t, err)

	v, err = imageValue("data:image/png;base64,AA==")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AA==", v)

	imgPath := filepath.Join(dir, "art.png")
	require.NoError(t, os.WriteFile(imgPath, pngBytes, 0o644))
	v, err = imageValue(imgPath)
	require.NoError(t, err)
	assert.Equal(t, dataURI(pngBytes, ".png"), v)
}

func TestFieldFlagsValues(t *testing.T) {
	f := fieldFlags{uri: "ipfs://Qm"}
	values, err := f.values()
	require.NoError(t, err)
	assert.Equal(t, edition.FieldValues{edition.FieldOffChainURI: "ipfs://Qm"}, values)
}

// pinArtwork pins an image and its metadata into a local store.
func pinArtwork(t *testing.T) (*ipfs.LocalPinner, string) {
	t.Helper()
	ctx := context.Background()
	pinner, err := ipfs.NewLocalPinner(t.TempDir())
	require.NoError(t, err)
	imageCID, err := pinner.PinFile(ctx, "art.png", pngBytes)
	require.NoError(t, err)
	u := &ipfs.Uploader{Pinner: pinner, Template: ipfs.DefaultMetadataTemplate(), OutputDir: t.TempDir()}
	metaCID, err := pinner.PinJSON(ctx, "metadata.json", u.BuildMetadata(imageCID))
	require.NoError(t, err)
	return pinner, metaCID
}

func TestBuildMintValues(t *testing.T) {
	pinner, metaCID := pinArtwork(t)

	values, err := buildMintValues(context.Background(), edition.VariantFull, pinner, metaCID, "")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://"+metaCID, values[edition.FieldOffChainURI])
	assert.Contains(t, values[edition.FieldOnChainMetadata], `"image":"ipfs://`)
	assert.Equal(t, dataURI(pngBytes, ""), values[edition.FieldOnChainImage])

	values, err = buildMintValues(context.Background(), edition.VariantMetadata, pinner, metaCID, "")
	require.NoError(t, err)
	assert.NotContains(t, values, edition.FieldOffChainURI)
	assert.NotContains(t, values, edition.FieldOnChainImage)

	missing, err := ipfs.ComputeCID([]byte("nothing pinned"))
	require.NoError(t, err)
	_, err = buildMintValues(context.Background(), edition.VariantFull, pinner, missing, "")
	assert.ErrorIs(t, err, ipfs.ErrNotFound)
}

func newTestServer(t *testing.T, variant edition.Variant) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store := edition.NewStore(db)
	require.NoError(t, store.AutoMigrate())
	reg, err := edition.Open(context.Background(), store, variant)
	require.NoError(t, err)

	srv := httptest.NewServer(server.New(reg, db, nil,
		server.WithAuthenticator(authz.SignatureAuthenticator{}),
	).Routes())
	t.Cleanup(srv.Close)
	return srv
}

// run executes editionctl with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })

	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// newTestGateway serves the content of pinner over the gateway protocol.
func newTestGateway(t *testing.T, pinner *ipfs.LocalPinner) *httptest.Server {
	t.Helper()
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := pinner.Fetch(r.Context(), strings.TrimPrefix(r.URL.Path, "/ipfs/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(gateway.Close)
	return gateway
}

func TestDeployAndInspect(t *testing.T) {
	srv := newTestServer(t, edition.VariantFull)
	pinner, metaCID := pinArtwork(t)
	gateway := newTestGateway(t, pinner)

	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	deployer := crypto.PubkeyToAddress(key.PublicKey)

	t.Setenv("RPC_URL", srv.URL)
	t.Setenv("PRIVATE_KEY", "0x"+testKeyHex)
	t.Setenv("GATEWAY_URL", gateway.URL)
	t.Setenv("IPFS_HASH_METADATA", metaCID)

	out, err := run(t, "deploy", "--name", "Girl42", "--symbol", "G42", "-o", "json", "--retry", "0")
	require.NoError(t, err)
	var result DeployResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, deployer.Hex(), result.Owner)
	assert.Equal(t, deployer.Hex(), result.Recipient)
	assert.True(t, strings.HasPrefix(result.TokenURI, edition.TokenURIPrefix))

	out, err = run(t, "exists", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, "get", "offChainURI", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, "ipfs://"+metaCID+"\n", out)

	out, err = run(t, "uri", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, result.TokenURI+"\n", out)

	out, err = run(t, "owner-of", "-o", "table")
	require.NoError(t, err)
	assert.Equal(t, deployer.Hex()+"\n", out)

	_, err = run(t, "deploy", "-o", "json", "--retry", "0")
	require.Error(t, err, "second mint is rejected")
	assert.ErrorIs(t, err, edition.ErrAlreadyMinted)

	out, err = run(t, "events", "-o", "json", "--all", "--page-size", "1")
	require.NoError(t, err)
	var page edition.EventPage
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Events, 2)
	assert.Equal(t, edition.EventDeployed, page.Events[0].Kind)
	assert.Equal(t, edition.EventMinted, page.Events[1].Kind)
}

func TestDeployCustomVariant(t *testing.T) {
	variant, err := edition.NewVariant("image-meta", edition.FieldOnChainImage, edition.FieldOnChainMetadata)
	require.NoError(t, err)
	srv := newTestServer(t, variant)
	pinner, metaCID := pinArtwork(t)
	gateway := newTestGateway(t, pinner)

	t.Setenv("RPC_URL", srv.URL)
	t.Setenv("PRIVATE_KEY", testKeyHex)
	t.Setenv("GATEWAY_URL", gateway.URL)
	t.Setenv("IPFS_HASH_METADATA", metaCID)

	out, err := run(t, "deploy", "-o", "json", "--retry", "0")
	require.NoError(t, err)
	var result DeployResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	values, err := edition.ParseTokenURI(result.TokenURI)
	require.NoError(t, err)
	assert.NotContains(t, values, edition.FieldOffChainURI)
	assert.Equal(t, dataURI(pngBytes, ""), values[edition.FieldOnChainImage])
	assert.Contains(t, values[edition.FieldOnChainMetadata], `"image":"ipfs://`)
}

func TestVariantFromFlags(t *testing.T) {
	v, err := variantFromFlags("", nil)
	require.NoError(t, err)
	assert.Equal(t, edition.VariantFull.Fields(), v.Fields())

	v, err = variantFromFlags("image-meta", []string{"onchainimage", " onChainMetadata"})
	require.NoError(t, err)
	assert.Equal(t, "image-meta", v.Name())
	assert.Equal(t, []edition.Field{edition.FieldOnChainMetadata, edition.FieldOnChainImage}, v.Fields())

	_, err = variantFromFlags("image-meta", nil)
	assert.Error(t, err, "custom names need a field list")
}

func TestMintPrintCalldata(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testKeyHex)
	out, err := run(t, "mint", "--print-calldata", "--variant", "metadata", "--metadata", "{}")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "0x"))
	assert.Greater(t, len(strings.TrimSpace(out)), 10)
}

func TestABISelectors(t *testing.T) {
	out, err := run(t, "abi", "--selectors", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "tokenURI(uint256)")
	assert.Contains(t, out, "SELECTOR")
}
