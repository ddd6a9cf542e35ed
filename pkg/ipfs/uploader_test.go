package ipfs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCIDIsStable(t *testing.T) {
	a, err := ComputeCID([]byte("hello"))
	require.NoError(t, err)
	b, err := ComputeCID([]byte("hello"))
	require.NoError(t, err)
	c, err := ComputeCID([]byte("world"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "bafk", a[:4], "CIDv1 raw codec in base32")

	got, err := ValidateCID(URI(a))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestValidateCIDRejectsGarbage(t *testing.T) {
	_, err := ValidateCID("not-a-cid")
	assert.Error(t, err)
}

func TestLocalPinnerRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewLocalPinner(t.TempDir())
	require.NoError(t, err)

	c, err := p.PinFile(ctx, "a.bin", []byte("payload"))
	require.NoError(t, err)
	expected, err := ComputeCID([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, expected, c)

	again, err := p.PinFile(ctx, "b.bin", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, c, again)

	data, err := p.Fetch(ctx, "ipfs://"+c)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	missing, err := ComputeCID([]byte("other"))
	require.NoError(t, err)
	_, err = p.Fetch(ctx, missing)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGatewayFetch(t *testing.T) {
	c, err := ComputeCID([]byte("{}"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ipfs/"+c {
			w.Write([]byte("{}"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL+"/", nil)
	data, err := g.Fetch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	other, err := ComputeCID([]byte("x"))
	require.NoError(t, err)
	_, err = g.Fetch(context.Background(), other)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGatewayFetchTooLarge(t *testing.T) {
	c, err := ComputeCID([]byte("big"))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, nil)
	g.maxBytes = 9
	_, err = g.Fetch(context.Background(), c)
	assert.ErrorContains(t, err, "exceeds 9 bytes")

	g.maxBytes = 10
	data, err := g.Fetch(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestNormalizeGatewayURL(t *testing.T) {
	assert.Equal(t, DefaultGateway, NormalizeGatewayURL(""))
	assert.Equal(t, "https://example.mypinata.cloud", NormalizeGatewayURL("example.mypinata.cloud/"))
	assert.Equal(t, "http://localhost:8080", NormalizeGatewayURL("http://localhost:8080"))
}

func TestUploaderUpload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pinner, err := NewLocalPinner(filepath.Join(dir, "pins"))
	require.NoError(t, err)

	img := filepath.Join(dir, "art.PNG")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG fake"), 0o644))

	u := &Uploader{
		Pinner:     pinner,
		Template:   MetadataTemplate{Name: "Sunrise", Description: "One of one", Artist: "Ana"},
		GatewayURL: "gw.example.com",
		OutputDir:  dir,
	}
	imageCID, metaCID, err := u.Upload(ctx, img)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var local Metadata
	require.NoError(t, json.Unmarshal(raw, &local))
	assert.Equal(t, Metadata{
		Name:         "Sunrise",
		Description:  "One of one",
		Image:        "ipfs://" + imageCID,
		ExternalLink: "https://gw.example.com/ipfs/" + imageCID,
		Artist:       "Ana",
	}, local)

	pinned, err := pinner.Fetch(ctx, metaCID)
	require.NoError(t, err)
	var remote Metadata
	require.NoError(t, json.Unmarshal(pinned, &remote))
	assert.Equal(t, local, remote)
}

func TestUploaderRejectsUnsupportedImage(t *testing.T) {
	dir := t.TempDir()
	pinner, err := NewLocalPinner(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "art.gif")
	require.NoError(t, os.WriteFile(path, []byte("GIF89a"), 0o644))

	u := &Uploader{Pinner: pinner, Template: DefaultMetadataTemplate()}
	_, _, err = u.Upload(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image type")
}
