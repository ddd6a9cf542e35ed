package main

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tokenizart/edition/pkg/edition"
)

// fieldFlags are the --uri/--metadata/--image flags shared by mint and
// update.
type fieldFlags struct {
	uri      string
	metadata string
	image    string
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uri, "uri", "", "Off-chain metadata URI (e.g. ipfs://<cid>)")
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "On-chain metadata, or @path to read it from a file")
	cmd.Flags().StringVar(&f.image, "image", "", "On-chain image as a data URI, or a path to an image file")
}

// values resolves the flags into field values, leaving unset fields out.
func (f *fieldFlags) values() (edition.FieldValues, error) {
	values := edition.FieldValues{}
	if f.uri != "" {
		values[edition.FieldOffChainURI] = f.uri
	}
	if f.metadata != "" {
		meta, err := readValue(f.metadata)
		if err != nil {
			return nil, err
		}
		values[edition.FieldOnChainMetadata] = meta
	}
	if f.image != "" {
		img, err := imageValue(f.image)
		if err != nil {
			return nil, err
		}
		values[edition.FieldOnChainImage] = img
	}
	return values, nil
}

// readValue returns s, or the contents of the file when s is @path.
func readValue(s string) (string, error) {
	path, ok := strings.CutPrefix(s, "@")
	if !ok {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// imageValue passes data URIs through and encodes image files as one.
func imageValue(s string) (string, error) {
	if strings.HasPrefix(s, "data:") {
		return s, nil
	}
	data, err := os.ReadFile(s)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return dataURI(data, filepath.Ext(s)), nil
}

// dataURI encodes data as a base64 data URI. The media type comes from
// the extension when known, else from content sniffing.
func dataURI(data []byte, ext string) string {
	mediaType := ""
	switch strings.ToLower(ext) {
	case ".png":
		mediaType = "image/png"
	case ".jpg", ".jpeg":
		mediaType = "image/jpeg"
	default:
		mediaType = http.DetectContentType(data)
		if i := strings.IndexByte(mediaType, ';'); i >= 0 {
			mediaType = mediaType[:i]
		}
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// variantFromFlags resolves --variant and --fields. A field list defines a
// custom variant named by --variant; otherwise the name selects a built-in.
func variantFromFlags(name string, fields []string) (edition.Variant, error) {
	if len(fields) == 0 {
		return edition.LookupVariant(name)
	}
	if name == "" {
		name = "custom"
	}
	set := make([]edition.Field, len(fields))
	for i, f := range fields {
		set[i] = edition.Field(strings.TrimSpace(f))
	}
	return edition.NewVariant(name, set...)
}
