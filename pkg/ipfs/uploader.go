package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// MetadataTemplate holds the static parts of the token metadata.
type MetadataTemplate struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Artist      string `json:"artist" yaml:"artist"`
}

// DefaultMetadataTemplate returns the template used when none is configured.
func DefaultMetadataTemplate() MetadataTemplate {
	return MetadataTemplate{
		Name:        "Edition",
		Description: "A single-edition token.",
		Artist:      "Unknown",
	}
}

// Metadata is the JSON document pinned next to the image.
type Metadata struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Image        string `json:"image"`
	ExternalLink string `json:"external_link"`
	Artist       string `json:"artist"`
}

// Uploader pins an image and its metadata document.
type Uploader struct {
	Pinner   Pinner
	Template MetadataTemplate
	// GatewayURL is used for the external_link of the metadata.
	GatewayURL string
	// OutputDir receives metadata.json. Defaults to the working directory.
	OutputDir string
	Logger    *slog.Logger
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// BuildMetadata fills the template for an image CID.
func (u *Uploader) BuildMetadata(imageCID string) Metadata {
	return Metadata{
		Name:         u.Template.Name,
		Description:  u.Template.Description,
		Image:        URI(imageCID),
		ExternalLink: NormalizeGatewayURL(u.GatewayURL) + "/ipfs/" + imageCID,
		Artist:       u.Template.Artist,
	}
}

// Upload pins the image at imagePath, writes metadata.json and pins it.
func (u *Uploader) Upload(ctx context.Context, imagePath string) (imageCID, metadataCID string, err error) {
	if u.Pinner == nil {
		return "", "", fmt.Errorf("no pinner configured")
	}
	logger := u.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ext := strings.ToLower(filepath.Ext(imagePath))
	if !imageExtensions[ext] {
		return "", "", fmt.Errorf("unsupported image type %q: expected .png, .jpg or .jpeg", ext)
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", "", fmt.Errorf("read image: %w", err)
	}

	imageCID, err = u.Pinner.PinFile(ctx, filepath.Base(imagePath), data)
	if err != nil {
		return "", "", err
	}
	logger.Info("image uploaded", "path", imagePath, "cid", imageCID)

	meta := u.BuildMetadata(imageCID)
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode metadata: %w", err)
	}
	metaPath := filepath.Join(u.OutputDir, "metadata.json")
	if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
		return "", "", fmt.Errorf("write metadata: %w", err)
	}

	metadataCID, err = u.Pinner.PinJSON(ctx, "metadata.json", meta)
	if err != nil {
		return "", "", err
	}
	logger.Info("metadata uploaded", "path", metaPath, "cid", metadataCID)
	return imageCID, metadataCID, nil
}
