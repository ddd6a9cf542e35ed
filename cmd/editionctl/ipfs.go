package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenizart/edition/pkg/ipfs"
)

var (
	uploadLocalDir    string
	uploadOutputDir   string
	uploadName        string
	uploadDescription string
	uploadArtist      string
	fetchOut          string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <image>",
	Short: "Pin an image and its metadata document to IPFS",
	Long: `Pins a .png, .jpg or .jpeg image, writes metadata.json next to the
output directory and pins it too. Uses Pinata (PINATA_JWT) unless --local-dir
is given, in which case content is stored in a local CID-keyed directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [cid]",
	Short: "Fetch content from the IPFS gateway (defaults to IPFS_HASH_METADATA)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	tmpl := ipfs.DefaultMetadataTemplate()
	uploadCmd.Flags().StringVar(&uploadLocalDir, "local-dir", "", "Pin into this directory instead of Pinata")
	uploadCmd.Flags().StringVar(&uploadOutputDir, "out-dir", ".", "Directory receiving metadata.json")
	uploadCmd.Flags().StringVar(&uploadName, "name", tmpl.Name, "Token name in the metadata")
	uploadCmd.Flags().StringVar(&uploadDescription, "description", tmpl.Description, "Token description in the metadata")
	uploadCmd.Flags().StringVar(&uploadArtist, "artist", tmpl.Artist, "Artist in the metadata")
	uploadCmd.Flags().String("pinata-jwt", "", "Pinata JWT")
	uploadCmd.Flags().String("gateway", "", "IPFS gateway URL")
	_ = cfg.BindPFlag(keyPinataJWT, uploadCmd.Flags().Lookup("pinata-jwt"))
	_ = cfg.BindPFlag(keyGateway, uploadCmd.Flags().Lookup("gateway"))

	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Write content to this file instead of stdout")
}

func newPinner() (ipfs.Pinner, error) {
	if uploadLocalDir != "" {
		return ipfs.NewLocalPinner(uploadLocalDir)
	}
	return ipfs.NewPinataPinner(cfg.GetString(keyPinataJWT),
		ipfs.WithPinataRetry(cfg.GetDuration(keyRetry)))
}

func newGateway() *ipfs.Gateway {
	return ipfs.NewGateway(cfg.GetString(keyGateway), &http.Client{Timeout: time.Minute})
}

func runUpload(cmd *cobra.Command, args []string) error {
	pinner, err := newPinner()
	if err != nil {
		return err
	}
	u := &ipfs.Uploader{
		Pinner: pinner,
		Template: ipfs.MetadataTemplate{
			Name:        uploadName,
			Description: uploadDescription,
			Artist:      uploadArtist,
		},
		GatewayURL: cfg.GetString(keyGateway),
		OutputDir:  uploadOutputDir,
	}
	imageCID, metadataCID, err := u.Upload(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	gw := newGateway()
	result := map[string]string{
		"imageCID":    imageCID,
		"metadataCID": metadataCID,
		"imageURL":    gw.URL(imageCID),
		"metadataURL": gw.URL(metadataCID),
	}
	return printKV(result, [][]string{
		{"Image CID", imageCID},
		{"Metadata CID", metadataCID},
		{"Image URL", result["imageURL"]},
		{"Metadata URL", result["metadataURL"]},
	})
}

func runFetch(cmd *cobra.Command, args []string) error {
	hash := cfg.GetString(keyMetadata)
	if len(args) == 1 {
		hash = args[0]
	}
	if hash == "" {
		return fmt.Errorf("no CID given and IPFS_HASH_METADATA is not set")
	}
	data, err := newGateway().Fetch(cmd.Context(), hash)
	if err != nil {
		return err
	}
	if fetchOut != "" {
		return os.WriteFile(fetchOut, data, 0o644)
	}
	_, err = stdout.Write(append(data, '\n'))
	return err
}
