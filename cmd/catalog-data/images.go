package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tcg_catalog/catalog"
)

var (
	imagesOut         string
	imagesConcurrency int
)

var imagesCmd = &cobra.Command{
	Use:   "images <setId>",
	Short: "Download the small and large images of a set's cards",
	Args:  cobra.ExactArgs(1),
	RunE:  runImages,
}

func init() {
	imagesCmd.Flags().StringVarP(&imagesOut, "out", "o", "static/images", "output directory (small/ and large/ are created inside)")
	imagesCmd.Flags().IntVar(&imagesConcurrency, "concurrency", 5, "parallel downloads")
}

func runImages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	d := &imageDownloader{
		store:       catalog.New(cfg.DataPath, logger),
		http:        client,
		outDir:      imagesOut,
		concurrency: imagesConcurrency,
	}
	stats, err := d.downloadSet(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	logger.Info().
		Int64("downloaded", stats.Downloaded.Load()).
		Int64("skipped", stats.Skipped.Load()).
		Int64("failed", stats.Failed.Load()).
		Msg("Done")
	return nil
}

// imageStats counts cards by download outcome.
type imageStats struct {
	Downloaded atomic.Int64
	Skipped    atomic.Int64
	Failed     atomic.Int64
}

type imageDownloader struct {
	store       *catalog.Store
	http        *retryablehttp.Client
	outDir      string
	concurrency int
}

type imageOutcome int

const (
	imageFailed imageOutcome = iota
	imageSkipped
	imageDownloaded
)

// downloadSet fetches the images of every card listed in the set file.
// A card counts as downloaded if either image was fetched, and as skipped
// when both already exist.
func (d *imageDownloader) downloadSet(ctx context.Context, setID string) (*imageStats, error) {
	set, err := d.store.SetDetail(setID)
	if err != nil {
		return nil, err
	}
	if len(set.Cards) == 0 {
		return nil, fmt.Errorf("no cards found in set %s", setID)
	}

	for _, size := range []string{"small", "large"} {
		if err := os.MkdirAll(filepath.Join(d.outDir, size), 0755); err != nil {
			return nil, err
		}
	}

	logger.Info().Str("set", setID).Int("cards", len(set.Cards)).Msg("Downloading images")

	stats := &imageStats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.concurrency, 1))

	for _, cardID := range set.Cards {
		g.Go(func() error {
			small, large := d.downloadCard(ctx, cardID)
			switch {
			case small == imageDownloaded || large == imageDownloaded:
				stats.Downloaded.Add(1)
			case small == imageSkipped && large == imageSkipped:
				stats.Skipped.Add(1)
			default:
				stats.Failed.Add(1)
			}
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (d *imageDownloader) downloadCard(ctx context.Context, cardID string) (imageOutcome, imageOutcome) {
	raw, err := d.store.Card(cardID)
	if err != nil {
		logger.Warn().Err(err).Str("card_id", cardID).Msg("Card file not readable")
		return imageFailed, imageFailed
	}
	var card catalog.Card
	if err := json.Unmarshal(raw, &card); err != nil {
		logger.Warn().Err(err).Str("card_id", cardID).Msg("Card file not decodable")
		return imageFailed, imageFailed
	}

	small := d.downloadImage(ctx, card.Images.Small, filepath.Join(d.outDir, "small", cardID+".png"))
	large := d.downloadImage(ctx, card.Images.Large, filepath.Join(d.outDir, "large", cardID+".png"))
	return small, large
}

func (d *imageDownloader) downloadImage(ctx context.Context, url, dest string) imageOutcome {
	if url == "" {
		return imageFailed
	}
	if fileExists(dest) {
		return imageSkipped
	}
	if err := d.fetch(ctx, url, dest); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("Failed to download image")
		return imageFailed
	}
	return imageDownloaded
}

func (d *imageDownloader) fetch(ctx context.Context, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
