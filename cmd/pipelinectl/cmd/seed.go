package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/seed"
	"github.com/spf13/cobra"
)

var (
	seedURL       string
	seedCount     int
	seedCartRatio float64
	seedValue     int64
	seedInterval  time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send fake Kiwify webhooks to a running gateway",
	Long: `Send fake Kiwify checkout webhooks to a running gateway.

Examples:
  # 100 webhooks, a quarter of them abandoned carts
  pipelinectl seed --count 100 --cart-ratio 0.25

  # Reproducible run against another host
  pipelinectl seed --url http://gateway:8080 --seed 7`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedURL, "url", "http://localhost:8080", "gateway base URL")
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of webhooks to send")
	seedCmd.Flags().Float64Var(&seedCartRatio, "cart-ratio", 0.2, "fraction of abandoned-cart webhooks")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 0, "random seed (0 picks one from the clock)")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between webhooks")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedValue == 0 {
		seedValue = time.Now().UnixNano()
	}
	gen := seed.NewGenerator(seedValue, seedCartRatio)
	endpoint := strings.TrimRight(seedURL, "/") + "/checkout/kiwify"
	client := &http.Client{Timeout: 10 * time.Second}

	var orders, carts, failed int
	for i := 0; i < seedCount; i++ {
		payload, isCart, err := gen.Next()
		if err != nil {
			return err
		}
		if err := post(cmd.Context(), client, endpoint, payload); err != nil {
			failed++
			logger.Warn("seed webhook failed", "error", err)
		} else if isCart {
			carts++
		} else {
			orders++
		}
		if seedInterval > 0 {
			time.Sleep(seedInterval)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %d orders, %d abandoned carts to %s (%d failed, seed %d)\n",
		orders, carts, endpoint, failed, seedValue)
	return nil
}

func post(ctx context.Context, client *http.Client, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
