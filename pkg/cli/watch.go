package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/config"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/delivery"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/filter"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/intercept"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/transport"
)

var (
	watchReceiver string
	watchFilter   string
	watchBodyCap  int
	watchQueueCap int
	watchTimeout  time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch URL [URL...]",
	Short: "Fetch URLs through the tracer and stream records to a receiver",
	Long: `watch performs HTTP GET requests through an instrumented client and
streams the reconstructed records to the configured receiver. It exists to
exercise and demonstrate the pipeline; applications normally embed the
library and wrap their own http.Client instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if watchReceiver != "" {
			cfg.Receiver = watchReceiver
		}
		if watchFilter != "" {
			cfg.Filter = watchFilter
		}
		if watchBodyCap > 0 {
			cfg.BodyCap = watchBodyCap
		}
		if watchQueueCap > 0 {
			cfg.QueueCapacity = watchQueueCap
		}
		if cfg.Receiver == "" {
			return errors.New("no receiver configured (use --receiver or the config file)")
		}

		log := newLogger(cfg)

		channel := delivery.NewChannel(cfg.QueueCapacity, trace.JSONEncoder{})
		channel.SetLogger(log)

		engine := trace.NewEngine(trace.NewAccumulator(cfg.BodyCap), channel)
		engine.SetLogger(log)

		if cfg.Filter != "" {
			hook, err := filter.New(cfg.Filter)
			if err != nil {
				return err
			}
			engine.SetHook(hook)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), watchTimeout)
		defer cancel()

		tr, err := dialReceiver(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connect to receiver: %w", err)
		}
		channel.Attach(tr)

		client := &http.Client{
			Transport: intercept.NewRoundTripper(nil, engine),
			Timeout:   watchTimeout,
		}

		for _, url := range args {
			fetch(ctx, client, url, log)
		}

		// Give the fire-and-forget sends a moment to land before the
		// transport goes away.
		channel.Flush()
		time.Sleep(200 * time.Millisecond)
		channel.Detach()

		stats := channel.Stats()
		fmt.Printf("records sent: %d  dropped: %d  frames delivered: %d  evicted: %d\n",
			engine.Sent(), engine.Dropped(), stats.SentFrames, stats.Evicted)
		return nil
	},
}

func dialReceiver(ctx context.Context, cfg *config.Config, log *slog.Logger) (delivery.Transport, error) {
	if cfg.WebSocketReceiver() {
		return transport.DialWebSocket(ctx, cfg.Receiver, log)
	}
	return transport.DialTCP(cfg.Receiver, 10*time.Second)
}

func fetch(ctx context.Context, client *http.Client, url string, log *slog.Logger) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Error("bad url", "url", url, "error", err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn("request failed", "url", url, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	n, _ := io.Copy(io.Discard, resp.Body)
	log.Info("fetched", "url", url, "status", resp.StatusCode, "bytes", n)
}

func init() {
	watchCmd.Flags().StringVar(&watchReceiver, "receiver", "", "Receiver endpoint (ws:// URL or host:port)")
	watchCmd.Flags().StringVar(&watchFilter, "filter", "", "Record filter expression")
	watchCmd.Flags().IntVar(&watchBodyCap, "body-cap", 0, "Max body bytes retained per request")
	watchCmd.Flags().IntVar(&watchQueueCap, "queue-capacity", 0, "Max frames buffered while disconnected")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 30*time.Second, "Overall timeout")
	rootCmd.AddCommand(watchCmd)
}
