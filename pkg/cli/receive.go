package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/metrics"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/wire"
)

var (
	receiveListen  string
	receiveHTTP    string
	receiveVerbose bool
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Listen for streamed traffic records and print them",
	Long: `receive accepts tracer connections, reassembles length-prefixed
frames into records, and prints one JSON line per record. Tracers may
connect over plain TCP (--listen) or WebSocket at /ingest on the HTTP
listener (--http), which also serves Prometheus metrics at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		rx := newReceiver(log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ln, err := net.Listen("tcp", receiveListen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", receiveListen, err)
		}
		defer func() { _ = ln.Close() }()
		log.Info("receiver listening", "tcp", ln.Addr().String())

		go rx.acceptLoop(ctx, ln)

		if receiveHTTP != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", rx.registry.Handler())
			mux.HandleFunc("/ingest", rx.handleWebSocket)
			srv := &http.Server{Addr: receiveHTTP, Handler: mux}
			go func() {
				log.Info("http listening", "addr", receiveHTTP)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server failed", "error", err)
				}
			}()
			defer func() { _ = srv.Shutdown(context.Background()) }()
		}

		<-ctx.Done()
		log.Info("receiver shutting down")
		return nil
	},
}

// receiver decodes record frames from any number of concurrent tracer
// connections.
type receiver struct {
	log      *slog.Logger
	registry *metrics.Registry
	records  *metrics.Counter
	frames   *metrics.Counter
	conns    *metrics.Gauge
	active   atomic.Int64
}

func newReceiver(log *slog.Logger) *receiver {
	registry := metrics.NewRegistry()
	return &receiver{
		log:      log,
		registry: registry,
		records:  registry.NewCounter("trafficinspect_records_total", "Records received, by method and status.", "method", "status"),
		frames:   registry.NewCounter("trafficinspect_frames_total", "Frames received, by decode outcome.", "outcome"),
		conns:    registry.NewGauge("trafficinspect_connections", "Currently connected tracers."),
	}
}

func (rx *receiver) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go rx.serveTCP(ctx, conn)
	}
}

func (rx *receiver) serveTCP(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	connID := uuid.NewString()
	rx.connected(connID, conn.RemoteAddr().String())
	defer rx.disconnected(connID)

	var dec wire.Decoder
	buf := make([]byte, 32*1024)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, payload := range dec.Append(buf[:n]) {
				rx.handlePayload(connID, payload)
			}
		}
		if err != nil {
			return
		}
	}
}

func (rx *receiver) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.CloseNow() }()

	connID := uuid.NewString()
	rx.connected(connID, r.RemoteAddr)
	defer rx.disconnected(connID)

	// Each WebSocket message is a whole frame, but a tracer is allowed to
	// coalesce; run messages through the incremental decoder regardless.
	var dec wire.Decoder
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		for _, payload := range dec.Append(data) {
			rx.handlePayload(connID, payload)
		}
	}
}

func (rx *receiver) handlePayload(connID string, payload []byte) {
	rec, err := trace.DecodeRecord(payload)
	if err != nil {
		rx.frames.Inc("invalid")
		rx.log.Warn("undecodable frame", "conn", connID, "error", err)
		return
	}
	rx.frames.Inc("ok")
	rx.records.Inc(rec.Method, strconv.Itoa(rec.StatusCode))

	if receiveVerbose || rec.Final() {
		line, _ := json.Marshal(rec)
		fmt.Println(string(line))
	}
}

func (rx *receiver) connected(connID, remote string) {
	rx.conns.Set(rx.active.Add(1))
	rx.log.Info("tracer connected", "conn", connID, "remote", remote)
}

func (rx *receiver) disconnected(connID string) {
	rx.conns.Set(rx.active.Add(-1))
	rx.log.Info("tracer disconnected", "conn", connID)
}

func init() {
	receiveCmd.Flags().StringVar(&receiveListen, "listen", "127.0.0.1:9021", "TCP listen address for tracers")
	receiveCmd.Flags().StringVar(&receiveHTTP, "http", "", "HTTP listen address for /ingest and /metrics (disabled when empty)")
	receiveCmd.Flags().BoolVar(&receiveVerbose, "verbose", false, "Print partial records too, not only final ones")
	rootCmd.AddCommand(receiveCmd)
}
