package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/metrics"
	"github.com/dgnsrekt/batchtts/tts/pipeline"
)

var (
	submitRate  float64
	metricsAddr string

	streamCmd = &cobra.Command{
		Use:     "stream MANIFEST",
		Short:   "Feed a chunk manifest through the streaming pipeline",
		Long:    paragraph(fmt.Sprintf("\n%s chunks into the streaming pipeline one at a time, the way a live producer would, and collect the results in submission order.", keyword("Stream"))),
		Example: paragraph("batchtts stream chapter.yaml --rate 20\nbatchtts stream chunks.json --metrics-addr :9090"),
		Args:    cobra.ExactArgs(1),
		RunE:    streamManifest,
	}
)

func streamManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBatchingFlags(cmd.Flags(), &cfg.Batching); err != nil {
		return err
	}

	chunks, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	engine, ac, cleanup, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if ac != nil {
		opts.Cache = ac
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := pipeline.New(engine, opts)
	if err := p.Start(ctx); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv, err := serveMetrics(metricsAddr, p)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("chunk-%d", i)
	}

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	g, gctx := errgroup.WithContext(feedCtx)
	g.Go(func() error {
		return feed(gctx, p, chunks, ids, newLimiter(submitRate))
	})

	start := time.Now()
	collector := pipeline.NewCollector(ids)
	collector.Collect(ctx, p, cfg.Pipeline.ResultTimeout)
	cancelFeed()
	feedErr := g.Wait()
	if errors.Is(feedErr, context.Canceled) {
		feedErr = nil
	}

	// Whatever shutdown reports or leaves queued still belongs to a position.
	report := p.Shutdown(cfg.Pipeline.JoinTimeout)
	for _, r := range append(report.Failed, report.Undelivered...) {
		collector.Add(r)
	}
	for {
		r, ok := p.GetResult(0)
		if !ok {
			break
		}
		collector.Add(r)
	}
	coll := collector.Ordered()

	if outDir != "" {
		if err := writeResults(outDir, chunks, coll, engine.SampleRate(), combined); err != nil {
			return err
		}
	}

	printStreamReport(cmd.OutOrStdout(), coll, p.Stats(), report, time.Since(start))
	if feedErr != nil {
		return feedErr
	}
	if coll.Missing > 0 {
		return fmt.Errorf("%d of %d chunks produced no result", coll.Missing, len(chunks))
	}
	return nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// feed submits chunks at the limiter's pace, retrying while the pipeline
// pushes back.
func feed(ctx context.Context, p *pipeline.Pipeline, chunks []tts.Chunk, ids []string, limiter *rate.Limiter) error {
	for i, c := range chunks {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			_, err := p.SubmitChunk(ctx, c, pipeline.WithTaskID(ids[i]))
			if err == nil {
				break
			}
			if !tts.IsRecoverableError(err) {
				return fmt.Errorf("submit chunk %d: %w", c.Index, err)
			}
			log.Debug("pipeline busy, retrying", "chunk", c.Index, "error", err)
		}
	}
	log.Debug("all chunks submitted", "chunks", len(chunks))
	return nil
}

func serveMetrics(addr string, p *pipeline.Pipeline) (*http.Server, error) {
	h, err := metrics.Handler(metrics.NewPipelineCollector(p))
	if err != nil {
		return nil, fmt.Errorf("unable to register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr, "path", "/metrics")
	return srv, nil
}

func init() {
	streamCmd.Flags().Float64Var(&submitRate, "rate", 0, "chunks submitted per second (0 for unlimited)")
	streamCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	streamCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for chunk-<index>.wav files")
	streamCmd.Flags().BoolVar(&combined, "combined", false, "also write all chunks joined into combined.wav")
	addBatchingFlags(streamCmd.Flags())
}
