package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dgnsrekt/batchtts/internal/playback"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
	"github.com/dgnsrekt/batchtts/tts/pipeline"
)

const watchDebounce = 300 * time.Millisecond

var (
	outDir   string
	combined bool
	watch    bool
	play     bool

	runCmd = &cobra.Command{
		Use:     "run MANIFEST",
		Short:   "Synthesize a chunk manifest in one pass",
		Long:    paragraph(fmt.Sprintf("\n%s every chunk of a JSON, YAML or markdown manifest, or of every manifest in a directory. Chunks with matching parameters are synthesized together and results are written in manifest order.", keyword("Synthesize"))),
		Example: paragraph("batchtts run chapter.yaml --out audio/\nbatchtts run chunks.json --global --tolerance 0.1\nbatchtts run notes/ --watch --cache"),
		Args:    cobra.ExactArgs(1),
		RunE:    runManifest,
	}
)

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBatchingFlags(cmd.Flags(), &cfg.Batching); err != nil {
		return err
	}
	if watch && args[0] == "-" {
		return errors.New("--watch needs a file or directory, not stdin")
	}

	engine, ac, cleanup, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := pipeline.ProcessorOptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	if ac != nil {
		opts.Cache = ac
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	once := func() error {
		chunks, err := loadManifest(args[0])
		if err != nil {
			return err
		}

		log.Info("processing manifest", "path", args[0], "chunks", len(chunks), "engine", engine.Name())
		out, err := pipeline.NewProcessor(engine, opts).Process(ctx, chunks)
		if err != nil {
			log.Error("processing interrupted", "error", err)
		}

		if outDir != "" {
			if werr := writeResults(outDir, chunks, out.Collection, engine.SampleRate(), combined); werr != nil {
				return werr
			}
		}

		printRunReport(cmd.OutOrStdout(), out)
		if play && err == nil {
			if perr := playback.Play(ctx, audio.Concat(out.Collection.Playable(engine.SampleRate())...)); perr != nil {
				log.Warn("unable to play audio", "error", perr)
			}
		}
		return err
	}

	if !watch {
		return once()
	}

	// Watching starts before the first run so edits made during it are seen.
	mw, err := newManifestWatcher(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = mw.Close() }()
	if ac == nil {
		log.Warn("watching without the audio cache; every change resynthesizes all chunks")
	}

	if err := once(); err != nil {
		log.Error("run failed", "error", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), styled(dimStyle, "watching "+args[0]+" for changes, interrupt to stop"))

	err = mw.Run(ctx, watchDebounce, func() error {
		fmt.Fprintln(cmd.OutOrStdout())
		return once()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// writeResults saves one WAV per chunk, named by chunk index, substituting
// silence for failures so the files line up with the manifest.
func writeResults(dir string, chunks []tts.Chunk, coll pipeline.Collection, sampleRate int, joined bool) error {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return fmt.Errorf("unable to expand output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	waves := coll.Playable(sampleRate)
	for i, a := range waves {
		name := filepath.Join(dir, fmt.Sprintf("chunk-%d.wav", chunks[i].Index))
		if err := audio.SaveWAV(name, a); err != nil {
			return err
		}
	}
	log.Info("wrote audio", "dir", dir, "files", len(waves))

	if joined {
		path := filepath.Join(dir, "combined.wav")
		if err := audio.SaveWAV(path, audio.Concat(waves...)); err != nil {
			return err
		}
		log.Info("wrote combined audio", "path", path)
	}
	return nil
}

func addBatchingFlags(fs *pflag.FlagSet) {
	fs.Bool("global", false, "group matching chunks across the whole manifest instead of consecutive runs")
	fs.Float64("tolerance", 0, "per-parameter tolerance for grouping (0 matches exactly)")
	fs.Int("min-batch", 0, "smallest run synthesized as a group")
	fs.Int("max-batch", 0, "largest group sent to the engine")
	fs.String("match", "", "grouping match mode (quantized or absolute)")
}

// applyBatchingFlags overlays changed batching flags and revalidates.
func applyBatchingFlags(fs *pflag.FlagSet, cfg *tts.BatchingConfig) error {
	if fs.Changed("global") {
		global, _ := fs.GetBool("global")
		cfg.PreserveOrder = !global
	}
	if fs.Changed("tolerance") {
		cfg.Tolerance, _ = fs.GetFloat64("tolerance")
	}
	if fs.Changed("min-batch") {
		cfg.MinBatchSize, _ = fs.GetInt("min-batch")
	}
	if fs.Changed("max-batch") {
		cfg.MaxBatchSize, _ = fs.GetInt("max-batch")
	}
	if fs.Changed("match") {
		cfg.Match, _ = fs.GetString("match")
	}
	return cfg.Validate()
}

func init() {
	runCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for chunk-<index>.wav files")
	runCmd.Flags().BoolVar(&combined, "combined", false, "also write all chunks joined into combined.wav")
	runCmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun whenever the manifest changes")
	runCmd.Flags().BoolVarP(&play, "play", "p", false, "play the combined audio when synthesis finishes")
	addBatchingFlags(runCmd.Flags())
}
