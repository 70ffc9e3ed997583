package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/menta2k/browcrop"
	"github.com/menta2k/browcrop/internal/config"
	"github.com/menta2k/browcrop/internal/logging"
	"github.com/menta2k/browcrop/internal/utils"
)

// flags holds the raw command line values
type flags struct {
	input, output, single string
	margin                int

	configPath    string
	detector      string
	url, model    string
	python        string
	script        string
	engines       int
	minConfidence float64
	selectPolicy  string
	offset        int
	quality       int
	workers       int
	debug         bool
	dbgext        string
	dryRun        bool
	progress      bool
	verbose       bool
}

var opts flags

var rootCmd = &cobra.Command{
	Use:   "browcrop",
	Short: "Crop photos above eye level to hide identity",
	Long: `browcrop crops every photo in a folder just above the eyebrows so the
person cannot be identified, while chin, lips and nose stay visible.
Originals are never modified. Photos without a detectable face are copied
unchanged with a "noface_" prefix.

Examples:
  browcrop -i ./photos -o ./cropped
  browcrop -i ./photos -o ./cropped --margin 10
  browcrop --single ./photos/ring.jpg -o ./cropped --debug
  browcrop -i ./photos -o ./cropped --detector ollama --model llama3.2-vision:11b`,
	Version:       browcrop.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runCrop,
}

// Execute runs the root command and exits non-zero on usage or startup errors
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	f := rootCmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input folder with jpg/png files")
	f.StringVarP(&opts.output, "output", "o", "", "output folder (required)")
	f.IntVarP(&opts.margin, "margin", "m", 0, "extra pixels kept above the crop line")
	f.StringVar(&opts.single, "single", "", "process a single file instead of a folder")
	f.IntVar(&opts.offset, "offset", 5, "safety offset above the eyebrows in pixels")
	f.IntVar(&opts.quality, "quality", 95, "JPEG quality for cropped outputs (1-100)")
	f.IntVar(&opts.workers, "workers", 1, "number of images processed at once")
	f.BoolVar(&opts.debug, "debug", false, "write debug overlay images")
	f.StringVar(&opts.dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	f.BoolVar(&opts.dryRun, "dry-run", false, "detect and report without writing files")
	f.BoolVar(&opts.progress, "progress", false, "show a progress bar on stderr")
	f.StringVar(&opts.selectPolicy, "select", "first", "face selection policy: first|confident|largest")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/browcrop/config.yaml)")
	pf.StringVar(&opts.detector, "detector", "facemesh", "landmark backend: facemesh|ollama|llamacpp|sidecar")
	pf.StringVar(&opts.url, "url", "", "vision model server URL (ollama/llamacpp)")
	pf.StringVar(&opts.model, "model", "", "vision model name (ollama/llamacpp)")
	pf.StringVar(&opts.python, "python", "python3", "python interpreter for the facemesh engine")
	pf.StringVar(&opts.script, "script", "python/facemesh_engine.py", "facemesh engine script")
	pf.IntVar(&opts.engines, "engines", 1, "number of facemesh engine processes")
	pf.Float64Var(&opts.minConfidence, "min-confidence", 0.5, "minimum face detection confidence")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig merges defaults, config file, environment and explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	d := &cfg.Detector
	if changed("detector") {
		d.Backend = opts.detector
	}
	if changed("python") {
		d.Python = opts.python
	}
	if changed("script") {
		d.Script = opts.script
	}
	if changed("engines") {
		d.Engines = opts.engines
	}
	if changed("min-confidence") {
		d.MinConfidence = opts.minConfidence
	}
	if changed("select") {
		d.Select = opts.selectPolicy
	}
	llm := &d.Ollama
	if d.Backend == "llamacpp" {
		llm = &d.LlamaCpp
	}
	if changed("url") {
		llm.URL = opts.url
	}
	if changed("model") {
		llm.Model = opts.model
	}
	if changed("margin") {
		cfg.Crop.Margin = opts.margin
	}
	if changed("offset") {
		cfg.Crop.SafetyOffset = opts.offset
	}
	if changed("quality") {
		cfg.Output.Quality = opts.quality
	}
	if changed("workers") {
		cfg.Output.Workers = opts.workers
	}
	if changed("progress") {
		cfg.Output.Progress = opts.progress
	}
	if changed("debug") {
		cfg.Debug.Enabled = opts.debug
	}
	if changed("dbgext") {
		cfg.Debug.Extension = opts.dbgext
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runCrop(cmd *cobra.Command, args []string) error {
	if opts.output == "" {
		return errors.New("--output is required")
	}
	if opts.input == "" && opts.single == "" {
		return errors.New("either --input or --single is required")
	}
	if opts.single != "" && !utils.FileExists(opts.single) {
		return fmt.Errorf("file not found: %s", opts.single)
	}
	if opts.single == "" && !utils.DirExists(opts.input) {
		return fmt.Errorf("input folder not found: %s", opts.input)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logging.New(os.Stderr, opts.verbose)
	o := browcrop.OptionsFromConfig(cfg)
	o.DryRun = opts.dryRun
	o.Status = cmd.OutOrStdout()
	o.Logger = log
	if cfg.Output.Progress {
		o.Progress = os.Stderr
	}

	c, err := browcrop.New(o)
	if err != nil {
		return fmt.Errorf("failed to start %s detector: %w", cfg.Detector.Backend, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("detector shutdown", "err", err)
		}
	}()

	ctx := cmd.Context()
	if opts.single != "" {
		_, err = c.CropFile(ctx, opts.single, opts.output)
	} else {
		_, err = c.CropDir(ctx, opts.input, opts.output)
	}
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Warn("interrupted")
	}
	return nil
}
