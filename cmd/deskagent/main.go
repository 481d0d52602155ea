package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/v0xg/deskagent/internal/config"
	"github.com/v0xg/deskagent/internal/desktop"
	"github.com/v0xg/deskagent/internal/executor"
	"github.com/v0xg/deskagent/internal/gifgen"
	"github.com/v0xg/deskagent/internal/logging"
	"github.com/v0xg/deskagent/internal/perception"
	"github.com/v0xg/deskagent/internal/pipeline"
	"github.com/v0xg/deskagent/internal/recorder"
	"go.uber.org/zap"
)

var (
	configPath   string
	verbose      bool
	record       string
	frameDelay   time.Duration
	snapshotPath string
	actionsPath  string
	elementsPath string

	v      = config.NewViper()
	cfg    config.Config
	logger *zap.Logger
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deskagent",
		Short: "Drive the desktop from natural language instructions",
		Long: `deskagent captures the screen, asks a grounding model for the UI elements on it,
asks an LLM which actions complete the task, and performs them with simulated
mouse and keyboard input.

Example:
  deskagent run "open the search box and search for quarterly report"`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (yaml, toml or json)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	flags.String("provider", "", "LLM provider: openai, anthropic, gemini, vllm")
	flags.String("model", "", "LLM model override")
	flags.String("backend", "", "Screen backend: x11, browser")
	flags.Bool("enable-code", false, "Allow code actions to run locally")
	_ = v.BindPFlag("llm.provider", flags.Lookup("provider"))
	_ = v.BindPFlag("llm.model", flags.Lookup("model"))
	_ = v.BindPFlag("screen.backend", flags.Lookup("backend"))
	_ = v.BindPFlag("execution.enable_local_code", flags.Lookup("enable-code"))

	runCmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Perceive, decide and execute in one go",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&record, "record", "", "Save a GIF of the session to this path")
	runCmd.Flags().DurationVar(&frameDelay, "frame-delay", time.Second, "How long each recorded frame is shown")

	perceiveCmd := &cobra.Command{
		Use:   "perceive [instruction]",
		Short: "Print the UI elements currently on screen as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPerceive,
	}

	decideCmd := &cobra.Command{
		Use:   "decide <instruction>",
		Short: "Print the actions the LLM would take as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecide,
	}
	decideCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Decide against a saved snapshot instead of the live screen")

	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute saved actions against a saved snapshot or element map",
		Args:  cobra.NoArgs,
		RunE:  runExecute,
	}
	executeCmd.Flags().StringVar(&actionsPath, "actions", "-", "Actions JSON file, - for stdin")
	executeCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot JSON file")
	executeCmd.Flags().StringVar(&elementsPath, "elements", "", "Element map JSON file ({\"<id>\": [x1,y1,x2,y2]})")
	executeCmd.MarkFlagsMutuallyExclusive("snapshot", "elements")
	executeCmd.MarkFlagsOneRequired("snapshot", "elements")

	rootCmd.AddCommand(runCmd, perceiveCmd, decideCmd, executeCmd)
	return rootCmd
}

func setup(cmd *cobra.Command, _ []string) error {
	if verbose {
		v.Set("log.level", "debug")
	}
	var err error
	cfg, err = config.Load(v, configPath)
	if err != nil {
		return err
	}
	logger, err = logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logVerbose("Provider: %s (%s)", cfg.LLM.Provider, cfg.LLM.Model)
	logVerbose("Grounding: %s (%s, %dx%d)", cfg.Grounding.URL, cfg.Grounding.Model, cfg.Grounding.Width, cfg.Grounding.Height)
	logVerbose("Backend: %s, local code: %v", cfg.Screen.Backend, cfg.Execution.EnableLocalCode)
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	instruction := args[0]

	dt, err := openDesktop(ctx)
	if err != nil {
		return err
	}
	defer dt.Close()

	var observers []executor.Observer
	var rec *recorder.Recorder
	if record != "" {
		rec = recorder.New(dt, cfg.Grounding.Width, cfg.Grounding.Height, logger)
		if err := rec.Start(ctx); err != nil {
			return err
		}
		observers = append(observers, rec)
	}

	p, err := pipeline.Build(cfg, dt, logger, observers...)
	if err != nil {
		return err
	}

	progress("→ Running %q... ", instruction)
	actions, snap, runErr := p.Run(ctx, instruction)
	if runErr != nil {
		progressln("failed")
	} else {
		progressln("done (%d elements, %d actions)", len(snap.Elements), len(actions))
	}
	logActions(actions)

	if rec != nil {
		if err := saveRecording(ctx, rec); err != nil {
			logger.Warn("recording not saved", zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Actions  executor.Sequence   `json:"actions"`
		Snapshot perception.Snapshot `json:"snapshot"`
	}{actions, snap})
}

func runPerceive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	instruction := ""
	if len(args) == 1 {
		instruction = args[0]
	}

	dt, err := openDesktop(ctx)
	if err != nil {
		return err
	}
	defer dt.Close()

	p, err := pipeline.Build(cfg, dt, logger)
	if err != nil {
		return err
	}

	progress("→ Perceiving screen via %s... ", cfg.Grounding.Model)
	snap, err := p.PerceiveOnly(ctx, instruction)
	if err != nil {
		progressln("failed")
		return err
	}
	progressln("done (found %d elements)", len(snap.Elements))
	return printJSON(cmd.OutOrStdout(), snap)
}

func runDecide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var snap *perception.Snapshot
	var dt desktop.Desktop
	if snapshotPath != "" {
		s, err := readSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		snap = &s
	} else {
		var err error
		if dt, err = openDesktop(ctx); err != nil {
			return err
		}
		defer dt.Close()
	}

	p, err := pipeline.Build(cfg, dt, logger)
	if err != nil {
		return err
	}

	progress("→ Generating actions via %s... ", cfg.LLM.Provider)
	actions, err := p.DecideOnly(ctx, args[0], snap)
	if err != nil {
		progressln("failed")
		return err
	}
	progressln("done (%d actions)", len(actions))
	logActions(actions)
	return printJSON(cmd.OutOrStdout(), struct {
		Actions executor.Sequence `json:"actions"`
	}{actions})
}

func runExecute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	data, err := readInput(cmd.InOrStdin(), actionsPath)
	if err != nil {
		return err
	}
	actions, err := executor.ParseSequence(data)
	if err != nil {
		return err
	}

	var src pipeline.ElementSource
	if snapshotPath != "" {
		snap, err := readSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		src = snap
	} else {
		raw, err := os.ReadFile(elementsPath)
		if err != nil {
			return fmt.Errorf("failed to read element map: %w", err)
		}
		var elements perception.ElementMap
		if err := json.Unmarshal(raw, &elements); err != nil {
			return fmt.Errorf("failed to parse element map: %w", err)
		}
		src = elements
	}

	dt, err := openDesktop(ctx)
	if err != nil {
		return err
	}
	defer dt.Close()

	p, err := pipeline.Build(cfg, dt, logger)
	if err != nil {
		return err
	}

	logActions(actions)
	progress("→ Executing %d actions... ", len(actions))
	if err := p.ExecuteOnly(ctx, actions, src); err != nil {
		progressln("failed")
		return err
	}
	progressln("done")
	return nil
}

func openDesktop(ctx context.Context) (desktop.Desktop, error) {
	dt, err := desktop.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Screen.Backend, err)
	}
	return dt, nil
}

func saveRecording(ctx context.Context, rec *recorder.Recorder) error {
	progress("→ Generating GIF (%d frames)... ", rec.Len())
	size, err := rec.Save(ctx, record, gifgen.Options{FrameDelay: frameDelay, LastDelay: 2 * frameDelay})
	if err != nil {
		progressln("failed")
		return err
	}
	progressln("done")
	progressln("✓ Saved to %s (%.1f MB)", record, float64(size)/(1024*1024))
	return nil
}

func readSnapshot(path string) (perception.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return perception.Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return perception.ParseSnapshot(data)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// logActions prints the action list
func logActions(actions executor.Sequence) {
	for i, action := range actions {
		progressln("  [%d] %s", i+1, action)
	}
}

// Progress goes to stderr so stdout stays valid JSON.
func progress(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

func progressln(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func logVerbose(format string, args ...any) {
	if verbose {
		progressln(format, args...)
	}
}
