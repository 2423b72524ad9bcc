// Command footfall runs ensemble data assimilation of camera counts into the
// pedestrian street simulation.
//
//	footfall run     [-config file] [-db file] [-plots dir] [-html file] [-seed n] [-windows n]
//	footfall truth   [-config file] [-db file] [-plots dir] [-seed n] [-windows n]
//	footfall migrate [-db file] up|down|version
//	footfall version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/pipeline"
	"github.com/banshee-data/footfall/internal/report"
	"github.com/banshee-data/footfall/internal/store"
	"github.com/banshee-data/footfall/internal/version"
	"github.com/banshee-data/footfall/internal/world"
)

const defaultDBFile = "footfall.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("footfall: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(stdout)
		return flag.ErrHelp
	}
	switch args[0] {
	case "run":
		return runAssimilation(ctx, args[1:], stdout)
	case "truth":
		return runTruth(ctx, args[1:], stdout)
	case "migrate":
		return runMigrate(args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: footfall <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run      assimilate camera counts into the ensemble")
	fmt.Fprintln(w, "  truth    run only the ground-truth simulation")
	fmt.Fprintln(w, "  migrate  manage the result database schema (up, down, version)")
	fmt.Fprintln(w, "  version  print build information")
}

// runFlags are shared by run and truth.
type runFlags struct {
	configPath string
	dbPath     string
	plotsDir   string
	htmlPath   string
	seed       uint64
	windows    int
}

func parseRunFlags(name string, args []string, withHTML bool) (*runFlags, error) {
	f := &runFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "JSON config file (defaults apply to unset fields)")
	fs.StringVar(&f.dbPath, "db", "", "SQLite result database (empty disables persistence)")
	fs.StringVar(&f.plotsDir, "plots", "", "directory for PNG plots (empty disables plots)")
	if withHTML {
		fs.StringVar(&f.htmlPath, "html", "", "HTML report file (empty disables the report)")
	}
	fs.Uint64Var(&f.seed, "seed", 0, "run seed, overrides the config (0 keeps the config's)")
	fs.IntVar(&f.windows, "windows", 0, "number of one-hour windows, overrides the config")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *runFlags) config() (*config.AssimilationConfig, error) {
	cfg := config.EmptyAssimilationConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadAssimilationConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.seed != 0 {
		cfg.Seed = &f.seed
	}
	if f.windows != 0 {
		cfg.Windows = &f.windows
	}
	return cfg, nil
}

func (f *runFlags) openStore() (*store.Store, error) {
	if f.dbPath == "" {
		return nil, nil
	}
	st, err := store.Open(f.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := st.MigrateUp(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func runAssimilation(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseRunFlags("run", args, true)
	if err != nil {
		return err
	}
	cfg, err := f.config()
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(cfg, world.DefaultStreet())
	if err != nil {
		return err
	}

	st, err := f.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		rec, err := store.NewRun(cfg, runner.Seed, runner.Truth.Rate())
		if err != nil {
			return err
		}
		if err := st.CreateRun(ctx, rec); err != nil {
			return err
		}
		runner.RunID = rec.RunID
		runner.Recorder = st.Recorder(rec.RunID)
	}

	sum, runErr := runner.Run(ctx)
	if st != nil {
		// Record the outcome even when the run was interrupted.
		if err := st.FinishRun(context.WithoutCancel(ctx), runner.RunID, sum, runErr); err != nil {
			monitoring.Warnf("failed to store run summary: %v", err)
		}
	}
	printSummary(stdout, runner, sum)

	if len(sum.Records) > 0 {
		if err := writeReports(f, runner.RunID, sum.Records); err != nil {
			return err
		}
	}
	return runErr
}

func writeReports(f *runFlags, runID string, records []pipeline.WindowRecord) error {
	if f.plotsDir != "" {
		if err := os.MkdirAll(f.plotsDir, 0o755); err != nil {
			return err
		}
		paths, err := report.WritePlots(f.plotsDir, records)
		if err != nil {
			return err
		}
		monitoring.Logf("wrote %s", strings.Join(paths, ", "))
	}
	if f.htmlPath != "" {
		out, err := os.Create(f.htmlPath)
		if err != nil {
			return err
		}
		title := "footfall assimilation"
		if runID != "" {
			title += " " + runID
		}
		if err := report.RenderHTML(out, title, records); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		monitoring.Logf("wrote %s", f.htmlPath)
	}
	return nil
}

func printSummary(w io.Writer, r *pipeline.Runner, s pipeline.Summary) {
	if s.RunID != "" {
		fmt.Fprintf(w, "run:              %s\n", s.RunID)
	}
	fmt.Fprintf(w, "seed:             %d\n", r.Seed)
	fmt.Fprintf(w, "windows:          %d (%d fallbacks)\n", s.Windows, s.Fallbacks)
	fmt.Fprintf(w, "true rate:        %.4f\n", r.Truth.Rate())
	fmt.Fprintf(w, "final estimate:   %.4f\n", s.FinalRate)
	fmt.Fprintf(w, "forecast RMSE:    %.4f\n", s.ForecastRMSE)
	fmt.Fprintf(w, "analysis RMSE:    %.4f\n", s.AnalysisRMSE)
	fmt.Fprintf(w, "observation RMSE: %.4f\n", s.ObservationRMSE)
	fmt.Fprintf(w, "parameter RMSE:   %.4f\n", s.ParameterRMSE)
}

func runTruth(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseRunFlags("truth", args, false)
	if err != nil {
		return err
	}
	cfg, err := f.config()
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(cfg, world.DefaultStreet())
	if err != nil {
		return err
	}
	series, err := runner.RunTruth(ctx)
	if err != nil {
		return err
	}

	st, err := f.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		rec, err := store.NewRun(cfg, series.Seed, series.Rate)
		if err != nil {
			return err
		}
		rec.Status = store.StatusTruth
		if err := st.CreateRun(ctx, rec); err != nil {
			return err
		}
		if err := st.RecordTruth(ctx, rec.RunID, series); err != nil {
			return err
		}
		monitoring.Logf("stored truth run %s", rec.RunID)
	}

	if f.plotsDir != "" {
		if err := os.MkdirAll(f.plotsDir, 0o755); err != nil {
			return err
		}
		path, err := report.WriteTruthPlot(f.plotsDir, series)
		if err != nil {
			return err
		}
		monitoring.Logf("wrote %s", path)
	}

	writeTruthCSV(stdout, series)
	return nil
}

// writeTruthCSV prints one line per hour: hour, then each camera's count.
func writeTruthCSV(w io.Writer, s pipeline.TruthSeries) {
	fmt.Fprintf(w, "# seed=%d rate=%.4f bled_out=%d\n", s.Seed, s.Rate, s.BledOut)
	fmt.Fprintf(w, "hour,%s\n", strings.Join(s.Cameras, ","))
	if len(s.Counts) == 0 {
		return
	}
	for h := range s.Counts[0] {
		fields := make([]string, len(s.Counts))
		for c := range s.Counts {
			fields[c] = fmt.Sprint(s.Counts[c][h])
		}
		fmt.Fprintf(w, "%d,%s\n", h, strings.Join(fields, ","))
	}
}

func runMigrate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBFile, "SQLite result database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: footfall migrate [-db file] up|down|version")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	switch action := fs.Arg(0); action {
	case "up":
		if err := st.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := st.MigrateDown(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}

	v, dirty, err := st.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "schema version %d (dirty: %v)\n", v, dirty)
	return nil
}
