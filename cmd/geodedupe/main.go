package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"geodedupe/internal/config"
	"geodedupe/internal/locfile"
	"geodedupe/internal/runner"
	"geodedupe/internal/server"
	"geodedupe/internal/store"
)

var (
	rootCmd = &cobra.Command{
		Use:               "geodedupe",
		Short:             "Removes near-duplicate points from location histories.",
		PersistentPreRunE: loadConfig,
		SilenceUsage:      true,
	}
	cfg *config.Config

	flagConfigPath  string
	flagDBPath      string
	flagLogLevel    string
	flagInPath      string
	flagOutPath     string
	flagFormat      string
	flagRadius      float64
	flagCooperative bool
	flagUser        string
	flagDevice      string
	flagStart       int64
	flagEnd         int64
	flagLimit       int
	flagAddr        string
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides config)")

	dedupeCmd := &cobra.Command{
		Use:   "dedupe",
		Short: "dedupe a location file and write GeoJSON",
		RunE:  dedupeCommand,
	}
	dedupeCmd.Flags().StringVar(&flagInPath, "in", "", "input file (GeoJSON or Google Timeline)")
	dedupeCmd.Flags().StringVar(&flagOutPath, "out", "", "output GeoJSON file (default stdout)")
	dedupeCmd.Flags().StringVar(&flagFormat, "format", "", "input format: geojson or timeline (default detect)")
	dedupeCmd.Flags().Float64Var(&flagRadius, "radius", 0, "dedupe radius in meters (overrides config)")
	dedupeCmd.Flags().BoolVar(&flagCooperative, "cooperative", false, "process in batches on a cooperative host")
	dedupeCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(dedupeCmd)

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "load a location file into the database",
		RunE:  importCommand,
	}
	importCmd.Flags().StringVar(&flagInPath, "in", "", "input file (GeoJSON or Google Timeline)")
	importCmd.Flags().StringVar(&flagFormat, "format", "", "input format: geojson or timeline (default detect)")
	importCmd.Flags().StringVar(&flagUser, "user", "", "user ID for points without one (default from config)")
	importCmd.Flags().StringVar(&flagDevice, "device", "", "device ID for points without one")
	importCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(importCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "dedupe stored locations and record the run",
		RunE:  runCommand,
	}
	runCmd.Flags().StringVar(&flagUser, "user", "", "only this user's locations")
	runCmd.Flags().Float64Var(&flagRadius, "radius", 0, "dedupe radius in meters (overrides config)")
	runCmd.Flags().BoolVar(&flagCooperative, "cooperative", false, "process in batches on a cooperative host")
	runCmd.Flags().Int64Var(&flagStart, "start", 0, "earliest unix timestamp")
	runCmd.Flags().Int64Var(&flagEnd, "end", 0, "latest unix timestamp")
	rootCmd.AddCommand(runCmd)

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recent dedupe runs",
		RunE:  runsCommand,
	}
	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API",
		RunE:  serveCommand,
	}
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&flagCooperative, "cooperative", false, "process in batches on a cooperative host")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfigPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = flagDBPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Lookup("radius") != nil && flags.Changed("radius") {
		cfg.RadiusMeters = flagRadius
	}
	if flags.Lookup("cooperative") != nil && flags.Changed("cooperative") {
		cfg.Cooperative = flagCooperative
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.ListenAddr = flagAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.SetLevel(cfg.Level())
	return nil
}

func openStore() (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func progressLogger(what string) func(processed, total int) {
	return func(processed, total int) {
		log.Debugf("%s: %d/%d", what, processed, total)
	}
}

func parseFormatFlag() (locfile.Format, error) {
	if flagFormat == "" {
		return "", nil
	}
	return locfile.ParseFormat(flagFormat)
}

func dedupeCommand(cmd *cobra.Command, args []string) error {
	format, err := parseFormatFlag()
	if err != nil {
		return err
	}
	locs, stats, err := locfile.LoadFile(flagInPath, format, locfile.LoadOptions{})
	if err != nil {
		return err
	}
	for _, e := range stats.Errors {
		log.WithError(e).Debug("skipped input record")
	}

	ctx, stop := signalContext()
	defer stop()

	started := time.Now()
	kept, err := runner.Dedupe(ctx, locs, runner.Options{
		Radius:      cfg.RadiusMeters,
		Cooperative: cfg.Cooperative,
		OnProgress:  progressLogger("dedupe"),
	})
	if err != nil {
		return err
	}

	out := os.Stdout
	if flagOutPath != "" {
		f, err := os.Create(flagOutPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := locfile.WriteGeoJSON(out, kept); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"input":   len(locs),
		"skipped": stats.Skipped,
		"kept":    len(kept),
		"radius":  cfg.RadiusMeters,
		"elapsed": time.Since(started).Round(time.Millisecond),
	}).Info("dedupe complete")
	return nil
}

func importCommand(cmd *cobra.Command, args []string) error {
	format, err := parseFormatFlag()
	if err != nil {
		return err
	}
	opts := locfile.LoadOptions{UserID: flagUser, DeviceID: flagDevice}
	if opts.UserID == "" {
		opts.UserID = cfg.DefaultUser
	}
	locs, stats, err := locfile.LoadFile(flagInPath, format, opts)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	const batchSize = 1000
	var inserted, skipped int
	for i := 0; i < len(locs); i += batchSize {
		end := min(i+batchSize, len(locs))
		n, s, err := db.InsertLocationBatch(locs[i:end])
		if err != nil {
			return fmt.Errorf("database error at batch %d: %w", i/batchSize, err)
		}
		inserted += n
		skipped += s
		log.Debugf("imported %d/%d locations", inserted+skipped, len(locs))
	}

	log.WithFields(log.Fields{
		"file":       flagInPath,
		"parsed":     stats.Parsed,
		"invalid":    stats.Skipped,
		"inserted":   inserted,
		"duplicates": skipped,
	}).Info("import complete")
	return nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	filter := store.LocationFilter{UserID: flagUser}
	if cmd.Flags().Changed("start") {
		filter.Start = &flagStart
	}
	if cmd.Flags().Changed("end") {
		filter.End = &flagEnd
	}

	ctx, stop := signalContext()
	defer stop()

	run, _, err := runner.New(db).Run(ctx, runner.Request{
		Filter: filter,
		Options: runner.Options{
			Radius:      cfg.RadiusMeters,
			Cooperative: cfg.Cooperative,
			OnProgress:  progressLogger("run"),
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: kept %d of %d points\n", run.ID, run.Status, run.KeptCount, run.InputCount)
	return nil
}

func runsCommand(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(flagLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tUSER\tRADIUS\tMODE\tSTATUS\tINPUT\tKEPT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%s\t%d\t%d\n",
			r.ID, time.Unix(r.StartedAt, 0).Format(time.RFC3339), r.UserID,
			r.RadiusM, r.Mode, r.Status, r.InputCount, r.KeptCount)
	}
	return tw.Flush()
}

func serveCommand(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.MarkInterruptedRuns(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	srv := server.New(db, server.Options{
		DefaultUserID: cfg.DefaultUser,
		RadiusMeters:  cfg.RadiusMeters,
		Cooperative:   cfg.Cooperative,
	})
	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

func main() {
	rootCmd.SetHelpTemplate(`{{.UsageString}}`)
	fatalIf(rootCmd.Execute())
}

func fatalIf(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
