package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go-bstardb/config"
	"go-bstardb/pkg/bstar"
	"go-bstardb/pkg/table"
	"go-bstardb/util/logger"
)

// checker is implemented by engines that can verify their own structure.
type checker interface {
	CheckConsistency() error
}

type treeStats interface {
	Stats() bstar.Stats
}

type garbageCounter interface {
	Garbage() int64
}

func main() {
	configPath := flag.String("config", "", "json config file")
	dir := flag.String("dir", "", "database directory (defaults to storage.data_dir)")
	tableName := flag.String("table", "", "inspect only this table")
	check := flag.Bool("check", false, "verify the structure of every table")
	dump := flag.Bool("dump", false, "print the rows of the inspected tables")
	reorganize := flag.Bool("reorganize", false, "compact the storage of the inspected tables")
	flag.Parse()

	cfg := config.New()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatal(err)
		}
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		fatal(err)
	}
	if *dir != "" {
		cfg.Storage.DataDir = *dir
	}
	cfg.Storage.ReadOnly = !*reorganize
	cfg.Storage.SyncIntervalSeconds = 0

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, *tableName, *check, *dump, *reorganize); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, tableName string, check, dump, reorganize bool) error {
	db, err := table.OpenDatabase(cfg.Storage.DataDir, cfg.Storage, logger.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.L.WithError(err).Error("error on gracefully stopping")
		}
	}()

	var tables []*table.Table
	if tableName != "" {
		t, err := db.OpenTable(tableName)
		if err != nil {
			return err
		}
		tables = []*table.Table{t}
	} else if tables, err = db.OpenAll(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tENGINE\tROWS\tDETAILS\tSTATUS")
	for _, t := range tables {
		if reorganize {
			if err := t.Reorganize(); err != nil {
				return err
			}
		}

		status := "-"
		if c, ok := t.Engine().(checker); ok && check {
			status = "ok"
			if err := c.CheckConsistency(); err != nil {
				status = err.Error()
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.Name(), t.EngineID(), t.Count(), details(t), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !dump {
		return nil
	}
	for _, t := range tables {
		if err := dumpTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func details(t *table.Table) string {
	switch e := t.Engine().(type) {
	case treeStats:
		s := e.Stats()
		return fmt.Sprintf("height=%d pages=%d free=%d", s.Height, s.Pages, s.FreePages)
	case garbageCounter:
		return fmt.Sprintf("garbage=%dB", e.Garbage())
	}
	return "-"
}

func dumpTable(ctx context.Context, t *table.Table) error {
	fmt.Printf("\n%s:\n", t.Name())

	s := t.Stream(ctx)
	defer s.Stop()

	for {
		row, ok := s.Pop()
		if !ok {
			return s.Err()
		}
		for i, col := range t.Columns() {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%s=%v", col.Name, row[col.Name].Value())
		}
		fmt.Println()
	}
}

func fatal(val interface{}) {
	fmt.Fprintln(os.Stderr, val)
	os.Exit(1)
}
