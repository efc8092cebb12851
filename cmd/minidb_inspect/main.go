// Command minidb_inspect is an interactive shell for looking inside a minidb data directory:
// page chains, index buckets, buffer counters and backups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/sushant-115/minidb/config"
	"github.com/sushant-115/minidb/core/storage_engine/engine"
	"github.com/sushant-115/minidb/core/storage_engine/record"
	"github.com/sushant-115/minidb/pkg/logger"
	"github.com/sushant-115/minidb/pkg/telemetry"
)

var errQuit = errors.New("quit")

type shell struct {
	eng *engine.Engine
	out io.Writer
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  databases")
	fmt.Fprintln(s.out, "  use <database>")
	fmt.Fprintln(s.out, "  tables")
	fmt.Fprintln(s.out, "  chains <table>")
	fmt.Fprintln(s.out, "  select <table> [<column> <op> <value> ...]")
	fmt.Fprintln(s.out, "  index <name>")
	fmt.Fprintln(s.out, "  stats")
	fmt.Fprintln(s.out, "  backup")
	fmt.Fprintln(s.out, "  help")
	fmt.Fprintln(s.out, "  exit / quit")
}

// exec runs one command line. It returns errQuit when the shell should stop.
func (s *shell) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "databases":
		dbs, err := s.eng.Databases()
		if err != nil {
			return err
		}
		for _, db := range dbs {
			marker := " "
			if db == s.eng.Database() {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %s\n", marker, db)
		}
	case "use":
		if len(args) != 2 {
			return errors.New("use requires a database name")
		}
		if err := s.eng.UseDatabase(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "using %s\n", args[1])
	case "tables":
		tables, err := s.eng.Tables()
		if err != nil {
			return err
		}
		for _, name := range tables {
			ts, err := s.eng.Schema(name)
			if err != nil {
				return err
			}
			cols := make([]string, len(ts.Fields))
			for i, f := range ts.Fields {
				cols[i] = f.String()
			}
			fmt.Fprintf(s.out, "%s(%s) pages=%d\n", ts.Name, strings.Join(cols, ", "), ts.PageCount)
			for _, idx := range ts.Indexes {
				fmt.Fprintf(s.out, "  index %s on %s, %d buckets, %d pages\n", idx.Name, idx.Column, idx.Buckets, idx.PageCount)
			}
		}
	case "chains":
		if len(args) != 2 {
			return errors.New("chains requires a table name")
		}
		return s.chains(ctx, args[1])
	case "select":
		if len(args) < 2 {
			return errors.New("select requires a table name")
		}
		return s.selectRows(ctx, args[1], args[2:])
	case "index":
		if len(args) != 2 {
			return errors.New("index requires an index name")
		}
		return s.eng.PrintIndex(args[1], s.out)
	case "stats":
		st := s.eng.Stats()
		fmt.Fprintf(s.out, "capacity=%d free=%d resident=%d dirty=%d\n", st.Capacity, st.Free, st.Resident, st.Dirty)
		fmt.Fprintf(s.out, "hits=%d misses=%d evictions=%d flushes=%d\n", st.Hits, st.Misses, st.Evictions, st.Flushes)
	case "backup":
		info, err := s.eng.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "backup %s: %d files, %d bytes in %s\n", info.ID, len(info.Files), info.Bytes(), info.Dir)
		for _, f := range info.Files {
			fmt.Fprintf(s.out, "  %s %d %s\n", f.Name, f.Bytes, f.SHA256)
		}
	case "help":
		s.help()
	case "exit", "quit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
	return nil
}

func (s *shell) chains(ctx context.Context, table string) error {
	info, err := s.eng.Chains(ctx, table)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: record length %d, %d records per page, %d pages\n",
		info.Table, info.RecordLength, info.MaxRecordsPerPage, info.PageCount)
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "live\tprev\tnext\tcount")
	for _, p := range info.Live {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", p.Page, p.Prev, p.Next, p.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "free: %v\n", info.Free)
	return nil
}

// parsePredicates reads column/op/value triples.
func parsePredicates(args []string) ([]record.Predicate, error) {
	if len(args)%3 != 0 {
		return nil, errors.New("predicates are written as <column> <op> <value>")
	}
	preds := make([]record.Predicate, 0, len(args)/3)
	for i := 0; i < len(args); i += 3 {
		op, err := record.ParseCompareOp(args[i+1])
		if err != nil {
			return nil, err
		}
		preds = append(preds, record.Predicate{Column: args[i], Op: op, Operand: args[i+2]})
	}
	return preds, nil
}

func (s *shell) selectRows(ctx context.Context, table string, args []string) error {
	preds, err := parsePredicates(args)
	if err != nil {
		return err
	}
	ts, err := s.eng.Schema(table)
	if err != nil {
		return err
	}
	rows, err := s.eng.Select(ctx, table, preds)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	names := make([]string, len(ts.Fields))
	for i, f := range ts.Fields {
		names[i] = f.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row.Strings(), "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "(%d rows)\n", len(rows))
	return nil
}

func (s *shell) interactive(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "minidb> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("databases"),
			readline.PcItem("use"),
			readline.PcItem("tables"),
			readline.PcItem("chains"),
			readline.PcItem("select"),
			readline.PcItem("index"),
			readline.PcItem("stats"),
			readline.PcItem("backup"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	s.out = rl.Stdout()

	fmt.Fprintln(s.out, "minidb inspect. Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.exec(ctx, strings.Fields(line)); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func main() {
	log.SetFlags(0)

	configPath := flag.String("config", "", "path to a YAML config file")
	dataDir := flag.String("data", "", "data directory, overrides the config")
	database := flag.String("db", "", "database to open on start")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		cfg = loaded
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	cfg.Logger.Level = *logLevel

	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Error: failed to create logger: %v", err)
	}
	defer zlog.Sync()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		log.Fatalf("Error: failed to start telemetry: %v", err)
	}
	ctx := context.Background()
	defer shutdown(ctx)

	eng, err := engine.Open(cfg, zlog, tel)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer eng.Close()

	s := &shell{eng: eng, out: os.Stdout}
	if *database != "" {
		if err := s.exec(ctx, []string{"use", *database}); err != nil {
			log.Printf("Error: %v", err)
			return
		}
	}

	// commands after the flags run once instead of starting the shell
	if args := flag.Args(); len(args) > 0 {
		if err := s.exec(ctx, args); err != nil && !errors.Is(err, errQuit) {
			log.Printf("Error: %v", err)
		}
		return
	}

	history := filepath.Join(os.TempDir(), "minidb_inspect_history")
	if err := s.interactive(ctx, history); err != nil {
		log.Printf("Error: %v", err)
	}
}
