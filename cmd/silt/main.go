package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/siltdb/silt"
	"github.com/siltdb/silt/internal/config"
	"github.com/siltdb/silt/internal/logging"
	"github.com/siltdb/silt/pkg/model"
)

const (
	promptMain = "silt> "
	promptCont = "  ... "
)

func main() {
	// 0. Parse command line flags
	configPath := flag.String("config", "", "Path to YAML config file")
	backend := flag.String("backend", "", "Storage backend: memory or sqlite")
	dbPath := flag.String("path", "", "Database file for the sqlite backend")
	execStmt := flag.String("exec", "", "Run a single statement and exit")
	verbose := flag.Bool("verbose", false, "Mirror logs to the console")
	flag.Parse()

	// 1. Load configuration
	cfg, err := loadConfig(*configPath, *backend, *dbPath, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "silt:", err)
		os.Exit(1)
	}

	// 2. Initialize logging
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "silt:", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Shutdown() }()

	// 3. Open the database
	ctx := context.Background()
	db, err := silt.Open(ctx, silt.Options{Storage: cfg.Storage})
	if err != nil {
		slog.Error("failed to open database", "error", err)
		fmt.Fprintln(os.Stderr, "silt:", err)
		_ = logging.Shutdown()
		os.Exit(1)
	}
	defer db.Close(ctx)

	// 4. One-shot mode
	if *execStmt != "" {
		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runStatement(runCtx, db, *execStmt); err != nil {
			fmt.Fprintln(os.Stderr, "silt:", err)
			_ = db.Close(ctx)
			_ = logging.Shutdown()
			os.Exit(1)
		}
		return
	}

	// 5. Interactive shell
	repl(ctx, db)
}

func loadConfig(path, backend, dbPath string, verbose bool) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	} else {
		cfg = config.Default()
	}

	// Flags override the file.
	if backend != "" {
		cfg.Storage.Type = backend
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	cfg.Storage.ApplyDefaults()

	// Shell output and console logging share stdout; keep the shell clean
	// unless asked for.
	if !verbose {
		cfg.Logging.Console.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func repl(ctx context.Context, db *silt.Database) {
	fmt.Println("silt shell (.help for commands, Ctrl-D to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var stmt strings.Builder
	prompt := promptMain
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())

		if stmt.Len() == 0 {
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, ".") {
				if quit := runCommand(ctx, db, line); quit {
					return
				}
				continue
			}
		}

		// Statements run on the terminating semicolon; anything else
		// continues on the next line.
		if stmt.Len() > 0 {
			stmt.WriteByte('\n')
		}
		stmt.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			prompt = promptCont
			continue
		}

		src := strings.TrimSuffix(stmt.String(), ";")
		stmt.Reset()
		prompt = promptMain

		// SIGINT cancels the running statement, not the shell.
		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT)
		err := runStatement(runCtx, db, src)
		stop()
		switch {
		case model.IsCanceled(err):
			fmt.Println("canceled")
		case err != nil:
			fmt.Println("error:", err)
		}
	}
}

func runStatement(ctx context.Context, db *silt.Database, src string) error {
	cur, err := db.Exec(ctx, src)
	if err != nil {
		return err
	}
	defer cur.Close()

	var n int64
	for cur.Next() {
		fmt.Println(cur.Outcome().ID)
		n++
	}
	if err := cur.Err(); err != nil {
		return err
	}
	fmt.Printf("%d document(s) updated\n", n)
	return nil
}

func runCommand(ctx context.Context, db *silt.Database, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".quit", ".exit":
		return true

	case ".help":
		printHelp()

	case ".collections":
		names, err := db.Collections(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case ".count":
		if len(fields) != 2 {
			fmt.Println("usage: .count <collection>")
			return false
		}
		n, err := db.Collection(fields[1]).Count(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println(n)

	case ".get":
		if len(fields) != 3 {
			fmt.Println("usage: .get <collection> <id>")
			return false
		}
		id, err := model.ParseDocID(fields[2])
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		doc, err := db.Collection(fields[1]).Get(ctx, id)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		printDocument(doc)

	case ".insert":
		if len(fields) < 3 {
			fmt.Println("usage: .insert <collection> <json>")
			return false
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		raw := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		var doc bson.D
		if err := bson.UnmarshalExtJSON([]byte(raw), false, &doc); err != nil {
			fmt.Println("error:", err)
			return false
		}
		id, err := db.Collection(fields[1]).Insert(ctx, model.Document(doc))
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println(id)

	default:
		fmt.Printf("unknown command %s (.help for commands)\n", fields[0])
	}
	return false
}

func printDocument(doc model.Document) {
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(string(out))
}

func printHelp() {
	fmt.Print(`Statements end with a semicolon:
  UPDATE <collection> SET <field> = <expr>, ... [WHERE <expr>];
  UPDATE <collection> SET { <field>: <expr>, ... } [WHERE <expr>];

Commands:
  .collections            list collections
  .count <collection>     count documents
  .get <collection> <id>  print one document
  .insert <collection> <json>  insert a document
  .help                   show this help
  .quit                   exit the shell
`)
}
