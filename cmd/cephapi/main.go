// Package main is the entrypoint for cephapi.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cephapi/internal/config"
	"github.com/morezero/cephapi/internal/server"
	"github.com/morezero/cephapi/pkg/commsutil"
	"github.com/morezero/cephapi/pkg/db"
	"github.com/morezero/cephapi/pkg/dispatcher"
	"github.com/morezero/cephapi/pkg/events"
	"github.com/morezero/cephapi/pkg/registry"
	"github.com/morezero/cephapi/pkg/schema"
)

const usage = `Usage: cephapi [command]
       cephapi serve                          Start the dispatcher (NATS, HTTP).
       cephapi call [-i file] <command> [key=value ...]
                                              Dispatch one command and print its result.
       cephapi commands [module]              List the commands of the loaded release.
       cephapi migrate up                     Run database migrations.
       cephapi migrate down                   Roll back the last migration.
       cephapi migrate status                 Show migration status.
       cephapi seed [release|file]            Store catalogs in the schema store (default: every embedded release).
       cephapi clear                          Truncate the schema store and audit log; schema is preserved.
       cephapi ensure-db [name]               Create the database if missing (default: the one in DATABASE_URL).

Commands:
  serve       (default) Start cephapi.
  call        Validate and dispatch one command; -i sends the file as input buffer.
  commands    Print command names and prefixes, optionally for one module.
  migrate     Manage the schema store tables.
  seed        Load catalogs into the schema store.
  clear       Remove stored catalogs and audit records.
  ensure-db   Create the database on the DATABASE_URL host.

Environment: CEPH_RELEASE (default jewel, or auto), CEPHAPI_TRANSPORT (rados, nats, stub),
CEPH_CONF, CEPH_CLUSTER, CEPH_USER, COMMS_URL, CEPHAPI_SUBJECT, CEPHAPI_CATALOG_FILE,
CEPHAPI_CATALOG_SOURCE (embedded, db, cluster), CEPHAPI_AUDIT, DATABASE_URL, MIGRATION_PATH,
CEPHAPI_HTTP_ADDR.
`

// errCommandFailed marks a command the monitor rejected; its output was already printed.
var errCommandFailed = errors.New("command failed")

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "call":
		if err := runCall(args[1:], os.Stdout, os.Stderr); err != nil {
			if errors.Is(err, errCommandFailed) {
				os.Exit(1)
			}
			log.Fatalf("cephapi call: %v", err)
		}
		return
	case "commands":
		module := ""
		if len(args) > 1 {
			module = args[1]
		}
		if err := runCommands(module, os.Stdout); err != nil {
			log.Fatalf("cephapi commands: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("cephapi migrate: require subcommand (up, down, status)")
		}
		var err error
		switch sub := args[1]; sub {
		case "up":
			err = runMigrateUp()
		case "status":
			err = runMigrateStatus(os.Stdout)
		case "down":
			err = runMigrateDown()
		default:
			log.Fatalf("cephapi migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		if err != nil {
			log.Fatalf("cephapi migrate %s: %v", args[1], err)
		}
		return
	case "seed":
		source := ""
		if len(args) > 1 {
			source = args[1]
		}
		if err := runSeed(source); err != nil {
			log.Fatalf("cephapi seed: %v", err)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("cephapi clear: %v", err)
		}
		return
	case "ensure-db":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		if err := runEnsureDB(name); err != nil {
			log.Fatalf("cephapi ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("cephapi: %v", err)
	}
}

// callArgs is a parsed "cephapi call" command line.
type callArgs struct {
	Command string
	Pairs   []string
	Inbuf   string
}

func parseCallArgs(args []string) (*callArgs, error) {
	out := &callArgs{}
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch {
		case args[0] == "-i" || args[0] == "--inbuf":
			if len(args) < 2 {
				return nil, fmt.Errorf("%s needs a file", args[0])
			}
			out.Inbuf = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--inbuf="):
			out.Inbuf = strings.TrimPrefix(args[0], "--inbuf=")
			args = args[1:]
		default:
			return nil, fmt.Errorf("unknown flag %q", args[0])
		}
	}
	if len(args) == 0 || args[0] == "" {
		return nil, errors.New("require a command name")
	}
	out.Command = args[0]
	out.Pairs = args[1:]
	return out, nil
}

// cliEnv is the dispatcher stack built for one CLI invocation.
type cliEnv struct {
	reg   *registry.Registry
	disp  *dispatcher.Dispatcher
	close func()
}

func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}

	var (
		nc   *comms.Conn
		pool *pgxpool.Pool
		repo *db.Repository
	)
	closers := []func(){}
	env := &cliEnv{close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}}
	fail := func(err error) (*cliEnv, error) {
		env.close()
		return nil, err
	}

	if cfg.Transport == config.TransportNATS {
		nc, err = commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
		if err != nil {
			return fail(fmt.Errorf("connect NATS: %w", err))
		}
		closers = append(closers, func() { commsutil.Drain(nc) })
	}
	if needsDB(cfg) {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("connect database: %w", err))
		}
		closers = append(closers, pool.Close)
		repo = db.NewRepository(pool)
	}

	admin, closeAdmin, err := server.NewAdmin(cfg, nc)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeAdmin)

	env.reg, err = server.LoadRegistry(ctx, cfg, repo, admin)
	if err != nil {
		return fail(err)
	}
	params := dispatcher.Params{Registry: env.reg, Admin: admin, Publisher: &events.LogPublisher{}}
	if cfg.Audit {
		params.Audit = repo
	}
	env.disp = dispatcher.New(params)
	return env, nil
}

// needsDB reports whether a CLI dispatch has to connect to DATABASE_URL: for the
// db catalog source or to write audit records.
func needsDB(cfg *config.Config) bool {
	return cfg.Audit || (cfg.CatalogFile == "" && cfg.CatalogSource == config.SourceDB)
}

func runCall(args []string, stdout, stderr io.Writer) error {
	ca, err := parseCallArgs(args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	s, err := env.reg.Lookup(ca.Command)
	if err != nil {
		return err
	}
	cmdArgs, err := schema.ParseArgs(s, ca.Pairs)
	if err != nil {
		return err
	}
	var inbuf []byte
	if ca.Inbuf != "" {
		if inbuf, err = os.ReadFile(ca.Inbuf); err != nil {
			return fmt.Errorf("read input buffer: %w", err)
		}
	}

	res, err := env.disp.DispatchInput(ctx, ca.Command, cmdArgs, inbuf)
	if err != nil {
		return err
	}
	return printResult(res, stdout, stderr)
}

// printResult writes the payload to stdout and the status text to stderr.
func printResult(res *dispatcher.Result, stdout, stderr io.Writer) error {
	if !res.OK() {
		fmt.Fprintf(stderr, "Error %d: %s\n", res.Failure.Code, res.Failure.Message)
		return errCommandFailed
	}
	if res.Message != "" {
		fmt.Fprintln(stderr, res.Message)
	}
	if res.Payload == nil {
		return nil
	}
	data, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

func runCommands(module string, stdout io.Writer) error {
	env, err := openEnv(context.Background())
	if err != nil {
		return err
	}
	defer env.close()
	printCommands(env.reg.List(module), stdout)
	return nil
}

func printCommands(cmds []schema.CommandSchema, stdout io.Writer) {
	for i := range cmds {
		fmt.Fprintf(stdout, "%-40s %s\n", cmds[i].Name, cmds[i].CommandPrefix())
	}
}

// openDB loads config and connects to DATABASE_URL for the schema store commands.
func openDB(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func runMigrateUp() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return db.RunMigrations(ctx, pool, migrations)
}

func runMigrateStatus(stdout io.Writer) error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	states, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	for _, st := range states {
		applied := "pending"
		if st.Applied && st.AppliedAt != nil {
			applied = "applied " + st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		} else if st.Applied {
			applied = "applied"
		}
		fmt.Fprintf(stdout, "%-40s %s\n", st.Name, applied)
	}
	return nil
}

func runMigrateDown() error {
	ctx := context.Background()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	name, err := db.MigrationDown(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	fmt.Printf("Rolled back %s.\n", name)
	return nil
}

func runSeed(source string) error {
	ctx := context.Background()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	releases, err := db.SeedCatalog(ctx, db.NewRepository(pool), source)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %s.\n", strings.Join(releases, ", "))
	return nil
}

func runClear() error {
	ctx := context.Background()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.ClearAll(ctx, pool)
}

func runEnsureDB(name string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), cfg.DatabaseURL, name); err != nil {
		return err
	}
	fmt.Println("Database is ready.")
	return nil
}
