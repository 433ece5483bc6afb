// Command ledger-check opens a ledger snapshot database and re-runs the
// consistency rules offline, reporting any violations without modifying
// state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"supplyledger/internal/core"
	"supplyledger/internal/infra/persistence/sqlite"
	"supplyledger/pkg/domain"
)

var exitFunc = os.Exit

type report struct {
	Database   string             `json:"database"`
	Products   int                `json:"products"`
	Violations []domain.Violation `json:"violations"`
}

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledger-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var dbPath string
	var asJSON bool
	fs.StringVar(&dbPath, "db", "supplyledger.db", "path to the sqlite snapshot database")
	fs.BoolVar(&asJSON, "json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rep, err := run(context.Background(), dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "ledger check failed: %v\n", err)
		return 1
	}
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "encode report: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintf(stdout, "checked %d products in %s\n", rep.Products, rep.Database)
		for _, v := range rep.Violations {
			fmt.Fprintf(stdout, "%s %s: %s (%s %s)\n", v.Severity, v.Rule, v.Message, v.Entity, v.EntityID)
		}
	}
	if len(rep.Violations) > 0 {
		fmt.Fprintf(stderr, "%d violation(s) found\n", len(rep.Violations))
		return 1
	}
	if !asJSON {
		fmt.Fprintln(stdout, "ledger is consistent")
	}
	return 0
}

func run(ctx context.Context, dbPath string) (report, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return report{}, fmt.Errorf("open database: %w", err)
	}
	engine := core.DefaultRulesEngine()
	store, err := sqlite.NewStore(dbPath, engine)
	if err != nil {
		return report{}, err
	}
	defer store.Close()

	rep := report{Database: dbPath}
	err = store.View(ctx, func(view domain.TransactionView) error {
		rep.Products = len(view.ListProducts())
		result, evalErr := engine.Evaluate(ctx, view, nil)
		if evalErr != nil {
			return evalErr
		}
		rep.Violations = result.Violations
		return nil
	})
	if err != nil {
		return report{}, err
	}
	return rep, nil
}
