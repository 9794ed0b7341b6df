// Package app is the Argus CLI dispatcher: one subcommand per runnable
// surface (health check, DB migration, the two queue workers, the ops HTTP
// server, and the alias-admin toolkit of §6.4); the cluster maintenance
// loop runs inside the analysis subcommand. Grounded on Run/printUsage in
// janitrai-scoop/backend/internal/app/app.go.
package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command named by args[0] and returns a process
// exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	case "decision":
		return runDecision(args[1:])
	case "analysis":
		return runAnalysis(args[1:])
	case "serve":
		return runServe(args[1:])
	case "alias":
		return runAlias(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "argus CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  argus <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  migrate   Apply pending schema migrations")
	fmt.Fprintln(os.Stderr, "  decision  Run the Decision Worker drain loop")
	fmt.Fprintln(os.Stderr, "  analysis  Run the Analysis Worker drain loop plus maintenance")
	fmt.Fprintln(os.Stderr, "  serve     Start the ops HTTP server (/healthz, /readyz, /metrics)")
	fmt.Fprintln(os.Stderr, "  alias     Alias Repository admin: migrate_static, add, test,")
	fmt.Fprintln(os.Stderr, "            create_review_batch, review_batch, stats")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"argus <command> -h\" for command-specific flags.")
}
