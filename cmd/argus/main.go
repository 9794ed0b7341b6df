// Command argus is the entry point for every Argus subcommand: health
// checks, schema migration, the Decision and Analysis Workers, the ops
// HTTP server, and the alias-admin toolkit. Run under a process
// supervisor (systemd, Kubernetes) that restarts on exit so a FATAL
// worker error (§7) gets a clean restart rather than staying down.
package main

import (
	"os"

	"horse.fit/argus/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
