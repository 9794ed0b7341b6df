package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"horse.fit/argus/internal/cli"
	"horse.fit/argus/internal/config"
	"horse.fit/argus/internal/db"
	"horse.fit/argus/internal/entity"
	"horse.fit/argus/internal/logging"
)

// runAlias dispatches §6.4's alias-admin subcommands. Grounded on the
// clap Subcommand enum and match arms of
// original_source/src/bin/manage_aliases.rs, translated from an
// interactive stdin review loop into a Go flag-based CLI in the
// same idiom as the rest of this dispatcher. Colorized output is
// grounded on fatih/color usage in the retrieved CLI example repos.
func runAlias(args []string) int {
	if len(args) == 0 {
		printAliasUsage()
		return 2
	}

	sub, rest := args[0], args[1:]
	switch strings.ToLower(strings.TrimSpace(sub)) {
	case "migrate_static":
		return runAliasMigrateStatic(rest)
	case "add":
		return runAliasAdd(rest)
	case "test":
		return runAliasTest(rest)
	case "create_review_batch":
		return runAliasCreateReviewBatch(rest)
	case "review_batch":
		return runAliasReviewBatch(rest)
	case "stats":
		return runAliasStats(rest)
	case "help", "--help", "-h":
		printAliasUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown alias subcommand: %s\n\n", sub)
		printAliasUsage()
		return 2
	}
}

func printAliasUsage() {
	fmt.Fprintln(os.Stderr, "argus alias <subcommand> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Subcommands:")
	fmt.Fprintln(os.Stderr, "  migrate_static                         Count existing STATIC-source aliases")
	fmt.Fprintln(os.Stderr, "  add -canonical -alias -type [-source] [-confidence]")
	fmt.Fprintln(os.Stderr, "  test -a -b -type                       Compare in-memory vs DB-backed match")
	fmt.Fprintln(os.Stderr, "  create_review_batch -size")
	fmt.Fprintln(os.Stderr, "  review_batch -size [-reviewer]          Interactive approve/reject")
	fmt.Fprintln(os.Stderr, "  stats                                   Pattern approve/reject tallies")
}

// aliasBootstrap loads config/logger/pool the way every other subcommand
// does, plus the Alias Repository and Normalizer the alias subcommands
// need.
func aliasBootstrap(fs *flag.FlagSet, args []string) (*db.Pool, *entity.AliasRepository, *entity.Normalizer, func(), int) {
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, nil, func() {}, 0
		}
		return nil, nil, nil, func() {}, 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, nil, nil, func() {}, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, nil, nil, func() {}, 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("alias command startup failed")
		return nil, nil, nil, func() {}, 1
	}

	thresholds := entity.NewThresholdSet(
		cfg.FuzzyPersonJaroWinkler, cfg.FuzzyPersonLevenshtein,
		cfg.FuzzyOrgJaroWinkler, cfg.FuzzyOrgLevenshtein,
		cfg.FuzzyLocationJaroWinkler, cfg.FuzzyLocationLevenshtein,
		cfg.FuzzyProductJaroWinkler, cfg.FuzzyProductLevenshtein,
	)
	aliasRepo := entity.NewAliasRepository(pool, time.Duration(cfg.AliasCacheTTLMinutes)*time.Minute, cfg.AliasCacheMaxEntries, thresholds)
	normalizer := entity.NewNormalizer(pool, aliasRepo, thresholds)

	return pool, aliasRepo, normalizer, func() { pool.Close() }, -1
}

// runAliasMigrateStatic reports how many STATIC-source aliases already
// live in the table. The static hardcoded alias maps this once migrated
// no longer exist in this system — the Alias Repository has been
// database-driven since §4.D — so this command is kept only for parity
// with the original tool, per its own "deprecated but kept for backward
// compatibility" note.
func runAliasMigrateStatic(args []string) int {
	fs := flag.NewFlagSet("alias migrate_static", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pool, _, _, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const q = `SELECT COUNT(*) FROM entity_aliases WHERE source = $1`
	var count int
	if err := pool.QueryRow(ctx, q, db.AliasSourceStatic).Scan(&count); err != nil {
		fmt.Fprintf(os.Stderr, "migrate_static failed: %v\n", err)
		return 1
	}
	fmt.Printf("found %d existing static aliases in the database\n", count)
	return 0
}

func runAliasAdd(args []string) int {
	fs := flag.NewFlagSet("alias add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	canonical := fs.String("canonical", "", "Canonical entity name")
	alias := fs.String("alias", "", "Alias text")
	entityType := fs.String("type", "", "Entity type (person, organization, location, product, event)")
	source := fs.String("source", db.AliasSourceUser, "Alias source")
	confidence := fs.Float64("confidence", 1.0, "Confidence score (0.0-1.0)")

	_, aliasRepo, _, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	if strings.TrimSpace(*canonical) == "" || strings.TrimSpace(*alias) == "" || strings.TrimSpace(*entityType) == "" {
		fmt.Fprintln(os.Stderr, "alias add requires -canonical, -alias, and -type")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := aliasRepo.ProposeAlias(ctx, *canonical, *alias, *entityType, *source, nil, *confidence)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alias add failed: %v\n", err)
		return 1
	}
	if id == 0 {
		fmt.Println("alias not added (duplicate or identical normalized form)")
		return 0
	}
	color.Green("added alias #%d: %s -> %s (%s)", id, *alias, *canonical, *entityType)
	return 0
}

func runAliasTest(args []string) int {
	fs := flag.NewFlagSet("alias test", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	a := fs.String("a", "", "First entity name")
	b := fs.String("b", "", "Second entity name")
	entityType := fs.String("type", "", "Entity type")

	_, aliasRepo, normalizer, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	if strings.TrimSpace(*a) == "" || strings.TrimSpace(*b) == "" || strings.TrimSpace(*entityType) == "" {
		fmt.Fprintln(os.Stderr, "alias test requires -a, -b, and -type")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	normA := normalizer.Normalize(*a, *entityType)
	normB := normalizer.Normalize(*b, *entityType)

	inMemory := normalizer.Match(ctx, *a, *b, *entityType)
	dbMatch, err := aliasRepo.AreEquivalent(ctx, normA, normB, *entityType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alias test failed: %v\n", err)
		return 1
	}

	fmt.Printf("Testing if %q matches %q as %s entities:\n", *a, *b, *entityType)
	printMatchLine("in-memory match", inMemory.Match)
	printMatchLine("database-backed match", dbMatch)
	fmt.Printf("  - normalized form of %q: %q\n", *a, normA)
	fmt.Printf("  - normalized form of %q: %q\n", *b, normB)
	return 0
}

func printMatchLine(label string, matched bool) {
	if matched {
		color.Green("  - %s: true", label)
		return
	}
	color.Red("  - %s: false", label)
}

func runAliasCreateReviewBatch(args []string) int {
	fs := flag.NewFlagSet("alias create_review_batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	size := fs.Int64("size", 20, "Number of pending aliases to include")

	pool, _, _, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := pool.GetPendingAliasesForReview(ctx, int(*size))
	if err != nil {
		fmt.Fprintf(os.Stderr, "create_review_batch failed: %v\n", err)
		return 1
	}
	fmt.Printf("created review batch with %d of up to %d pending aliases\n", len(batch), *size)
	for _, a := range batch {
		fmt.Printf("  #%d  %s -> %s  (%s, confidence %.2f)\n", a.ID, a.AliasName, a.CanonicalName, a.EntityType, a.Confidence)
	}
	return 0
}

// runAliasReviewBatch interactively walks a batch of pending aliases,
// approving/rejecting one at a time. Grounded on the Approve(a)/Reject(r)/
// Skip(s) stdin loop of manage_aliases.rs's ReviewBatch arm.
func runAliasReviewBatch(args []string) int {
	fs := flag.NewFlagSet("alias review_batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	size := fs.Int("size", 20, "Maximum pending aliases to review in this pass")
	reviewer := fs.String("reviewer", "cli-user", "Reviewer identity recorded on approve/reject")

	pool, aliasRepo, _, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pending, err := pool.GetPendingAliasesForReview(ctx, *size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "review_batch failed: %v\n", err)
		return 1
	}
	if len(pending) == 0 {
		fmt.Println("no pending aliases found")
		return 0
	}

	fmt.Printf("found %d aliases to review\n", len(pending))
	reader := bufio.NewReader(os.Stdin)
	for idx, a := range pending {
		fmt.Printf("\nReview %d/%d: %s <-> %s (%s)\n", idx+1, len(pending), a.CanonicalName, a.AliasName, a.EntityType)
		fmt.Printf("Source: %s, Confidence: %.2f\n", a.Source, a.Confidence)
		fmt.Print("Approve (a), Reject (r), or Skip (s)? ")

		line, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a":
			if err := aliasRepo.Approve(ctx, a.ID, *reviewer, a.PatternID); err != nil {
				fmt.Fprintf(os.Stderr, "approve #%d failed: %v\n", a.ID, err)
				continue
			}
			color.Green("approved alias #%d", a.ID)
		case "r":
			reason := "other"
			if err := aliasRepo.Reject(ctx, a.ID, *reviewer, a.CanonicalName, a.AliasName, a.EntityType, reason, a.PatternID); err != nil {
				fmt.Fprintf(os.Stderr, "reject #%d failed: %v\n", a.ID, err)
				continue
			}
			color.Red("rejected alias #%d", a.ID)
		default:
			fmt.Printf("skipped alias #%d\n", a.ID)
		}
	}
	fmt.Printf("\ncompleted review of %d aliases\n", len(pending))
	return 0
}

func runAliasStats(args []string) int {
	fs := flag.NewFlagSet("alias stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	pool, _, _, closeFn, code := aliasBootstrap(fs, args)
	if code >= 0 {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := pool.GetPatternStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		return 1
	}
	if len(stats) == 0 {
		fmt.Println("no pattern statistics recorded yet")
		return 0
	}
	for _, s := range stats {
		total := s.Approved + s.Rejected
		rate := 0.0
		if total > 0 {
			rate = float64(s.Approved) / float64(total)
		}
		status := "enabled"
		if !s.Enabled {
			status = color.RedString("disabled")
		}
		fmt.Printf("%-16s approved=%-5d rejected=%-5d approve_rate=%.2f  %s\n", s.PatternID, s.Approved, s.Rejected, rate, status)
	}
	return 0
}
