// dbtool performs maintenance against the watchdesk database: wiping
// collected data, pruning stale tokens, and managing trigger groups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"token-watchdesk/internal/config"
	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/storage"
	"token-watchdesk/internal/storage/migrations"
	pgstore "token-watchdesk/internal/storage/postgres"
	"token-watchdesk/internal/watchlist"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	wipe := flag.Bool("wipe", false, "Delete all tokens, trades, subscriptions, and watch metrics (settings and trigger groups survive)")
	pruneMinutes := flag.Int("prune", 0, "Prune unwatched tokens idle longer than this many minutes")
	seedGroups := flag.Bool("seed-groups", false, "Create a starter set of trigger groups")
	listGroups := flag.Bool("list-groups", false, "Print all trigger groups")
	autoResub := flag.String("set-auto-resubscribe", "", "Update the auto_resubscribe setting (true or false)")
	pruneThreshold := flag.Int("set-prune-threshold", -1, "Update prune_threshold_minutes (0 disables periodic pruning)")
	flag.Parse()

	if !*wipe && *pruneMinutes <= 0 && !*seedGroups && !*listGroups &&
		*autoResub == "" && *pruneThreshold < 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		fatal("dbtool requires storage.driver=postgres (driver is %q)", cfg.Storage.Driver)
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, cfg.Storage.DSN)
	if err != nil {
		fatal("connect to postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgres(ctx, pool); err != nil {
		fatal("apply migrations: %v", err)
	}
	db := pgstore.NewDB(pool)

	if *wipe {
		runWipe(ctx, db)
	}
	if *pruneMinutes > 0 {
		runPrune(ctx, db, *pruneMinutes)
	}
	if *seedGroups {
		runSeedGroups(ctx, db)
	}
	if *listGroups {
		runListGroups(ctx, db)
	}
	if *autoResub != "" || *pruneThreshold >= 0 {
		runUpdateSettings(ctx, db, *autoResub, *pruneThreshold)
	}
}

func runWipe(ctx context.Context, db storage.DB) {
	if err := db.Wipe(ctx); err != nil {
		fatal("wipe: %v", err)
	}
	fmt.Println("wiped tokens, trades, subscriptions, and watch metrics")
}

func runPrune(ctx context.Context, db storage.DB, minutes int) {
	registry := watchlist.NewRegistry(db, nil)
	if err := registry.Load(ctx); err != nil {
		fatal("load registry: %v", err)
	}
	stats, err := registry.PruneStale(ctx, time.Duration(minutes)*time.Minute)
	if err != nil {
		fatal("prune: %v", err)
	}
	fmt.Printf("pruned %d tokens and %d orphaned trades (threshold %dm)\n",
		stats.Tokens, stats.OrphanedTrades, minutes)
}

func runSeedGroups(ctx context.Context, db storage.DB) {
	groups := []*domain.TriggerGroup{
		domain.NewTriggerGroup("hot volume", domain.TriggerWatch, domain.OperatorAND,
			domain.NewNumericCondition(domain.MetricVolumeRate, domain.CompareGT, 10),
			domain.NewNumericCondition(domain.MetricBuyPercentage, domain.CompareGT, 60),
		),
		domain.NewTriggerGroup("buy streak", domain.TriggerWatch, domain.OperatorOR,
			domain.NewNumericCondition(domain.MetricConsecutiveBuys, domain.CompareGE, 5),
			domain.NewNumericCondition(domain.MetricBuyCount, domain.CompareGE, 20),
		),
		domain.NewTriggerGroup("gone quiet", domain.TriggerUnwatch, domain.OperatorOR,
			domain.NewNumericCondition(domain.MetricInactiveTime, domain.CompareGT, 30),
			domain.NewNumericCondition(domain.MetricVolumeDecline, domain.CompareGT, 80),
		),
	}
	for _, g := range groups {
		if err := db.TriggerGroups().Put(ctx, g); err != nil {
			fatal("seed group %q: %v", g.Name, err)
		}
		fmt.Printf("created group %q (%s)\n", g.Name, g.ID)
	}
}

func runListGroups(ctx context.Context, db storage.DB) {
	groups, err := db.TriggerGroups().List(ctx)
	if err != nil {
		fatal("list groups: %v", err)
	}
	if len(groups) == 0 {
		fmt.Println("no trigger groups")
		return
	}
	for _, g := range groups {
		state := "disabled"
		if g.Enabled {
			state = "enabled"
		}
		fmt.Printf("%s  %-20s %s/%s %s, %d conditions\n",
			g.ID, g.Name, g.Type, g.Operator, state, len(g.Conditions))
	}
}

// runUpdateSettings writes through to the settings singleton. The
// daemon picks up prune-threshold changes on the pruner's next tick.
func runUpdateSettings(ctx context.Context, db storage.DB, autoResub string, pruneThreshold int) {
	settings, err := db.Settings().Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			fatal("load settings: %v", err)
		}
		settings = &domain.Settings{AutoResubscribe: true}
	}

	if autoResub != "" {
		v, err := strconv.ParseBool(autoResub)
		if err != nil {
			fatal("parse --set-auto-resubscribe: %v", err)
		}
		settings.AutoResubscribe = v
	}
	if pruneThreshold >= 0 {
		settings.PruneThresholdMinutes = pruneThreshold
	}

	if err := db.Settings().Put(ctx, settings); err != nil {
		fatal("update settings: %v", err)
	}
	fmt.Printf("settings updated: auto_resubscribe=%t prune_threshold_minutes=%d\n",
		settings.AutoResubscribe, settings.PruneThresholdMinutes)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
