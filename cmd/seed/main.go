// Command main populates the database with demo data for Docket.
package main

import (
	"context"
	"flag"
	"log"

	"docket/internal/bootstrap"
	"docket/internal/config"
	"docket/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	projects := flag.Int("projects", defaults.Projects, "Number of projects to create")
	items := flag.Int("items", defaults.ItemsPerProject, "Items per project")
	depth := flag.Int("depth", defaults.MaxDepth, "Maximum item tree depth")
	pending := flag.Int("pending", defaults.Pending, "Pending change requests per project")
	rejected := flag.Int("rejected", defaults.Rejected, "Rejected change requests per project")
	signOff := flag.Int("signoff-every", defaults.SignOffEvery, "Complete QC/PM sign-off for every n-th approval (0 = none)")
	randSeed := flag.Int64("seed", 0, "Random seed for repeatable data (0 = random)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Docket database seeder")
	log.Printf("Target: %d projects x %d items, depth %d, clean=%v", *projects, *items, *depth, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, _, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	s, err := seed.NewSeeder(db, seed.Options{
		Projects:        *projects,
		ItemsPerProject: *items,
		MaxDepth:        *depth,
		Pending:         *pending,
		Rejected:        *rejected,
		SignOffEvery:    *signOff,
		RandSeed:        *randSeed,
	})
	if err != nil {
		log.Fatalf("Failed to create seeder: %v", err)
	}

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		// The root admin was removed with everything else.
		if err := bootstrap.EnsureDevRootAdmin(ctx, cfg, db); err != nil {
			log.Fatalf("Root admin bootstrap failed: %v", err)
		}
	}

	sum, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d projects, %d items (%d pending, %d rejected, %d signed off)",
		sum.Users, sum.Projects, sum.Items, sum.Pending, sum.Rejected, sum.Completed)
	log.Printf("Log in as admin, inspector, qc, pm, editor or viewer with password %q", seed.DefaultPassword)
}
