// Command seed fills a development database with demo content.
package main

import (
	"context"
	"flag"
	"log"

	"folio/internal/bootstrap"
	"folio/internal/config"
	"folio/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of random users to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of random posts to create")
	maxComments := flag.Int("comments", defaults.MaxCommentsPerPost, "Maximum comments per published post")
	maxLikes := flag.Int("likes", defaults.MaxLikesPerPost, "Maximum likes per published post")
	fixtures := flag.String("fixtures", "", "YAML fixture file to apply instead of random data (\"demo\" for the bundled set)")
	randomSeed := flag.Int64("seed", 0, "Random seed, 0 for a random run")
	shouldClean := flag.Bool("clean", false, "Delete all existing data first")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db)

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	var sum *seed.Summary
	switch *fixtures {
	case "":
		opts := defaults
		opts.NumUsers = *numUsers
		opts.NumPosts = *numPosts
		opts.MaxCommentsPerPost = *maxComments
		opts.MaxLikesPerPost = *maxLikes
		opts.Seed = *randomSeed
		sum, err = s.SeedRandom(ctx, opts)
	default:
		var fx *seed.Fixtures
		if *fixtures == "demo" {
			fx, err = seed.DemoFixtures()
		} else {
			fx, err = seed.LoadFixtureFile(*fixtures)
		}
		if err != nil {
			log.Fatalf("Failed to load fixtures: %v", err)
		}
		sum, err = s.ApplyFixtures(ctx, fx)
	}
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d posts (%d published, %d rejected), %d comments, %d likes",
		sum.Users, sum.Posts, sum.Published, sum.Rejected, sum.Comments, sum.Likes)
}
