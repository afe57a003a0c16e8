// Command seed fills the configured store with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	postsPerUser := flag.Int("posts", defaults.PostsPerUser, "Posts per user")
	followsPerUser := flag.Int("follows", defaults.FollowsPerUser, "Followings per user")
	conversations := flag.Int("conversations", defaults.Conversations, "Conversations to open")
	shouldClean := flag.Bool("clean", defaults.ShouldClean, "Clear seeded tables first")
	randSeed := flag.Int64("rand-seed", 0, "Seed for reproducible data (0 is random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production store")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	opts := defaults
	opts.NumUsers = *numUsers
	opts.PostsPerUser = *postsPerUser
	opts.FollowsPerUser = *followsPerUser
	opts.Conversations = *conversations
	opts.ShouldClean = *shouldClean
	opts.RandSeed = *randSeed

	seeder, err := seed.NewSeeder(db, opts)
	if err != nil {
		log.Fatalf("Failed to create seeder: %v", err)
	}
	report, err := seeder.Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("seeded %d users, %d follows, %d posts, %d comments, %d likes, %d bookmarks, %d messages",
		report.Users, report.Follows, report.Posts, report.Comments, report.Likes, report.Bookmarks, report.Messages)
	log.Printf("all seeded users log in with password %q", seed.SeedPassword)
}
