package seed

import (
	"context"
	"fmt"
	"log/slog"

	"pixelgram/internal/auth"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 200

// Options configures a seeding run.
type Options struct {
	NumUsers         int
	PostsPerUser     int
	FollowsPerUser   int
	CommentsPerPost  int
	LikesPerPost     int
	BookmarksPerUser int
	Conversations    int
	MessagesPerPair  int
	ShouldClean      bool
	// PasswordCost is the bcrypt cost for the shared seed password; 0 uses
	// the production cost.
	PasswordCost int
	// RandSeed makes a run reproducible; 0 is random.
	RandSeed int64
	MaxDays  int
}

// DefaultOptions is a small but well connected demo graph.
func DefaultOptions() Options {
	return Options{
		NumUsers:         50,
		PostsPerUser:     4,
		FollowsPerUser:   8,
		CommentsPerPost:  3,
		LikesPerPost:     6,
		BookmarksPerUser: 3,
		Conversations:    40,
		MessagesPerPair:  5,
		ShouldClean:      true,
	}
}

// Report counts the rows a run created.
type Report struct {
	Users     int
	Follows   int
	Posts     int
	Comments  int
	Likes     int
	Bookmarks int
	Messages  int
}

// Seeder writes demo data straight to the store.
type Seeder struct {
	db      *gorm.DB
	chats   repository.ChatRepository
	opts    Options
	factory *Factory
}

// NewSeeder hashes the shared password once and returns a Seeder.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	cost := opts.PasswordCost
	if cost == 0 {
		cost = auth.PasswordCost
	}
	hash, err := auth.HashPasswordWithCost(SeedPassword, cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Seeder{
		db:      db,
		chats:   repository.NewChatRepository(db),
		opts:    opts,
		factory: NewFactory(opts.RandSeed, opts.MaxDays, hash),
	}, nil
}

// Run clears the store when asked and then builds the whole graph.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	if s.opts.ShouldClean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear: %w", err)
		}
	}

	report := &Report{}
	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	report.Users = len(users)

	if report.Follows, err = s.SeedFollows(ctx, users, s.opts.FollowsPerUser); err != nil {
		return nil, fmt.Errorf("follows: %w", err)
	}

	posts, err := s.SeedPosts(ctx, users, s.opts.PostsPerUser)
	if err != nil {
		return nil, fmt.Errorf("posts: %w", err)
	}
	report.Posts = len(posts)

	if err := s.SeedEngagement(ctx, users, posts, report); err != nil {
		return nil, fmt.Errorf("engagement: %w", err)
	}

	if report.Messages, err = s.SeedMessages(ctx, users, s.opts.Conversations, s.opts.MessagesPerPair); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", report.Users),
		slog.Int("follows", report.Follows),
		slog.Int("posts", report.Posts),
		slog.Int("comments", report.Comments),
		slog.Int("likes", report.Likes),
		slog.Int("bookmarks", report.Bookmarks),
		slog.Int("messages", report.Messages))
	return report, nil
}

// ClearAll deletes every seeded table, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.Message{}, &models.Conversation{}, &models.Comment{}, &models.Like{},
			&models.Bookmark{}, &models.Follow{}, &models.Post{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.User{}).Error
	})
}

// SeedUsers creates n users sharing SeedPassword.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]*models.User, error) {
	var offset int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Count(&offset).Error; err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, s.factory.BuildUser(int(offset)+i+1))
	}
	if len(users) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Omit("Posts").CreateInBatches(users, batchSize).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SeedFollows gives each user up to perUser distinct followings. Every edge
// is one row, so both sides of the relationship agree.
func (s *Seeder) SeedFollows(ctx context.Context, users []*models.User, perUser int) (int, error) {
	var follows []models.Follow
	for _, u := range users {
		for _, target := range s.sample(users, perUser, u.ID) {
			follows = append(follows, models.Follow{FollowerID: u.ID, FollowingID: target.ID})
		}
	}
	return len(follows), s.insertIgnoringDuplicates(ctx, &follows)
}

// SeedPosts creates perUser posts for every user.
func (s *Seeder) SeedPosts(ctx context.Context, users []*models.User, perUser int) ([]*models.Post, error) {
	var posts []*models.Post
	for _, u := range users {
		for i := 0; i < perUser; i++ {
			posts = append(posts, s.factory.BuildPost(u))
		}
	}
	if len(posts) == 0 {
		return posts, nil
	}
	if err := s.db.WithContext(ctx).Omit("Author", "Comments").CreateInBatches(posts, batchSize).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// SeedEngagement adds comments, likes and bookmarks across posts.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, posts []*models.Post, report *Report) error {
	if len(users) == 0 || len(posts) == 0 {
		return nil
	}

	var comments []*models.Comment
	var likes []models.Like
	for _, p := range posts {
		for i := 0; i < s.opts.CommentsPerPost; i++ {
			comments = append(comments, s.factory.BuildComment(users[s.factory.Intn(len(users))], p))
		}
		for _, u := range s.sample(users, s.opts.LikesPerPost, 0) {
			likes = append(likes, models.Like{UserID: u.ID, PostID: p.ID})
		}
	}

	var bookmarks []models.Bookmark
	for _, u := range users {
		for i := 0; i < s.opts.BookmarksPerUser && i < len(posts); i++ {
			p := posts[s.factory.Intn(len(posts))]
			bookmarks = append(bookmarks, models.Bookmark{UserID: u.ID, PostID: p.ID})
		}
	}

	if len(comments) > 0 {
		if err := s.db.WithContext(ctx).Omit("Author").CreateInBatches(comments, batchSize).Error; err != nil {
			return err
		}
	}
	if err := s.insertIgnoringDuplicates(ctx, &likes); err != nil {
		return err
	}
	if err := s.insertIgnoringDuplicates(ctx, &bookmarks); err != nil {
		return err
	}

	report.Comments = len(comments)
	report.Likes = len(likes)
	report.Bookmarks = countDistinctBookmarks(bookmarks)
	return nil
}

// SeedMessages opens up to pairs conversations and appends perPair messages
// to each, alternating senders.
func (s *Seeder) SeedMessages(ctx context.Context, users []*models.User, pairs, perPair int) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}
	sent := 0
	for i := 0; i < pairs; i++ {
		a := users[s.factory.Intn(len(users))]
		b := users[s.factory.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}
		for j := 0; j < perPair; j++ {
			sender, receiver := a, b
			if j%2 == 1 {
				sender, receiver = b, a
			}
			msg := &models.Message{SenderID: sender.ID, ReceiverID: receiver.ID, Text: s.factory.MessageText()}
			if _, err := s.chats.AppendMessage(ctx, msg); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

// sample picks up to n distinct users, skipping exclude.
func (s *Seeder) sample(users []*models.User, n int, exclude uint) []*models.User {
	if n <= 0 {
		return nil
	}
	picked := make([]*models.User, 0, n)
	seen := make(map[uint]struct{}, n)
	for attempts := 0; len(picked) < n && attempts < n*4; attempts++ {
		u := users[s.factory.Intn(len(users))]
		if u.ID == exclude {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		picked = append(picked, u)
	}
	return picked
}

func (s *Seeder) insertIgnoringDuplicates(ctx context.Context, rows interface{}) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, batchSize).Error
}

func countDistinctBookmarks(bookmarks []models.Bookmark) int {
	seen := make(map[[2]uint]struct{}, len(bookmarks))
	for _, b := range bookmarks {
		seen[[2]uint{b.UserID, b.PostID}] = struct{}{}
	}
	return len(seen)
}
