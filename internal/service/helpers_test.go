package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pixelgram/internal/auth"
	"pixelgram/internal/cache"
	"pixelgram/internal/models"
	"pixelgram/internal/notifications"
	"pixelgram/internal/repository"
	"pixelgram/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// mediaStoreStub records stored and removed URLs without touching disk.
type mediaStoreStub struct {
	mu       sync.Mutex
	stored   []string
	removed  []string
	storeErr error
}

func (m *mediaStoreStub) Store(_ context.Context, in UploadInput) (*StoredMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	url := "/media/" + contentHash(in.Content) + ".jpg"
	m.stored = append(m.stored, url)
	return &StoredMedia{URL: url, Hash: contentHash(in.Content)}, nil
}

func (m *mediaStoreStub) Remove(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, url)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	redis    *miniredis.Miniredis
	cache    *cache.Cache
	media    *mediaStoreStub
	tokens   *auth.TokenManager
	store    StoreOptions
	users    *UserService
	posts    *PostService
	comments *CommentService
	messages *MessageService
	repair   *RepairService

	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	chatRepo    repository.ChatRepository
	maintenance repository.MaintenanceRepository
}

type envOption func(*testEnv)

func withPostRepo(wrap func(repository.PostRepository) repository.PostRepository) envOption {
	return func(e *testEnv) { e.postRepo = wrap(e.postRepo) }
}

func withChatRepo(wrap func(repository.ChatRepository) repository.ChatRepository) envOption {
	return func(e *testEnv) { e.chatRepo = wrap(e.chatRepo) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &testEnv{
		db:          db,
		redis:       mr,
		cache:       cache.New(rdb),
		media:       &mediaStoreStub{},
		tokens:      auth.NewTokenManager(testutil.TestJWTSecret, time.Hour),
		store:       StoreOptions{Timeout: 2 * time.Second, RetryAttempts: 3, InitialBackoff: time.Millisecond},
		userRepo:    repository.NewUserRepository(db),
		postRepo:    repository.NewPostRepository(db),
		chatRepo:    repository.NewChatRepository(db),
		maintenance: repository.NewMaintenanceRepository(db),
	}
	for _, opt := range opts {
		opt(e)
	}

	notifier := notifications.NewNotifier(rdb, nil)
	follows := repository.NewFollowRepository(db)
	bookmarks := repository.NewBookmarkRepository(db)
	comments := repository.NewCommentRepository(db)

	e.users = NewUserService(e.userRepo, follows, e.maintenance, e.tokens, e.media, e.cache, notifier, e.store).WithPasswordCost(4)
	e.posts = NewPostService(e.postRepo, e.userRepo, bookmarks, e.maintenance, e.media, e.cache, notifier, e.store)
	e.comments = NewCommentService(comments, e.postRepo, notifier, e.store)
	e.messages = NewMessageService(e.chatRepo, e.userRepo, notifier, e.store)
	e.repair = NewRepairService(e.maintenance, e.cache, e.store)
	return e
}

func (e *testEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func (e *testEnv) createPost(t *testing.T, authorID uint, caption string) *models.Post {
	t.Helper()
	post, err := e.posts.CreatePost(context.Background(), CreatePostInput{
		AuthorID: authorID,
		Caption:  caption,
		Image:    &UploadInput{Content: []byte("image-" + caption), ContentType: "image/png"},
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
