// Package seed provides helpers to create demo data for development and
// testing. Nothing here runs against production unless asked to.
package seed

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"pixelgram/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// SeedPassword is the password every seeded account logs in with.
const SeedPassword = "password123"

// Factory builds domain entities with fake but plausible content. It does
// not persist anything; the Seeder decides how rows are written.
type Factory struct {
	faker        *gofakeit.Faker
	maxDays      int
	passwordHash string
	now          func() time.Time
}

// NewFactory creates a Factory. A zero seed picks a random one.
func NewFactory(seed int64, maxDays int, passwordHash string) *Factory {
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		faker:        gofakeit.New(seed),
		maxDays:      maxDays,
		passwordHash: passwordHash,
		now:          time.Now,
	}
}

// BuildUser returns an unsaved user. index keeps usernames and emails unique
// within one run.
func (f *Factory) BuildUser(index int) *models.User {
	username := fmt.Sprintf("%s_%d", handle(f.faker.FirstName()), index)
	return &models.User{
		Username:       username,
		Email:          username + "@pixelgram.dev",
		Password:       f.passwordHash,
		Bio:            truncate(f.faker.Sentence(8), 150),
		Gender:         f.pick("male", "female", "other"),
		ProfilePicture: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		CreatedAt:      f.pastTime(),
	}
}

// BuildPost returns an unsaved post by author with a remote placeholder image.
func (f *Factory) BuildPost(author *models.User) *models.Post {
	created := f.pastTime()
	return &models.Post{
		UserID:    author.ID,
		Caption:   f.caption(),
		ImageURL:  fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// BuildComment returns an unsaved comment by author on post.
func (f *Factory) BuildComment(author *models.User, post *models.Post) *models.Comment {
	return &models.Comment{
		UserID: author.ID,
		PostID: post.ID,
		Text:   f.faker.Sentence(f.faker.Number(3, 12)),
	}
}

// MessageText is a short chat line.
func (f *Factory) MessageText() string {
	return f.faker.Sentence(f.faker.Number(2, 10))
}

// Intn returns a pseudo-random int in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

func (f *Factory) caption() string {
	switch f.faker.Number(0, 3) {
	case 0:
		return ""
	case 1:
		return f.faker.HackerPhrase()
	case 2:
		return fmt.Sprintf("%s #%s", f.faker.Sentence(6), handle(f.faker.Noun()))
	default:
		return f.faker.Sentence(10)
	}
}

func (f *Factory) pick(values ...string) string {
	return values[f.faker.Number(0, len(values)-1)]
}

// pastTime spreads timestamps over the last maxDays days.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return f.now().Add(-back)
}

// handle lowercases s and keeps only ASCII letters and digits.
func handle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
