// Package testutil provides shared fixtures for backend tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"pixelgram/internal/auth"
	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestJWTSecret signs tokens in handler and middleware tests.
const TestJWTSecret = "test-secret-key-that-is-at-least-32-chars"

// NewTestDB opens a schema-complete sqlite store that lives for the test.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		Env:      "test",
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "pixelgram_test.db"),
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	db.Logger = db.Logger.LogMode(logger.Silent)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// WithoutForeignKeys runs fn on a single connection with reference checks
// off, so a test can leave rows the schema would otherwise cascade away.
func WithoutForeignKeys(t testing.TB, db *gorm.DB, fn func(tx *gorm.DB)) {
	t.Helper()
	err := db.Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return err
		}
		defer tx.Exec("PRAGMA foreign_keys = ON")
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}

// NewMockDB returns a postgres-dialect gorm handle backed by sqlmock.
func NewMockDB(t testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db, mock
}

// CreateUser inserts a user whose password is "password123".
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := auth.HashPasswordWithCost("password123", 4)
	require.NoError(t, err)
	user := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@example.com", username),
		Password: hash,
	}
	require.NoError(t, db.Omit("Posts").Create(user).Error)
	return user
}

// CreatePost inserts a post authored by userID.
func CreatePost(t testing.TB, db *gorm.DB, userID uint, caption string) *models.Post {
	t.Helper()
	post := &models.Post{
		UserID:   userID,
		Caption:  caption,
		ImageURL: "/media/" + caption + ".jpg",
	}
	require.NoError(t, db.Omit("Author", "Comments").Create(post).Error)
	return post
}

// TinyPNG returns an in-memory PNG with the requested dimensions.
func TinyPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

// PNGHeader returns the signature and IHDR chunk of an RGBA PNG claiming
// the given size. It carries no pixel data.
func PNGHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	buf := bytes.NewBufferString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
