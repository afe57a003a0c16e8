package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pixelgram/internal/config"
	"pixelgram/internal/featureflags"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMediaDir             = "/tmp/pixelgram/media"
	DefaultMediaBaseURL         = "/media"
	DefaultImageMaxUploadSizeMB = 10
	MaxImageDimension           = 800
	MaxSourcePixels             = 40_000_000
	JPEGQuality                 = 80
	WebPQuality                 = 70
)

// UploadInput is an image buffer handed to the Media Store.
type UploadInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Content     []byte
}

// StoredMedia describes a stored image.
type StoredMedia struct {
	URL     string `json:"url"`
	WebPURL string `json:"webp_url,omitempty"`
	Hash    string `json:"hash"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// MediaStore accepts an image buffer and returns a durable URL.
type MediaStore interface {
	Store(ctx context.Context, in UploadInput) (*StoredMedia, error)
	Remove(ctx context.Context, url string) error
}

// LocalMediaStore transcodes images and writes them under a directory
// that the HTTP server exposes read-only.
type LocalMediaStore struct {
	dir                string
	baseURL            string
	maxUploadSizeBytes int64
	flags              *featureflags.Manager
}

// NewLocalMediaStore builds a LocalMediaStore from cfg; cfg and flags may be nil.
func NewLocalMediaStore(cfg *config.Config, flags *featureflags.Manager) *LocalMediaStore {
	dir := DefaultMediaDir
	baseURL := DefaultMediaBaseURL
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB

	if cfg != nil {
		if cfg.MediaDir != "" {
			dir = cfg.MediaDir
		}
		if cfg.MediaBaseURL != "" {
			baseURL = cfg.MediaBaseURL
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
	}

	return &LocalMediaStore{
		dir:                dir,
		baseURL:            strings.TrimRight(baseURL, "/"),
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		flags:              flags,
	}
}

// Dir is the directory media files are written to.
func (s *LocalMediaStore) Dir() string {
	return s.dir
}

// Store validates in, shrinks it to fit 800x800, encodes JPEG (plus a WebP
// sibling when media_webp is on) and writes the files named by content hash.
func (s *LocalMediaStore) Store(ctx context.Context, in UploadInput) (*StoredMedia, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("Image is required")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewValidationError("Invalid image type")
	}

	// The header is enough to size the canvas; a tiny file can declare a
	// huge one, so refuse before the decoder allocates it.
	header, _, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if header.Width <= 0 || header.Height <= 0 || int64(header.Width)*int64(header.Height) > MaxSourcePixels {
		return nil, models.NewValidationError(fmt.Sprintf("Image dimensions too large (max %d megapixels)", MaxSourcePixels/1_000_000))
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMimeType := decodedFormatToMime(format)
	if sourceMimeType == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMimeType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	resized := resizeToFit(decoded, MaxImageDimension, MaxImageDimension)
	encodedJPG, err := encodeJPEG(resized, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	hash := contentHash(encodedJPG)
	jpgName := hash + ".jpg"
	written := []string{filepath.Join(s.dir, jpgName)}
	if err := writeBytesToFile(written[0], encodedJPG); err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.MediaStored.WithLabelValues("jpeg").Inc()

	b := resized.Bounds()
	stored := &StoredMedia{
		URL:    s.baseURL + "/" + jpgName,
		Hash:   hash,
		Width:  b.Dx(),
		Height: b.Dy(),
	}

	if s.webpEnabled(in.UserID) {
		encodedWebP, err := encodeWebP(resized, WebPQuality)
		if err != nil {
			cleanupFiles(written)
			return nil, models.NewInternalError(err)
		}
		webpPath := filepath.Join(s.dir, hash+".webp")
		if err := writeBytesToFile(webpPath, encodedWebP); err != nil {
			cleanupFiles(written)
			return nil, models.NewInternalError(err)
		}
		observability.MediaStored.WithLabelValues("webp").Inc()
		stored.WebPURL = s.baseURL + "/" + hash + ".webp"
	}

	middleware.Logger.DebugContext(ctx, "media stored",
		slog.String("hash", hash),
		slog.String("source_format", format),
		slog.Int("width", stored.Width),
		slog.Int("height", stored.Height))
	return stored, nil
}

// Remove deletes the files behind url. Unknown URLs are ignored.
func (s *LocalMediaStore) Remove(_ context.Context, url string) error {
	hash, ok := s.hashFromURL(url)
	if !ok {
		return nil
	}
	var errs []error
	for _, ext := range []string{".jpg", ".webp"} {
		if err := os.Remove(filepath.Join(s.dir, hash+ext)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *LocalMediaStore) webpEnabled(userID uint) bool {
	return s.flags == nil || s.flags.Enabled(featureflags.MediaWebP, userID)
}

// hashFromURL extracts the content hash from a URL this store issued.
func (s *LocalMediaStore) hashFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return "", false
	}
	name := path.Base(url)
	hash := strings.TrimSuffix(name, path.Ext(name))
	if !isValidContentHash(hash) {
		return "", false
	}
	return hash, true
}

// isValidContentHash checks that the hash is strictly lowercase hex, which
// keeps crafted URLs from escaping the media directory.
func isValidContentHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func cleanupFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
