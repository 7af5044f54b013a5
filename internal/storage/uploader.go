// Package storage persists request attachments. Only images are accepted;
// they are embedded into the talep description as markdown so the rows stay
// plain text.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/config"
	"github.com/spec-kit/talep-board/pkg/util"
)

// allowedTypes is the image MIME whitelist.
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Uploader stores one attachment and returns its public URL.
type Uploader interface {
	Save(ctx context.Context, ownerEmail, filename, contentType string, r io.Reader) (string, error)
	MaxFiles() int
}

// DiskStore writes attachments under a local directory served statically.
type DiskStore struct {
	dir        string
	publicBase string
	maxBytes   int64
	maxFiles   int
	logger     *zap.Logger
}

// NewDiskStore builds the store and ensures the directory exists.
func NewDiskStore(cfg config.StorageConfig, logger *zap.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &DiskStore{
		dir:        cfg.Dir,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		maxBytes:   cfg.MaxFileMB << 20,
		maxFiles:   cfg.MaxFiles,
		logger:     logger,
	}, nil
}

// MaxFiles is the per-request attachment cap.
func (s *DiskStore) MaxFiles() int {
	return s.maxFiles
}

// Save validates and writes one attachment. The key is scoped by owner so
// uploads from different users never collide.
func (s *DiskStore) Save(ctx context.Context, ownerEmail, filename, contentType string, r io.Reader) (string, error) {
	if _, ok := allowedTypes[strings.ToLower(contentType)]; !ok {
		return "", util.NewValidationError("only image attachments are accepted",
			map[string]any{"content_type": contentType})
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := s.buildKey(ownerEmail, filename)
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", util.NewInternalError(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", util.NewInternalError(err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		_ = os.Remove(path)
		return "", util.NewInternalError(err)
	}
	if written > s.maxBytes {
		_ = os.Remove(path)
		return "", util.NewValidationError("attachment too large",
			map[string]any{"max_bytes": s.maxBytes})
	}

	s.logger.Info("attachment stored",
		zap.String("key", key), zap.Int64("bytes", written))
	return s.publicBase + "/" + key, nil
}

func (s *DiskStore) buildKey(ownerEmail, filename string) string {
	mailbox := SanitizeName(strings.SplitN(ownerEmail, "@", 2)[0])
	if mailbox == "" {
		mailbox = "anonim"
	}
	stamp := time.Now().UnixMilli()
	nonce := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%d-%s-%s", mailbox, stamp, nonce, SanitizeName(filename))
}

// MarkdownImage renders the embed line appended to a talep description.
func MarkdownImage(alt, url string) string {
	if strings.TrimSpace(alt) == "" {
		alt = "ek"
	}
	return fmt.Sprintf("![%s](%s)", alt, url)
}

// turkishTranslit maps Turkish letters onto their ASCII neighbors so keys
// stay URL-safe.
var turkishTranslit = map[rune]rune{
	'ç': 'c', 'Ç': 'c',
	'ğ': 'g', 'Ğ': 'g',
	'ı': 'i', 'İ': 'i',
	'ö': 'o', 'Ö': 'o',
	'ş': 's', 'Ş': 's',
	'ü': 'u', 'Ü': 'u',
}

// SanitizeName reduces a filename to lowercase ASCII letters, digits, dots,
// dashes and underscores. Turkish letters are transliterated before any
// lowering; ToLower would split dotted İ into a combining sequence. Runs of
// anything else collapse to one dash.
func SanitizeName(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.TrimSpace(name) {
		if mapped, ok := turkishTranslit[r]; ok {
			r = mapped
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastDash = r == '-'
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
