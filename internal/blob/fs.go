package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docrag/internal/util"
)

const fsScheme = "fs"

// FSStore keeps blobs under a local root. Download links point at the api's
// /blobs/ route and carry an HMAC over key and expiry.
type FSStore struct {
	root    string
	baseURL string
	key     []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewFSStore(root, publicBaseURL, signingKey string, ttl time.Duration) (*FSStore, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, errors.New("fs blob store requires a signing key")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := util.EnsureDir(root); err != nil {
		return nil, err
	}
	return &FSStore{
		root:    root,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		key:     []byte(signingKey),
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := util.WriteFileAtomic(s.path(key), data); err != nil {
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return fsScheme + "://" + key, nil
}

func (s *FSStore) Get(ctx context.Context, locator string) ([]byte, error) {
	key, err := splitLocator(locator, fsScheme)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s", util.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return b, nil
}

func (s *FSStore) Delete(ctx context.Context, locator string) error {
	key, err := splitLocator(locator, fsScheme)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) DownloadURL(ctx context.Context, locator string) (string, time.Time, error) {
	key, err := splitLocator(locator, fsScheme)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := os.Stat(s.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", time.Time{}, fmt.Errorf("%w: blob %s", util.ErrNotFound, key)
		}
		return "", time.Time{}, fmt.Errorf("stat blob %s: %w", key, err)
	}
	exp := s.now().Add(s.ttl).Truncate(time.Second)
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp.Unix(), 10))
	q.Set("sig", s.sign(key, exp.Unix()))
	return s.baseURL + "/blobs/" + escapeKey(key) + "?" + q.Encode(), exp, nil
}

// Open verifies a signed link and returns the blob path to serve.
func (s *FSStore) Open(key, exp, sig string) (string, error) {
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad expiry", util.ErrNotFound)
	}
	if s.now().Unix() > unix {
		return "", fmt.Errorf("%w: link expired", util.ErrNotFound)
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(key, unix))) {
		return "", fmt.Errorf("%w: bad signature", util.ErrNotFound)
	}
	if _, err := splitLocator(fsScheme+"://"+key, fsScheme); err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrNotFound, err)
	}
	return s.path(key), nil
}

func (s *FSStore) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
