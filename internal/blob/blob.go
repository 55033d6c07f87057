package blob

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store holds original uploads. A locator is the opaque string returned by
// Put; it is what the metadata store persists.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
	// DownloadURL returns a time-limited link to the object.
	DownloadURL(ctx context.Context, locator string) (string, time.Time, error)
}

// DocumentKey is where a document's original file is stored.
func DocumentKey(documentID, filename string) string {
	return "documents/" + documentID + "/" + filename
}

// splitLocator parses "<scheme>://<key>".
func splitLocator(locator, scheme string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(locator, prefix) {
		return "", fmt.Errorf("locator %q is not a %s locator", locator, scheme)
	}
	key := strings.TrimPrefix(locator, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return key, nil
}
