package orthoexpr

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// ExpandHome expands ~ to its proper path, where appropriate.
func ExpandHome(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		usr, err := user.Current()
		if err != nil {
			return "", pfx.Err(err)
		}
		p = filepath.Join(usr.HomeDir, p[2:])
	}

	return p, nil
}

// IsGoogleStoragePath reports whether p names an object in Google Storage.
func IsGoogleStoragePath(p string) bool {
	return strings.HasPrefix(p, "gs://")
}

// SplitGoogleStoragePath splits gs://bucket/some/object into its bucket and
// object name.
func SplitGoogleStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// ResolvePath joins name onto dir unless name is already absolute or a Google
// Storage path. dir may itself be a gs:// prefix.
func ResolvePath(dir, name string) string {
	if IsGoogleStoragePath(name) || filepath.IsAbs(name) || dir == "" {
		return name
	}
	if IsGoogleStoragePath(dir) {
		return strings.TrimSuffix(dir, "/") + "/" + path.Clean(name)
	}

	return filepath.Join(dir, name)
}

// MaybeOpenFromGoogleStorage opens p for reading. gs:// paths are read through
// client, which must then be non-nil; anything else is treated as a local file
// with ~ expansion.
func MaybeOpenFromGoogleStorage(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	if IsGoogleStoragePath(p) {
		if client == nil {
			return nil, fmt.Errorf("%s: a Google Storage client is required to read gs:// paths", p)
		}
		bucketName, objectName, err := SplitGoogleStoragePath(p)
		if err != nil {
			return nil, err
		}

		r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
		}

		return r, nil
	}

	local, err := ExpandHome(p)
	if err != nil {
		return nil, err
	}

	return os.Open(local)
}
