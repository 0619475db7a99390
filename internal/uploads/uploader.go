// Package uploads puts local plan files into Drive so they can be attached
// to coursework. Content already uploaded is reused instead of duplicated.
package uploads

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

// Config holds the uploader dependencies. FS defaults to the OS file system
// and Cache to a MemoryCache. ParentID is the Drive folder uploads land in;
// empty means the Drive root.
type Config struct {
	Drive    remote.Drive
	FS       afero.Fs
	Cache    Cache
	ParentID string
}

// Uploader uploads files and folders referenced by upload-pending materials.
// It is safe for concurrent use: callers racing on the same content or folder
// share one lookup and at most one upload.
type Uploader struct {
	drive    remote.Drive
	fs       afero.Fs
	cache    Cache
	parentID string
	flight   singleflight.Group
}

// New creates an uploader.
func New(cfg Config) *Uploader {
	u := &Uploader{
		drive:    cfg.Drive,
		fs:       cfg.FS,
		cache:    cfg.Cache,
		parentID: cfg.ParentID,
	}
	if u.fs == nil {
		u.fs = afero.NewOsFs()
	}
	if u.cache == nil {
		u.cache = NewMemoryCache()
	}
	return u
}

// Upload stores ref.LocalPath in Drive under ref.Title and returns the Drive
// material to attach. Folders are mirrored with their contents.
func (u *Uploader) Upload(ctx context.Context, ref course.MaterialRef) (remote.Material, error) {
	if !ref.NeedsUpload {
		return remote.Material{}, fmt.Errorf("%s does not need an upload", ref.Source)
	}
	info, err := u.fs.Stat(ref.LocalPath)
	if err != nil {
		return remote.Material{}, fmt.Errorf("stat %s: %w", ref.LocalPath, err)
	}

	var id string
	switch {
	case ref.Kind == course.MaterialDriveFolder && info.IsDir():
		id, err = u.folder(ctx, ref.LocalPath, ref.Title, u.parentID)
	case ref.Kind == course.MaterialDriveFile && !info.IsDir():
		id, err = u.file(ctx, ref.LocalPath, ref.Title, u.parentID)
	default:
		err = fmt.Errorf("%s does not match material kind %s", ref.LocalPath, ref.Kind)
	}
	if err != nil {
		return remote.Material{}, err
	}
	return remote.Material{Kind: ref.Kind, ID: id, Title: ref.Title}, nil
}

func (u *Uploader) file(ctx context.Context, path, name, parentID string) (string, error) {
	data, err := afero.ReadFile(u.fs, path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	key := Fingerprint(data, name, parentID)

	v, err, shared := u.flight.Do("file:"+key, func() (any, error) {
		return u.storeFile(ctx, key, path, name, parentID, data)
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.Debug("upload shared", "path", path, "drive_id", v)
	}
	return v.(string), nil
}

// storeFile returns the Drive id for data, uploading it only when neither the
// cache nor a Drive lookup by name knows it. The cache is updated before the
// flight ends so later callers never reach Drive.
func (u *Uploader) storeFile(ctx context.Context, key, path, name, parentID string, data []byte) (string, error) {
	if id, ok, err := u.cache.Get(ctx, key); err != nil {
		slog.Warn("upload cache unavailable", "path", path, "error", err)
	} else if ok {
		slog.Debug("upload cache hit", "path", path, "drive_id", id)
		return id, nil
	}

	id, found, err := u.drive.Find(ctx, name, parentID, false)
	if err != nil {
		return "", fmt.Errorf("looking up %s in Drive: %w", name, err)
	}
	if !found {
		id, err = u.drive.UploadFile(ctx, name, parentID, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("uploading %s: %w", path, err)
		}
		slog.Info("file uploaded", "path", path, "drive_id", id, "bytes", len(data))
	}

	if err := u.cache.Set(ctx, key, id); err != nil {
		slog.Warn("upload cache unavailable", "path", path, "error", err)
	}
	return id, nil
}

func (u *Uploader) folder(ctx context.Context, path, name, parentID string) (string, error) {
	v, err, _ := u.flight.Do("folder:"+parentID+"/"+name, func() (any, error) {
		id, found, err := u.drive.Find(ctx, name, parentID, true)
		if err != nil {
			return "", fmt.Errorf("looking up folder %s in Drive: %w", name, err)
		}
		if found {
			return id, nil
		}
		if id, err = u.drive.CreateFolder(ctx, name, parentID); err != nil {
			return "", fmt.Errorf("creating folder %s: %w", name, err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	id := v.(string)

	entries, err := afero.ReadDir(u.fs, path)
	if err != nil {
		return "", fmt.Errorf("reading folder %s: %w", path, err)
	}
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		if e.IsDir() {
			_, err = u.folder(ctx, child, e.Name(), id)
		} else {
			_, err = u.file(ctx, child, e.Name(), id)
		}
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

// Fingerprint keys uploaded content by its BLAKE2b-256 digest, the Drive name
// and the destination folder.
func Fingerprint(data []byte, name, parentID string) string {
	sum := blake2b.Sum256(data)
	return parentID + "/" + name + "/" + hex.EncodeToString(sum[:])
}
