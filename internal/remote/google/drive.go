package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/p-n-ai/pai-classroom/internal/remote"
)

// Drive implements remote.Drive.
type Drive struct {
	svc *drive.Service
}

var _ remote.Drive = (*Drive)(nil)

// NewDrive creates a Drive API client.
func NewDrive(ctx context.Context, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// Find looks a file or folder up by exact name. When several match, the
// first is used.
func (d *Drive) Find(ctx context.Context, name, parentID string, folder bool) (string, bool, error) {
	q := []string{fmt.Sprintf("name = '%s'", escapeQuery(name)), "trashed = false"}
	if folder {
		q = append(q, fmt.Sprintf("mimeType = '%s'", folderMimeType))
	} else {
		q = append(q, fmt.Sprintf("mimeType != '%s'", folderMimeType))
	}
	if parentID != "" {
		q = append(q, fmt.Sprintf("'%s' in parents", escapeQuery(parentID)))
	}

	list, err := d.svc.Files.List().
		Q(strings.Join(q, " and ")).
		Spaces("drive").
		Fields(googleapi.Field("files(id, name)")).
		PageSize(10).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, apiError("searching drive", err)
	}

	switch n := len(list.Files); {
	case n == 0:
		return "", false, nil
	case n > 1:
		slog.Warn("several drive files share a name, using the first", "name", name, "matches", n)
	}
	return list.Files[0].Id, true, nil
}

func (d *Drive) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	f := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	created, err := d.svc.Files.Create(f).Fields(googleapi.Field("id")).Context(ctx).Do()
	if err != nil {
		return "", apiError("creating drive folder", err)
	}
	return created.Id, nil
}

func (d *Drive) UploadFile(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	f := &drive.File{Name: name}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	created, err := d.svc.Files.Create(f).Media(r).Fields(googleapi.Field("id")).Context(ctx).Do()
	if err != nil {
		return "", apiError("uploading to drive", err)
	}
	return created.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
