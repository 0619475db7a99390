// Package materials classifies declared attachments into normalized material
// references. It performs no I/O.
package materials

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

var (
	// ErrUnsupportedMaterialKind is returned for kinds outside the recognized set.
	ErrUnsupportedMaterialKind = errors.New("unsupported material kind")
	// ErrInvalidSource is returned when the locator does not fit the kind.
	ErrInvalidSource = errors.New("invalid material source")
)

var (
	driveIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	driveURLPattern  = regexp.MustCompile(`/(?:file|document|spreadsheets|presentation|forms|drawings)/d/([A-Za-z0-9_-]+)`)
	folderURLPattern = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// Normalize converts raw into a MaterialRef tagged by exactly one kind.
func Normalize(raw course.RawMaterial) (course.MaterialRef, error) {
	kind := course.MaterialKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
	source := strings.TrimSpace(raw.Source)
	ref := course.MaterialRef{
		Kind:   kind,
		Source: source,
		Title:  strings.TrimSpace(raw.Title),
	}

	if source == "" {
		if !known(kind) {
			return course.MaterialRef{}, fmt.Errorf("%w: %q", ErrUnsupportedMaterialKind, raw.Kind)
		}
		return course.MaterialRef{}, fmt.Errorf("%w: %s source is empty", ErrInvalidSource, kind)
	}

	switch kind {
	case course.MaterialLink, course.MaterialForm:
		u, err := url.Parse(source)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return course.MaterialRef{}, fmt.Errorf("%w: %s needs an http(s) URL, got %q", ErrInvalidSource, kind, source)
		}
		ref.RemoteID = u.String()
	case course.MaterialYouTube:
		id, ok := youtubeID(source)
		if !ok {
			return course.MaterialRef{}, fmt.Errorf("%w: no YouTube video id in %q", ErrInvalidSource, source)
		}
		ref.RemoteID = id
	case course.MaterialDriveFile, course.MaterialDriveFolder:
		if id, ok := driveID(source); ok {
			ref.RemoteID = id
			break
		}
		if isURL(source) {
			return course.MaterialRef{}, fmt.Errorf("%w: %q is not a Drive URL", ErrInvalidSource, source)
		}
		ref.NeedsUpload = true
		ref.LocalPath = filepath.Clean(source)
		if ref.Title == "" {
			ref.Title = filepath.Base(ref.LocalPath)
		}
	default:
		return course.MaterialRef{}, fmt.Errorf("%w: %q", ErrUnsupportedMaterialKind, raw.Kind)
	}

	return ref, nil
}

func known(k course.MaterialKind) bool {
	switch k {
	case course.MaterialLink, course.MaterialDriveFile, course.MaterialDriveFolder, course.MaterialYouTube, course.MaterialForm:
		return true
	default:
		return false
	}
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// driveID extracts a Drive id from a Drive URL or accepts a bare id. Bare ids
// never contain path separators or dots, which keeps local paths such as
// "slides.pdf" or "week1/notes" on the upload side.
func driveID(s string) (string, bool) {
	if isURL(s) {
		u, _ := url.Parse(s)
		host := strings.ToLower(u.Host)
		if host != "drive.google.com" && host != "docs.google.com" {
			return "", false
		}
		if m := driveURLPattern.FindStringSubmatch(u.Path); m != nil {
			return m[1], true
		}
		if m := folderURLPattern.FindStringSubmatch(u.Path); m != nil {
			return m[1], true
		}
		if id := u.Query().Get("id"); id != "" {
			return id, true
		}
		return "", false
	}
	if driveIDPattern.MatchString(s) {
		return s, true
	}
	return "", false
}

func youtubeID(s string) (string, bool) {
	if youtubeIDPattern.MatchString(s) {
		return s, true
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) == 2 {
				id = parts[1]
			}
		}
	}
	if !youtubeIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// Identity returns the key used to recognize an attachment that is already
// present on a remote item. Upload-pending files are recognized by title since
// their Drive id is unknown until upload.
func Identity(ref course.MaterialRef) string {
	if ref.NeedsUpload {
		return "drive-title:" + ref.Title
	}
	switch ref.Kind {
	case course.MaterialDriveFile, course.MaterialDriveFolder:
		return "drive:" + ref.RemoteID
	case course.MaterialYouTube:
		return "youtube:" + ref.RemoteID
	case course.MaterialForm:
		return "form:" + ref.RemoteID
	default:
		return "link:" + ref.RemoteID
	}
}
