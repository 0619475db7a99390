// Package remote describes the classroom and Drive capabilities the
// reconciliation engine consumes, and the course snapshot it diffs against.
package remote

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// ErrNotFound is wrapped by implementations when the course or item addressed
// does not exist.
var ErrNotFound = errors.New("not found")

// Coursework publication states.
const (
	StatePublished = "PUBLISHED"
	StateDraft     = "DRAFT"
)

// Update mask fields understood by Classroom.UpdateCoursework.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldDue         = "due"
	FieldPoints      = "maxPoints"
	FieldScheduled   = "scheduledTime"
)

// Topic is a remote topic.
type Topic struct {
	ID   string
	Name string
}

// Coursework is a remote coursework item or material post.
type Coursework struct {
	ID          string
	TopicID     string
	Title       string
	Kind        course.ItemKind
	Description string
	Due         *time.Time
	Points      *float64
	State       string
	Scheduled   *time.Time
	Materials   []Material
}

// Material is an attachment on a remote item. Drive and YouTube materials
// carry an ID; links and forms carry a URL.
type Material struct {
	Kind  course.MaterialKind
	ID    string
	URL   string
	Title string
}

// Identities returns the keys under which m is recognized when deciding
// whether a declared material is already attached. Drive files are known by
// id and by title, so a re-run matches files it uploaded earlier.
func (m Material) Identities() []string {
	switch m.Kind {
	case course.MaterialDriveFile, course.MaterialDriveFolder:
		ids := []string{"drive:" + m.ID}
		if m.Title != "" {
			ids = append(ids, "drive-title:"+m.Title)
		}
		return ids
	case course.MaterialYouTube:
		return []string{"youtube:" + m.ID}
	case course.MaterialForm:
		return []string{"form:" + m.URL}
	default:
		return []string{"link:" + m.URL}
	}
}

// CourseworkPayload is the body of a create or update call. Fields is the
// update mask and is ignored on create.
type CourseworkPayload struct {
	Title       string
	Kind        course.ItemKind
	TopicID     string
	Description string
	Due         *time.Time
	Points      *float64
	Scheduled   *time.Time
	Choices     []string
	// Materials are attached at creation and ignored by updates.
	Materials   []Material
	Fields      []string
}

// Classroom is the coursework capability of a classroom service. Calls return
// terminal errors; retries belong to the implementation.
type Classroom interface {
	ListTopics(ctx context.Context, courseID string) ([]Topic, error)
	ListCoursework(ctx context.Context, courseID string) ([]Coursework, error)
	CreateTopic(ctx context.Context, courseID, name string) (string, error)
	CreateCoursework(ctx context.Context, courseID string, p CourseworkPayload) (string, error)
	UpdateCoursework(ctx context.Context, courseID, id string, p CourseworkPayload) error
	AttachMaterial(ctx context.Context, courseID, courseworkID string, kind course.ItemKind, m Material) error
}

// Courses finds and creates courses.
type Courses interface {
	FindCourse(ctx context.Context, name string) (string, bool, error)
	CreateCourse(ctx context.Context, name string) (string, error)
}

// Drive stores uploaded materials. parentID may be empty for the root folder.
type Drive interface {
	Find(ctx context.Context, name, parentID string, folder bool) (string, bool, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, name, parentID string, r io.Reader) (string, error)
}
