package google

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/classroom/v1"
	"google.golang.org/api/googleapi"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

const (
	workTypeAssignment     = "ASSIGNMENT"
	workTypeShortAnswer    = "SHORT_ANSWER_QUESTION"
	workTypeMultipleChoice = "MULTIPLE_CHOICE_QUESTION"

	assigneeAllStudents     = "ALL_STUDENTS"
	modifiableUntilTurnedIn = "MODIFIABLE_UNTIL_TURNED_IN"
	shareModeView           = "VIEW"
	folderMimeType          = "application/vnd.google-apps.folder"
)

func workType(k course.ItemKind) string {
	switch k {
	case course.KindShortAnswer:
		return workTypeShortAnswer
	case course.KindMultipleChoice:
		return workTypeMultipleChoice
	default:
		return workTypeAssignment
	}
}

func itemKind(workType string) course.ItemKind {
	switch workType {
	case workTypeShortAnswer:
		return course.KindShortAnswer
	case workTypeMultipleChoice:
		return course.KindMultipleChoice
	default:
		return course.KindAssignment
	}
}

// dueFields splits t into the UTC date and time of day Classroom expects.
func dueFields(t time.Time) (*classroom.Date, *classroom.TimeOfDay) {
	u := t.UTC()
	return &classroom.Date{Year: int64(u.Year()), Month: int64(u.Month()), Day: int64(u.Day())},
		&classroom.TimeOfDay{Hours: int64(u.Hour()), Minutes: int64(u.Minute())}
}

func dueTime(d *classroom.Date, tod *classroom.TimeOfDay) *time.Time {
	if d == nil || d.Year == 0 {
		return nil
	}
	var h, m int
	if tod != nil {
		h, m = int(tod.Hours), int(tod.Minutes)
	}
	t := time.Date(int(d.Year), time.Month(d.Month), int(d.Day), h, m, 0, 0, time.UTC)
	return &t
}

func scheduledTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func formatScheduled(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func points(max float64) *float64 {
	if max == 0 {
		return nil
	}
	return &max
}

func fromMaterials(ms []*classroom.Material) []remote.Material {
	var out []remote.Material
	for _, m := range ms {
		switch {
		case m.DriveFile != nil && m.DriveFile.DriveFile != nil:
			f := m.DriveFile.DriveFile
			out = append(out, remote.Material{Kind: course.MaterialDriveFile, ID: f.Id, URL: f.AlternateLink, Title: f.Title})
		case m.YoutubeVideo != nil:
			out = append(out, remote.Material{Kind: course.MaterialYouTube, ID: m.YoutubeVideo.Id, URL: m.YoutubeVideo.AlternateLink, Title: m.YoutubeVideo.Title})
		case m.Form != nil:
			out = append(out, remote.Material{Kind: course.MaterialForm, URL: m.Form.FormUrl, Title: m.Form.Title})
		case m.Link != nil:
			out = append(out, remote.Material{Kind: course.MaterialLink, URL: m.Link.Url, Title: m.Link.Title})
		}
	}
	return out
}

func toMaterial(m remote.Material) *classroom.Material {
	switch m.Kind {
	case course.MaterialDriveFile, course.MaterialDriveFolder:
		return &classroom.Material{DriveFile: &classroom.SharedDriveFile{
			DriveFile: &classroom.DriveFile{Id: m.ID},
			ShareMode: shareModeView,
		}}
	case course.MaterialYouTube:
		return &classroom.Material{YoutubeVideo: &classroom.YouTubeVideo{Id: m.ID}}
	case course.MaterialForm:
		return &classroom.Material{Form: &classroom.Form{FormUrl: m.URL}}
	default:
		return &classroom.Material{Link: &classroom.Link{Url: m.URL}}
	}
}

// apiError wraps err with op, marking 404 responses as remote.ErrNotFound.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, remote.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
