package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/classroom/v1"
	"google.golang.org/api/option"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/remote"
	"github.com/p-n-ai/pai-classroom/internal/remote/google"
)

func newClassroom(t *testing.T, mux *http.ServeMux) *google.Classroom {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := google.NewClassroom(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewClassroom() error = %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestClassroom_ListTopics_Pages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/courses/{course}/topics", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("course") != "42" {
			t.Errorf("course = %q, want 42", r.PathValue("course"))
		}
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(t, w, classroom.ListTopicResponse{
				Topic:         []*classroom.Topic{{TopicId: "t1", Name: "Week 1"}},
				NextPageToken: "page-2",
			})
			return
		}
		writeJSON(t, w, classroom.ListTopicResponse{
			Topic: []*classroom.Topic{{TopicId: "t2", Name: "Week 2"}},
		})
	})

	topics, err := newClassroom(t, mux).ListTopics(context.Background(), "42")
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	want := []remote.Topic{{ID: "t1", Name: "Week 1"}, {ID: "t2", Name: "Week 2"}}
	if diff := cmp.Diff(want, topics); diff != "" {
		t.Errorf("ListTopics() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassroom_ListCoursework(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/courses/42/courseWork", func(w http.ResponseWriter, r *http.Request) {
		states := r.URL.Query()["courseWorkStates"]
		if diff := cmp.Diff([]string{"PUBLISHED", "DRAFT"}, states); diff != "" {
			t.Errorf("courseWorkStates mismatch (-want +got):\n%s", diff)
		}
		writeJSON(t, w, classroom.ListCourseWorkResponse{CourseWork: []*classroom.CourseWork{{
			Id:        "cw1",
			TopicId:   "t1",
			Title:     "Lab report",
			WorkType:  "ASSIGNMENT",
			State:     "PUBLISHED",
			DueDate:   &classroom.Date{Year: 2024, Month: 9, Day: 10},
			DueTime:   &classroom.TimeOfDay{Hours: 3, Minutes: 59},
			MaxPoints: 20,
			Materials: []*classroom.Material{
				{Link: &classroom.Link{Url: "https://example.com/lab"}},
				{DriveFile: &classroom.SharedDriveFile{DriveFile: &classroom.DriveFile{Id: "d1", Title: "lab.pdf"}}},
			},
		}, {
			Id:       "cw2",
			Title:    "Warm-up",
			WorkType: "MULTIPLE_CHOICE_QUESTION",
			State:    "DRAFT",
		}}})
	})
	mux.HandleFunc("GET /v1/courses/42/courseWorkMaterials", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, classroom.ListCourseWorkMaterialResponse{CourseWorkMaterial: []*classroom.CourseWorkMaterial{{
			Id:            "m1",
			Title:         "Syllabus",
			State:         "DRAFT",
			ScheduledTime: "2024-09-02T04:00:00Z",
			Materials:     []*classroom.Material{{YoutubeVideo: &classroom.YouTubeVideo{Id: "dQw4w9WgXcQ"}}},
		}}})
	})

	work, err := newClassroom(t, mux).ListCoursework(context.Background(), "42")
	if err != nil {
		t.Fatalf("ListCoursework() error = %v", err)
	}

	due := time.Date(2024, 9, 10, 3, 59, 0, 0, time.UTC)
	pts := 20.0
	scheduled := time.Date(2024, 9, 2, 4, 0, 0, 0, time.UTC)
	want := []remote.Coursework{
		{
			ID: "cw1", TopicID: "t1", Title: "Lab report", Kind: course.KindAssignment, State: "PUBLISHED",
			Due: &due, Points: &pts,
			Materials: []remote.Material{
				{Kind: course.MaterialLink, URL: "https://example.com/lab"},
				{Kind: course.MaterialDriveFile, ID: "d1", Title: "lab.pdf"},
			},
		},
		{ID: "cw2", Title: "Warm-up", Kind: course.KindMultipleChoice, State: "DRAFT"},
		{
			ID: "m1", Title: "Syllabus", Kind: course.KindMaterial, State: "DRAFT", Scheduled: &scheduled,
			Materials: []remote.Material{{Kind: course.MaterialYouTube, ID: "dQw4w9WgXcQ"}},
		},
	}
	if diff := cmp.Diff(want, work); diff != "" {
		t.Errorf("ListCoursework() mismatch (-want +got):\n%s", diff)
	}
}

func TestClassroom_CreateCoursework(t *testing.T) {
	var got classroom.CourseWork
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/courses/42/courseWork", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		writeJSON(t, w, classroom.CourseWork{Id: "cw-new"})
	})

	ny, _ := time.LoadLocation("America/New_York")
	due := time.Date(2024, 9, 9, 23, 59, 0, 0, ny)
	publish := time.Date(2024, 9, 2, 0, 0, 0, 0, ny)
	pts := 10.0

	id, err := newClassroom(t, mux).CreateCoursework(context.Background(), "42", remote.CourseworkPayload{
		Title:     "Quiz",
		Kind:      course.KindMultipleChoice,
		TopicID:   "t1",
		Due:       &due,
		Points:    &pts,
		Scheduled: &publish,
		Choices:   []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("CreateCoursework() error = %v", err)
	}
	if id != "cw-new" {
		t.Errorf("id = %q, want cw-new", id)
	}

	if got.WorkType != "MULTIPLE_CHOICE_QUESTION" {
		t.Errorf("WorkType = %q", got.WorkType)
	}
	if got.State != "DRAFT" || got.ScheduledTime != "2024-09-02T04:00:00Z" {
		t.Errorf("State = %q, ScheduledTime = %q; want DRAFT, 2024-09-02T04:00:00Z", got.State, got.ScheduledTime)
	}
	if got.DueDate == nil || got.DueDate.Day != 10 || got.DueTime == nil || got.DueTime.Hours != 3 || got.DueTime.Minutes != 59 {
		t.Errorf("due = %+v %+v, want 2024-09-10 03:59 UTC", got.DueDate, got.DueTime)
	}
	if got.AssigneeMode != "ALL_STUDENTS" || got.SubmissionModificationMode != "MODIFIABLE_UNTIL_TURNED_IN" {
		t.Errorf("AssigneeMode = %q, SubmissionModificationMode = %q", got.AssigneeMode, got.SubmissionModificationMode)
	}
	if got.MaxPoints != 10 || got.TopicId != "t1" {
		t.Errorf("MaxPoints = %v, TopicId = %q", got.MaxPoints, got.TopicId)
	}
	if got.MultipleChoiceQuestion == nil || len(got.MultipleChoiceQuestion.Choices) != 2 {
		t.Errorf("MultipleChoiceQuestion = %+v", got.MultipleChoiceQuestion)
	}
}

func TestClassroom_CreateMaterialPost(t *testing.T) {
	var got classroom.CourseWorkMaterial
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/courses/42/courseWorkMaterials", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		writeJSON(t, w, classroom.CourseWorkMaterial{Id: "m-new"})
	})

	id, err := newClassroom(t, mux).CreateCoursework(context.Background(), "42", remote.CourseworkPayload{
		Title: "Reading list",
		Kind:  course.KindMaterial,
		Materials: []remote.Material{
			{Kind: course.MaterialLink, URL: "https://example.com/reading"},
			{Kind: course.MaterialYouTube, ID: "dQw4w9WgXcQ"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCoursework() error = %v", err)
	}
	if id != "m-new" || got.Title != "Reading list" || got.State != "PUBLISHED" {
		t.Errorf("id = %q, body = %+v", id, got)
	}
	if len(got.Materials) != 2 || got.Materials[0].Link == nil || got.Materials[0].Link.Url != "https://example.com/reading" ||
		got.Materials[1].YoutubeVideo == nil || got.Materials[1].YoutubeVideo.Id != "dQw4w9WgXcQ" {
		t.Errorf("Materials = %+v, want the link and the video in the create body", got.Materials)
	}
}

func TestClassroom_UpdateCoursework(t *testing.T) {
	var mask string
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /v1/courses/42/courseWork/cw1", func(w http.ResponseWriter, r *http.Request) {
		mask = r.URL.Query().Get("updateMask")
		writeJSON(t, w, classroom.CourseWork{Id: "cw1"})
	})

	due := time.Date(2024, 9, 9, 23, 59, 0, 0, time.UTC)
	err := newClassroom(t, mux).UpdateCoursework(context.Background(), "42", "cw1", remote.CourseworkPayload{
		Title:  "Lab",
		Kind:   course.KindAssignment,
		Due:    &due,
		Fields: []string{remote.FieldTitle, remote.FieldDue, remote.FieldPoints},
	})
	if err != nil {
		t.Fatalf("UpdateCoursework() error = %v", err)
	}
	if mask != "title,dueDate,dueTime,maxPoints" {
		t.Errorf("updateMask = %q", mask)
	}
}

func TestClassroom_AttachMaterial(t *testing.T) {
	var patched classroom.CourseWork
	var mask string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/courses/42/courseWork/cw1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, classroom.CourseWork{Id: "cw1", Materials: []*classroom.Material{
			{Link: &classroom.Link{Url: "https://example.com/a"}},
		}})
	})
	mux.HandleFunc("PATCH /v1/courses/42/courseWork/cw1", func(w http.ResponseWriter, r *http.Request) {
		mask = r.URL.Query().Get("updateMask")
		if err := json.NewDecoder(r.Body).Decode(&patched); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		writeJSON(t, w, patched)
	})

	err := newClassroom(t, mux).AttachMaterial(context.Background(), "42", "cw1", course.KindAssignment,
		remote.Material{Kind: course.MaterialDriveFile, ID: "d1"})
	if err != nil {
		t.Fatalf("AttachMaterial() error = %v", err)
	}
	if mask != "materials" {
		t.Errorf("updateMask = %q, want materials", mask)
	}
	if len(patched.Materials) != 2 || patched.Materials[1].DriveFile.DriveFile.Id != "d1" {
		t.Errorf("Materials = %+v", patched.Materials)
	}
}

func TestClassroom_FindCourse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/courses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, classroom.ListCoursesResponse{Courses: []*classroom.Course{
			{Id: "1", Name: "Biology"},
			{Id: "2", Name: "Chemistry"},
		}})
	})
	c := newClassroom(t, mux)

	id, ok, err := c.FindCourse(context.Background(), "Chemistry")
	if err != nil || !ok || id != "2" {
		t.Errorf("FindCourse(Chemistry) = %q, %v, %v; want 2, true, nil", id, ok, err)
	}
	if _, ok, _ := c.FindCourse(context.Background(), "chemistry"); ok {
		t.Error("FindCourse() should match names exactly")
	}
}

func TestClassroom_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/courses/404/topics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error": {"code": 404, "message": "Requested entity was not found.", "status": "NOT_FOUND"}}`)
	})

	_, err := newClassroom(t, mux).ListTopics(context.Background(), "404")
	if !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("ListTopics() error = %v, want remote.ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "listing topics") {
		t.Errorf("error %q does not name the call", err)
	}
}
