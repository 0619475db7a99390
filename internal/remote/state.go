package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// Key identifies coursework structurally: the topic name and the case-folded
// title. Coursework without a topic has an empty Topic.
type Key struct {
	Topic string
	Title string
}

// KeyFor builds the lookup key for a title within a topic.
func KeyFor(topic, title string) Key {
	return Key{Topic: topic, Title: course.FoldTitle(title)}
}

// State is a snapshot of a remote course used for diffing. It is never
// mutated once fetched.
type State struct {
	CourseID   string
	Topics     map[string]string // topic name to id
	Coursework map[Key]Coursework
}

// EmptyState is the snapshot of a course that does not exist yet.
func EmptyState(courseID string) *State {
	return &State{
		CourseID:   courseID,
		Topics:     map[string]string{},
		Coursework: map[Key]Coursework{},
	}
}

// TopicID returns the remote id of the named topic.
func (s *State) TopicID(name string) (string, bool) {
	id, ok := s.Topics[name]
	return id, ok
}

// Lookup returns the remote coursework matching topic and title.
func (s *State) Lookup(topic, title string) (Coursework, bool) {
	cw, ok := s.Coursework[KeyFor(topic, title)]
	return cw, ok
}

// FetchError reports a failure to read the remote course. Planning against a
// partial snapshot is unsafe, so the run stops.
type FetchError struct {
	CourseID string
	Op       string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching course %s: %s: %v", e.CourseID, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetch reads the current topics and coursework of a course.
func Fetch(ctx context.Context, c Classroom, courseID string) (*State, error) {
	topics, err := c.ListTopics(ctx, courseID)
	if err != nil {
		return nil, &FetchError{CourseID: courseID, Op: "list topics", Err: err}
	}
	work, err := c.ListCoursework(ctx, courseID)
	if err != nil {
		return nil, &FetchError{CourseID: courseID, Op: "list coursework", Err: err}
	}

	s := EmptyState(courseID)
	names := make(map[string]string, len(topics))
	for _, t := range topics {
		if _, dup := s.Topics[t.Name]; dup {
			slog.Warn("duplicate remote topic, keeping first", "course", courseID, "topic", t.Name, "id", t.ID)
			continue
		}
		s.Topics[t.Name] = t.ID
		names[t.ID] = t.Name
	}

	for _, cw := range work {
		key := KeyFor(names[cw.TopicID], cw.Title)
		if prev, dup := s.Coursework[key]; dup {
			slog.Warn("duplicate remote coursework, keeping first",
				"course", courseID,
				"topic", key.Topic,
				"title", cw.Title,
				"kept", prev.ID,
				"ignored", cw.ID,
			)
			continue
		}
		s.Coursework[key] = cw
	}

	slog.Debug("remote state fetched", "course", courseID, "topics", len(s.Topics), "coursework", len(s.Coursework))
	return s, nil
}
