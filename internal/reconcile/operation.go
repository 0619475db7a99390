// Package reconcile diffs a desired course plan against a remote snapshot and
// produces the ordered operations that bring the remote course in line.
package reconcile

import (
	"fmt"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

// Kind is the kind of a planned mutation. Remote entities are never deleted.
type Kind int

const (
	CreateTopic Kind = iota + 1
	CreateCoursework
	UpdateCoursework
	AttachMaterial
)

func (k Kind) String() string {
	switch k {
	case CreateTopic:
		return "CreateTopic"
	case CreateCoursework:
		return "CreateCoursework"
	case UpdateCoursework:
		return "UpdateCoursework"
	case AttachMaterial:
		return "AttachMaterial"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Operation is one planned mutation. Key is derived from the target's
// structural identity, so the same plan yields the same keys on every run.
type Operation struct {
	Index int
	Kind  Kind
	Key   string

	Topic    string
	Title    string
	Item     *course.Item
	Material *course.MaterialRef

	// TopicID and CourseworkID are set when the target already exists
	// remotely. Otherwise the executor takes them from the dependency that
	// creates it.
	TopicID      string
	CourseworkID string

	Fields    []string
	DependsOn []string
}

func (op Operation) String() string {
	switch op.Kind {
	case CreateTopic:
		return fmt.Sprintf("%s(%q)", op.Kind, op.Topic)
	case AttachMaterial:
		return fmt.Sprintf("%s(%q, %q, %s)", op.Kind, op.Topic, op.Title, op.Material.Kind)
	default:
		return fmt.Sprintf("%s(%q, %q)", op.Kind, op.Topic, op.Title)
	}
}

// TopicKey is the idempotency key of a topic.
func TopicKey(name string) string {
	return "topic:" + name
}

// CourseworkKey is the idempotency key of a coursework item.
func CourseworkKey(topic, title string) string {
	return "coursework:" + topic + "/" + course.FoldTitle(title)
}

// MaterialKey is the idempotency key of one attachment on a coursework item.
func MaterialKey(topic, title, identity string) string {
	return "material:" + topic + "/" + course.FoldTitle(title) + "/" + identity
}

// Payload builds the create or update body for the coursework op targets.
// topicID is the resolved remote topic.
func (op Operation) Payload(topicID string) remote.CourseworkPayload {
	item := op.Item
	return remote.CourseworkPayload{
		Title:       item.Title,
		Kind:        item.Kind,
		TopicID:     topicID,
		Description: item.Description,
		Due:         item.Due,
		Points:      item.Points,
		Scheduled:   item.Publish,
		Choices:     item.Choices,
		Fields:      op.Fields,
	}
}

// Conflict is a matched remote item that cannot be brought in line without
// deleting it, for example a material post where the plan declares an
// assignment. Conflicts are reported and never acted on.
type Conflict struct {
	Topic   string
	Title   string
	Planned course.ItemKind
	Remote  course.ItemKind
}

func (c Conflict) String() string {
	return fmt.Sprintf("%q in topic %q is a %s remotely but planned as %s", c.Title, c.Topic, c.Remote, c.Planned)
}

// Result is the outcome of planning.
type Result struct {
	Operations []Operation
	Conflicts  []Conflict
}

// Empty reports whether nothing needs to change.
func (r *Result) Empty() bool {
	return len(r.Operations) == 0
}

// Count returns the number of operations of kind k.
func (r *Result) Count(k Kind) int {
	n := 0
	for _, op := range r.Operations {
		if op.Kind == k {
			n++
		}
	}
	return n
}
