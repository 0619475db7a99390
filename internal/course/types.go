// Package course holds the in-memory course graph produced by the plan loader.
package course

import "time"

// ItemKind is the kind of a coursework item.
type ItemKind string

const (
	KindAssignment     ItemKind = "assignment"
	KindShortAnswer    ItemKind = "short-answer-question"
	KindMultipleChoice ItemKind = "multiple-choice-question"
	KindMaterial       ItemKind = "material"
)

// Valid reports whether k is one of the recognized item kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindAssignment, KindShortAnswer, KindMultipleChoice, KindMaterial:
		return true
	default:
		return false
	}
}

// IsQuestion reports whether the item is answered inline by students.
func (k ItemKind) IsQuestion() bool {
	return k == KindShortAnswer || k == KindMultipleChoice
}

// MaterialKind is the kind of an attachment.
type MaterialKind string

const (
	MaterialLink        MaterialKind = "link"
	MaterialDriveFile   MaterialKind = "drive-file"
	MaterialDriveFolder MaterialKind = "drive-folder"
	MaterialYouTube     MaterialKind = "youtube-video"
	MaterialForm        MaterialKind = "form"
)

// IsDrive reports whether the material lives in Drive.
func (k MaterialKind) IsDrive() bool {
	return k == MaterialDriveFile || k == MaterialDriveFolder
}

// Plan is the desired state of one course. It is read-only after load.
type Plan struct {
	CourseID   string
	CourseName string
	Epoch      time.Time
	Location   *time.Location
	Topics     []Topic
	Ungrouped  []Item // coursework declared without a topic
}

// Empty reports whether the plan declares nothing to reconcile.
func (p *Plan) Empty() bool {
	return p == nil || (len(p.Topics) == 0 && len(p.Ungrouped) == 0)
}

// Topic is a named group of coursework.
type Topic struct {
	Name  string
	Items []Item
}

// Item is one assignment, question or material post.
type Item struct {
	Title       string
	Kind        ItemKind
	Topic       string
	DueExpr     string
	Due         *time.Time
	PublishExpr string
	Publish     *time.Time
	Points      *float64
	Description string
	Choices     []string
	// PreCourse allows Due or Publish to fall before the course epoch.
	PreCourse   bool
	BeforeEpoch bool
	Materials   []MaterialRef
}

// RawMaterial is a material as declared in the plan document.
type RawMaterial struct {
	Kind   string `json:"kind" yaml:"kind"`
	Source string `json:"source" yaml:"source"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
}

// MaterialRef is a normalized attachment.
type MaterialRef struct {
	Kind   MaterialKind
	Source string
	Title  string
	// RemoteID is the Drive id, YouTube video id, or URL the attachment
	// points to. It is empty while NeedsUpload is set.
	RemoteID    string
	NeedsUpload bool
	LocalPath   string
}
