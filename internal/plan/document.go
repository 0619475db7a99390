package plan

import "github.com/p-n-ai/pai-classroom/internal/course"

// document is the on-disk shape of a course plan. JSON, YAML and workbook
// inputs all decode into it.
type document struct {
	CourseID       string          `json:"course_id,omitempty" yaml:"course_id"`
	CourseName     string          `json:"course_name,omitempty" yaml:"course_name"`
	CourseEpoch    string          `json:"course_epoch" yaml:"course_epoch"`
	Timezone       string          `json:"timezone,omitempty" yaml:"timezone"`
	DefaultDueTime string          `json:"default_due_time,omitempty" yaml:"default_due_time"`
	Topics         []topicDoc      `json:"topics,omitempty" yaml:"topics"`
	Coursework     []courseworkDoc `json:"coursework,omitempty" yaml:"coursework"`
}

type topicDoc struct {
	Name       string          `json:"name" yaml:"name"`
	Coursework []courseworkDoc `json:"coursework,omitempty" yaml:"coursework"`
}

type courseworkDoc struct {
	Title       string               `json:"title" yaml:"title"`
	Kind        string               `json:"kind" yaml:"kind"`
	Topic       string               `json:"topic,omitempty" yaml:"topic"`
	Due         string               `json:"due,omitempty" yaml:"due"`
	DueTime     string               `json:"due_time,omitempty" yaml:"due_time"`
	Publish     string               `json:"publish,omitempty" yaml:"publish"`
	Points      *float64             `json:"points,omitempty" yaml:"points"`
	Description string               `json:"description,omitempty" yaml:"description"`
	Choices     []string             `json:"choices,omitempty" yaml:"choices"`
	PreCourse   bool                 `json:"pre_course,omitempty" yaml:"pre_course"`
	Materials   []course.RawMaterial `json:"materials,omitempty" yaml:"materials"`
}
