package remote

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-classroom/internal/course"
)

// MemoryClassroom is an in-memory Classroom and Courses implementation for
// tests and dry runs. Failures can be injected per call.
type MemoryClassroom struct {
	mu         sync.Mutex
	courses    map[string]string // name to id
	topics     map[string][]Topic
	coursework map[string][]Coursework
	failures   map[string]error
	calls      []string
	nextID     int

	// ListErr, when set, fails ListTopics and ListCoursework.
	ListErr error
}

// NewMemoryClassroom creates an empty in-memory classroom.
func NewMemoryClassroom() *MemoryClassroom {
	return &MemoryClassroom{
		courses:    make(map[string]string),
		topics:     make(map[string][]Topic),
		coursework: make(map[string][]Coursework),
		failures:   make(map[string]error),
	}
}

// FailOn makes the call op ("CreateTopic", "CreateCoursework",
// "UpdateCoursework", "AttachMaterial") fail with err when its target
// matches. Targets are the topic name, the coursework title, or the attached
// material's ID or URL.
func (m *MemoryClassroom) FailOn(op, target string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+target] = err
}

// Calls returns the mutating calls made so far, formatted "Op target".
func (m *MemoryClassroom) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// AddTopic seeds a topic and returns its id.
func (m *MemoryClassroom) AddTopic(courseID, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id("topic")
	m.topics[courseID] = append(m.topics[courseID], Topic{ID: id, Name: name})
	return id
}

// AddCoursework seeds a coursework item and returns its id.
func (m *MemoryClassroom) AddCoursework(courseID string, cw Coursework) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cw.ID == "" {
		cw.ID = m.id("cw")
	}
	if cw.State == "" {
		cw.State = StatePublished
	}
	m.coursework[courseID] = append(m.coursework[courseID], cw)
	return cw.ID
}

func (m *MemoryClassroom) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *MemoryClassroom) record(op, target string) error {
	m.calls = append(m.calls, op+" "+target)
	return m.failures[op+" "+target]
}

func (m *MemoryClassroom) FindCourse(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.courses[name]
	return id, ok, nil
}

func (m *MemoryClassroom) CreateCourse(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateCourse", name); err != nil {
		return "", err
	}
	id := m.id("course")
	m.courses[name] = id
	return id, nil
}

func (m *MemoryClassroom) ListTopics(_ context.Context, courseID string) ([]Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return slices.Clone(m.topics[courseID]), nil
}

func (m *MemoryClassroom) ListCoursework(_ context.Context, courseID string) ([]Coursework, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]Coursework, len(m.coursework[courseID]))
	for i, cw := range m.coursework[courseID] {
		cw.Materials = slices.Clone(cw.Materials)
		out[i] = cw
	}
	return out, nil
}

func (m *MemoryClassroom) CreateTopic(_ context.Context, courseID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateTopic", name); err != nil {
		return "", err
	}
	id := m.id("topic")
	m.topics[courseID] = append(m.topics[courseID], Topic{ID: id, Name: name})
	return id, nil
}

func (m *MemoryClassroom) CreateCoursework(_ context.Context, courseID string, p CourseworkPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateCoursework", p.Title); err != nil {
		return "", err
	}
	cw := Coursework{
		ID:          m.id("cw"),
		TopicID:     p.TopicID,
		Title:       p.Title,
		Kind:        p.Kind,
		Description: p.Description,
		Due:         p.Due,
		Points:      p.Points,
		Scheduled:   p.Scheduled,
		State:       StatePublished,
		Materials:   slices.Clone(p.Materials),
	}
	if p.Scheduled != nil {
		cw.State = StateDraft
	}
	m.coursework[courseID] = append(m.coursework[courseID], cw)
	return cw.ID, nil
}

func (m *MemoryClassroom) UpdateCoursework(_ context.Context, courseID, id string, p CourseworkPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateCoursework", p.Title); err != nil {
		return err
	}
	cw := m.find(courseID, id)
	if cw == nil {
		return fmt.Errorf("coursework %s not found", id)
	}
	for _, f := range p.Fields {
		switch f {
		case FieldTitle:
			cw.Title = p.Title
		case FieldDescription:
			cw.Description = p.Description
		case FieldDue:
			cw.Due = p.Due
		case FieldPoints:
			cw.Points = p.Points
		case FieldScheduled:
			cw.Scheduled = p.Scheduled
		default:
			return fmt.Errorf("unknown update field %q", f)
		}
	}
	return nil
}

func (m *MemoryClassroom) AttachMaterial(_ context.Context, courseID, courseworkID string, _ course.ItemKind, mat Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := mat.ID
	if target == "" {
		target = mat.URL
	}
	if err := m.record("AttachMaterial", target); err != nil {
		return err
	}
	cw := m.find(courseID, courseworkID)
	if cw == nil {
		return fmt.Errorf("coursework %s not found", courseworkID)
	}
	cw.Materials = append(cw.Materials, mat)
	return nil
}

func (m *MemoryClassroom) find(courseID, id string) *Coursework {
	for i := range m.coursework[courseID] {
		if m.coursework[courseID][i].ID == id {
			return &m.coursework[courseID][i]
		}
	}
	return nil
}

// DriveEntry is a file or folder held by MemoryDrive.
type DriveEntry struct {
	ID       string
	Name     string
	ParentID string
	Folder   bool
	Content  []byte
}

// MemoryDrive is an in-memory Drive implementation.
type MemoryDrive struct {
	mu      sync.Mutex
	entries []DriveEntry
	nextID  int

	// UploadErr, when set, fails every UploadFile call.
	UploadErr error
}

// NewMemoryDrive creates an empty in-memory Drive.
func NewMemoryDrive() *MemoryDrive {
	return &MemoryDrive{}
}

// Entries returns everything stored so far.
func (d *MemoryDrive) Entries() []DriveEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.entries)
}

func (d *MemoryDrive) Find(_ context.Context, name, parentID string, folder bool) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.Name == name && e.ParentID == parentID && e.Folder == folder {
			return e.ID, true, nil
		}
	}
	return "", false, nil
}

func (d *MemoryDrive) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("folder-%d", d.nextID)
	d.entries = append(d.entries, DriveEntry{ID: id, Name: name, ParentID: parentID, Folder: true})
	return id, nil
}

func (d *MemoryDrive) UploadFile(_ context.Context, name, parentID string, r io.Reader) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.UploadErr != nil {
		return "", d.UploadErr
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	d.nextID++
	id := fmt.Sprintf("file-%d", d.nextID)
	d.entries = append(d.entries, DriveEntry{ID: id, Name: name, ParentID: parentID, Content: content})
	return id, nil
}
