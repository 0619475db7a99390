package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/classroom/v1"
	"google.golang.org/api/option"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

const pageSize = 100

// Classroom implements remote.Classroom and remote.Courses.
type Classroom struct {
	svc *classroom.Service
}

var (
	_ remote.Classroom = (*Classroom)(nil)
	_ remote.Courses   = (*Classroom)(nil)
)

// NewClassroom creates a Classroom API client.
func NewClassroom(ctx context.Context, opts ...option.ClientOption) (*Classroom, error) {
	svc, err := classroom.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating classroom service: %w", err)
	}
	return &Classroom{svc: svc}, nil
}

// FindCourse returns the id of the first course with exactly name.
func (c *Classroom) FindCourse(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := c.svc.Courses.List().PageSize(pageSize).Pages(ctx, func(r *classroom.ListCoursesResponse) error {
		for _, co := range r.Courses {
			if id == "" && co.Name == name {
				id = co.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", false, apiError("listing courses", err)
	}
	return id, id != "", nil
}

// CreateCourse creates a course owned by the authenticated user.
func (c *Classroom) CreateCourse(ctx context.Context, name string) (string, error) {
	co, err := c.svc.Courses.Create(&classroom.Course{Name: name, OwnerId: "me"}).Context(ctx).Do()
	if err != nil {
		return "", apiError("creating course", err)
	}
	return co.Id, nil
}

func (c *Classroom) ListTopics(ctx context.Context, courseID string) ([]remote.Topic, error) {
	var topics []remote.Topic
	err := c.svc.Courses.Topics.List(courseID).PageSize(pageSize).Pages(ctx, func(r *classroom.ListTopicResponse) error {
		for _, t := range r.Topic {
			topics = append(topics, remote.Topic{ID: t.TopicId, Name: t.Name})
		}
		return nil
	})
	if err != nil {
		return nil, apiError("listing topics", err)
	}
	return topics, nil
}

// ListCoursework returns both coursework and material posts, drafts included.
func (c *Classroom) ListCoursework(ctx context.Context, courseID string) ([]remote.Coursework, error) {
	var out []remote.Coursework

	err := c.svc.Courses.CourseWork.List(courseID).
		CourseWorkStates(remote.StatePublished, remote.StateDraft).
		PageSize(pageSize).
		Pages(ctx, func(r *classroom.ListCourseWorkResponse) error {
			for _, cw := range r.CourseWork {
				out = append(out, fromCourseWork(cw))
			}
			return nil
		})
	if err != nil {
		return nil, apiError("listing coursework", err)
	}

	err = c.svc.Courses.CourseWorkMaterials.List(courseID).
		CourseWorkMaterialStates(remote.StatePublished, remote.StateDraft).
		PageSize(pageSize).
		Pages(ctx, func(r *classroom.ListCourseWorkMaterialResponse) error {
			for _, m := range r.CourseWorkMaterial {
				out = append(out, fromCourseWorkMaterial(m))
			}
			return nil
		})
	if err != nil {
		return nil, apiError("listing coursework materials", err)
	}
	return out, nil
}

func (c *Classroom) CreateTopic(ctx context.Context, courseID, name string) (string, error) {
	t, err := c.svc.Courses.Topics.Create(courseID, &classroom.Topic{Name: name}).Context(ctx).Do()
	if err != nil {
		return "", apiError("creating topic", err)
	}
	return t.TopicId, nil
}

// CreateCoursework creates a material post for material items and a
// coursework item for everything else. Scheduled items are created as drafts.
func (c *Classroom) CreateCoursework(ctx context.Context, courseID string, p remote.CourseworkPayload) (string, error) {
	if p.Kind == course.KindMaterial {
		m, err := c.svc.Courses.CourseWorkMaterials.Create(courseID, toCourseWorkMaterial(p)).Context(ctx).Do()
		if err != nil {
			return "", apiError("creating material post", err)
		}
		return m.Id, nil
	}

	cw := toCourseWork(p)
	cw.WorkType = workType(p.Kind)
	cw.AssigneeMode = assigneeAllStudents
	cw.SubmissionModificationMode = modifiableUntilTurnedIn
	if p.Kind == course.KindMultipleChoice {
		cw.MultipleChoiceQuestion = &classroom.MultipleChoiceQuestion{Choices: p.Choices}
	}

	created, err := c.svc.Courses.CourseWork.Create(courseID, cw).Context(ctx).Do()
	if err != nil {
		return "", apiError("creating coursework", err)
	}
	return created.Id, nil
}

// UpdateCoursework patches the fields named in p.Fields.
func (c *Classroom) UpdateCoursework(ctx context.Context, courseID, id string, p remote.CourseworkPayload) error {
	mask := updateMask(p.Fields)
	if mask == "" {
		return nil
	}

	if p.Kind == course.KindMaterial {
		_, err := c.svc.Courses.CourseWorkMaterials.Patch(courseID, id, toCourseWorkMaterial(p)).UpdateMask(mask).Context(ctx).Do()
		if err != nil {
			return apiError("updating material post", err)
		}
		return nil
	}

	_, err := c.svc.Courses.CourseWork.Patch(courseID, id, toCourseWork(p)).UpdateMask(mask).Context(ctx).Do()
	if err != nil {
		return apiError("updating coursework", err)
	}
	return nil
}

// AttachMaterial appends m to the item's materials.
func (c *Classroom) AttachMaterial(ctx context.Context, courseID, courseworkID string, kind course.ItemKind, m remote.Material) error {
	if kind == course.KindMaterial {
		cur, err := c.svc.Courses.CourseWorkMaterials.Get(courseID, courseworkID).Context(ctx).Do()
		if err != nil {
			return apiError("reading material post", err)
		}
		body := &classroom.CourseWorkMaterial{Materials: append(cur.Materials, toMaterial(m))}
		if _, err := c.svc.Courses.CourseWorkMaterials.Patch(courseID, courseworkID, body).UpdateMask("materials").Context(ctx).Do(); err != nil {
			return apiError("attaching material", err)
		}
		return nil
	}

	cur, err := c.svc.Courses.CourseWork.Get(courseID, courseworkID).Context(ctx).Do()
	if err != nil {
		return apiError("reading coursework", err)
	}
	body := &classroom.CourseWork{Materials: append(cur.Materials, toMaterial(m))}
	if _, err := c.svc.Courses.CourseWork.Patch(courseID, courseworkID, body).UpdateMask("materials").Context(ctx).Do(); err != nil {
		return apiError("attaching material", err)
	}
	return nil
}

func updateMask(fields []string) string {
	var mask []string
	for _, f := range fields {
		switch f {
		case remote.FieldDue:
			mask = append(mask, "dueDate", "dueTime")
		default:
			mask = append(mask, f)
		}
	}
	return strings.Join(mask, ",")
}

func toCourseWork(p remote.CourseworkPayload) *classroom.CourseWork {
	cw := &classroom.CourseWork{
		Title:         p.Title,
		Description:   p.Description,
		TopicId:       p.TopicID,
		State:         remote.StatePublished,
		ScheduledTime: formatScheduled(p.Scheduled),
	}
	if p.Scheduled != nil {
		cw.State = remote.StateDraft
	}
	if p.Due != nil {
		cw.DueDate, cw.DueTime = dueFields(*p.Due)
	}
	if p.Points != nil {
		cw.MaxPoints = *p.Points
		cw.ForceSendFields = append(cw.ForceSendFields, "MaxPoints")
	}
	for _, mat := range p.Materials {
		cw.Materials = append(cw.Materials, toMaterial(mat))
	}
	return cw
}

func toCourseWorkMaterial(p remote.CourseworkPayload) *classroom.CourseWorkMaterial {
	m := &classroom.CourseWorkMaterial{
		Title:         p.Title,
		Description:   p.Description,
		TopicId:       p.TopicID,
		State:         remote.StatePublished,
		ScheduledTime: formatScheduled(p.Scheduled),
	}
	if p.Scheduled != nil {
		m.State = remote.StateDraft
	}
	for _, mat := range p.Materials {
		m.Materials = append(m.Materials, toMaterial(mat))
	}
	return m
}

func fromCourseWork(cw *classroom.CourseWork) remote.Coursework {
	return remote.Coursework{
		ID:          cw.Id,
		TopicID:     cw.TopicId,
		Title:       cw.Title,
		Kind:        itemKind(cw.WorkType),
		Description: cw.Description,
		Due:         dueTime(cw.DueDate, cw.DueTime),
		Points:      points(cw.MaxPoints),
		State:       cw.State,
		Scheduled:   scheduledTime(cw.ScheduledTime),
		Materials:   fromMaterials(cw.Materials),
	}
}

func fromCourseWorkMaterial(m *classroom.CourseWorkMaterial) remote.Coursework {
	return remote.Coursework{
		ID:          m.Id,
		TopicID:     m.TopicId,
		Title:       m.Title,
		Kind:        course.KindMaterial,
		Description: m.Description,
		State:       m.State,
		Scheduled:   scheduledTime(m.ScheduledTime),
		Materials:   fromMaterials(m.Materials),
	}
}
