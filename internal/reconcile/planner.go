package reconcile

import (
	"errors"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/materials"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

type planner struct {
	state  *remote.State
	ops    []Operation
	result Result
}

// Plan compares desired against the remote snapshot and returns the
// operations that reconcile them, dependencies first and otherwise in plan
// declaration order. Remote entities the plan does not mention are left alone.
func Plan(desired *course.Plan, state *remote.State) (*Result, error) {
	if state == nil {
		return nil, errors.New("remote state is required")
	}
	if desired.Empty() {
		return &Result{}, nil
	}

	p := &planner{state: state}
	for i := range desired.Topics {
		t := &desired.Topics[i]
		var dep []string
		topicID, exists := state.TopicID(t.Name)
		if !exists {
			p.emit(Operation{Kind: CreateTopic, Key: TopicKey(t.Name), Topic: t.Name})
			dep = []string{TopicKey(t.Name)}
		}
		for j := range t.Items {
			p.item(&t.Items[j], t.Name, topicID, dep)
		}
	}
	for j := range desired.Ungrouped {
		p.item(&desired.Ungrouped[j], "", "", nil)
	}

	ordered, err := order(p.ops)
	if err != nil {
		return nil, err
	}
	p.result.Operations = ordered

	slog.Debug("reconciliation planned",
		"course", state.CourseID,
		"operations", len(ordered),
		"create_topic", p.result.Count(CreateTopic),
		"create_coursework", p.result.Count(CreateCoursework),
		"update_coursework", p.result.Count(UpdateCoursework),
		"attach_material", p.result.Count(AttachMaterial),
		"conflicts", len(p.result.Conflicts),
	)
	return &p.result, nil
}

func (p *planner) emit(op Operation) {
	op.Index = len(p.ops)
	p.ops = append(p.ops, op)
}

func (p *planner) item(item *course.Item, topic, topicID string, topicDep []string) {
	key := CourseworkKey(topic, item.Title)
	rc, exists := p.state.Lookup(topic, item.Title)

	if !exists {
		p.emit(Operation{
			Kind:      CreateCoursework,
			Key:       key,
			Topic:     topic,
			Title:     item.Title,
			Item:      item,
			TopicID:   topicID,
			DependsOn: topicDep,
		})
		p.attachments(item, topic, "", []string{key}, nil)
		return
	}

	// Classroom cannot change the work type of an existing item.
	if rc.Kind != item.Kind {
		p.result.Conflicts = append(p.result.Conflicts, Conflict{
			Topic:   topic,
			Title:   item.Title,
			Planned: item.Kind,
			Remote:  rc.Kind,
		})
		return
	}

	var dep []string
	if fields := changedFields(item, rc); len(fields) > 0 {
		p.emit(Operation{
			Kind:         UpdateCoursework,
			Key:          key,
			Topic:        topic,
			Title:        item.Title,
			Item:         item,
			TopicID:      topicID,
			CourseworkID: rc.ID,
			Fields:       fields,
		})
		dep = []string{key}
	}
	p.attachments(item, topic, rc.ID, dep, rc.Materials)
}

// attachments emits an AttachMaterial for each declared material that is not
// already on the remote item.
func (p *planner) attachments(item *course.Item, topic, courseworkID string, dep []string, attached []remote.Material) {
	present := make(map[string]bool)
	for _, m := range attached {
		for _, id := range m.Identities() {
			present[id] = true
		}
	}

	for k := range item.Materials {
		ref := &item.Materials[k]
		id := materials.Identity(*ref)
		if present[id] {
			continue
		}
		p.emit(Operation{
			Kind:         AttachMaterial,
			Key:          MaterialKey(topic, item.Title, id),
			Topic:        topic,
			Title:        item.Title,
			Item:         item,
			Material:     ref,
			CourseworkID: courseworkID,
			DependsOn:    dep,
		})
	}
}

// changedFields lists the mutable fields where the plan and the remote item
// differ. Fields the plan leaves unset are not managed.
func changedFields(item *course.Item, rc remote.Coursework) []string {
	var fields []string
	if item.Title != rc.Title {
		fields = append(fields, remote.FieldTitle)
	}
	if item.Description != "" && item.Description != rc.Description {
		fields = append(fields, remote.FieldDescription)
	}
	if item.Kind != course.KindMaterial {
		if item.Due != nil && !sameMinute(item.Due, rc.Due) {
			fields = append(fields, remote.FieldDue)
		}
		if item.Points != nil && *item.Points != value(rc.Points) {
			fields = append(fields, remote.FieldPoints)
		}
	}
	// Classroom only accepts a schedule on items that are still drafts.
	if item.Publish != nil && rc.State == remote.StateDraft && !sameMinute(item.Publish, rc.Scheduled) {
		fields = append(fields, remote.FieldScheduled)
	}
	return fields
}

// value treats ungraded (nil) points as zero.
func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func sameMinute(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
