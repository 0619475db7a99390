package reconcile_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/plan"
	"github.com/p-n-ai/pai-classroom/internal/reconcile"
	"github.com/p-n-ai/pai-classroom/internal/remote"
)

func mustLoad(t *testing.T, raw string) *course.Plan {
	t.Helper()
	p, err := plan.Load([]byte(raw))
	if err != nil {
		t.Fatalf("plan.Load() error = %v", err)
	}
	return p
}

func describe(ops []reconcile.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func ptr[T any](v T) *T { return &v }

const biologyPlan = `{
  "course_name": "Biology",
  "course_epoch": "2024-09-02",
  "topics": [{
    "name": "Week 1",
    "coursework": [{
      "title": "Lab safety quiz", "kind": "assignment", "due": "epoch + 7 days", "points": 10,
      "materials": [{"kind": "link", "source": "https://example.com/safety"}]
    }]
  }]
}`

func TestPlan_EmptyRemote(t *testing.T) {
	desired := mustLoad(t, biologyPlan)

	result, err := reconcile.Plan(desired, remote.EmptyState(""))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := []string{
		`CreateTopic("Week 1")`,
		`CreateCoursework("Week 1", "Lab safety quiz")`,
		`AttachMaterial("Week 1", "Lab safety quiz", link)`,
	}
	if diff := cmp.Diff(want, describe(result.Operations)); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	create := result.Operations[1]
	if got := create.Item.Due.Format("2006-01-02"); got != "2024-09-09" {
		t.Errorf("due = %s, want 2024-09-09", got)
	}
	if diff := cmp.Diff([]string{"topic:Week 1"}, create.DependsOn); diff != "" {
		t.Errorf("CreateCoursework.DependsOn mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{create.Key}, result.Operations[2].DependsOn); diff != "" {
		t.Errorf("AttachMaterial.DependsOn mismatch (-want +got):\n%s", diff)
	}
}

func weekOneState(t *testing.T, desired *course.Plan) *remote.State {
	t.Helper()
	item := desired.Topics[0].Items[0]
	state := remote.EmptyState("42")
	state.Topics["Week 1"] = "t1"
	state.Coursework[remote.KeyFor("Week 1", item.Title)] = remote.Coursework{
		ID:      "cw1",
		TopicID: "t1",
		Title:   item.Title,
		Kind:    item.Kind,
		Due:     item.Due,
		Points:  item.Points,
		State:   remote.StatePublished,
		Materials: []remote.Material{
			{Kind: course.MaterialLink, URL: "https://example.com/safety"},
		},
	}
	return state
}

func TestPlan_MatchingRemoteIsNoOp(t *testing.T) {
	desired := mustLoad(t, biologyPlan)

	result, err := reconcile.Plan(desired, weekOneState(t, desired))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("Plan() = %v, want no operations", describe(result.Operations))
	}
}

func TestPlan_UploadDependsOnCreateUnderExistingTopic(t *testing.T) {
	desired := mustLoad(t, `{
	  "course_id": "42",
	  "course_epoch": "2024-09-02",
	  "topics": [{"name": "Week 1", "coursework": [{
	    "title": "Handouts", "kind": "material",
	    "materials": [{"kind": "drive-file", "source": "handouts/safety.pdf"}]
	  }]}]
	}`)
	state := remote.EmptyState("42")
	state.Topics["Week 1"] = "t1"

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := []string{
		`CreateCoursework("Week 1", "Handouts")`,
		`AttachMaterial("Week 1", "Handouts", drive-file)`,
	}
	if diff := cmp.Diff(want, describe(result.Operations)); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}

	create, attach := result.Operations[0], result.Operations[1]
	if len(create.DependsOn) != 0 {
		t.Errorf("CreateCoursework.DependsOn = %v, want none", create.DependsOn)
	}
	if create.TopicID != "t1" {
		t.Errorf("CreateCoursework.TopicID = %q, want t1", create.TopicID)
	}
	if diff := cmp.Diff([]string{create.Key}, attach.DependsOn); diff != "" {
		t.Errorf("AttachMaterial.DependsOn mismatch (-want +got):\n%s", diff)
	}
	if !attach.Material.NeedsUpload {
		t.Error("Material.NeedsUpload = false, want true")
	}
}

func TestPlan_UpdatesChangedFields(t *testing.T) {
	desired := mustLoad(t, biologyPlan)
	state := weekOneState(t, desired)

	key := remote.KeyFor("Week 1", "Lab safety quiz")
	cw := state.Coursework[key]
	cw.Title = "LAB SAFETY QUIZ"
	cw.Due = ptr(cw.Due.Add(24 * time.Hour))
	cw.Points = ptr(5.0)
	state.Coursework[key] = cw

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(result.Operations) != 1 {
		t.Fatalf("Plan() = %v, want one update", describe(result.Operations))
	}
	op := result.Operations[0]
	if op.Kind != reconcile.UpdateCoursework || op.CourseworkID != "cw1" {
		t.Errorf("op = %v (id %q), want UpdateCoursework of cw1", op, op.CourseworkID)
	}
	want := []string{remote.FieldTitle, remote.FieldDue, remote.FieldPoints}
	if diff := cmp.Diff(want, op.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_IgnoresSecondsAndUnmanagedFields(t *testing.T) {
	desired := mustLoad(t, `{"course_epoch": "2024-09-02", "coursework": [
	  {"title": "Essay", "kind": "assignment", "due": "epoch"}
	]}`)
	item := desired.Ungrouped[0]
	state := remote.EmptyState("42")
	state.Coursework[remote.KeyFor("", "Essay")] = remote.Coursework{
		ID:          "cw1",
		Title:       "Essay",
		Kind:        course.KindAssignment,
		Due:         ptr(item.Due.Add(30 * time.Second)),
		Points:      ptr(100.0),
		Description: "written remotely",
	}

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("Plan() = %v, want no operations", describe(result.Operations))
	}
}

func TestPlan_ScheduleOnlyUpdatesDrafts(t *testing.T) {
	desired := mustLoad(t, `{"course_epoch": "2024-09-02", "coursework": [
	  {"title": "Notes", "kind": "material", "publish": "epoch + 1 day"}
	]}`)

	for _, tt := range []struct {
		state string
		want  int
	}{
		{state: remote.StateDraft, want: 1},
		{state: remote.StatePublished, want: 0},
	} {
		state := remote.EmptyState("42")
		state.Coursework[remote.KeyFor("", "Notes")] = remote.Coursework{
			ID: "m1", Title: "Notes", Kind: course.KindMaterial, State: tt.state,
		}
		result, err := reconcile.Plan(desired, state)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(result.Operations) != tt.want {
			t.Errorf("%s: Plan() = %v, want %d operations", tt.state, describe(result.Operations), tt.want)
		}
	}
}

func TestPlan_AttachesOnlyMissingMaterials(t *testing.T) {
	desired := mustLoad(t, `{
	  "course_epoch": "2024-09-02",
	  "topics": [{"name": "Week 1", "coursework": [{
	    "title": "Lab safety quiz", "kind": "assignment", "due": "epoch + 7 days", "points": 10,
	    "materials": [
	      {"kind": "link", "source": "https://example.com/safety"},
	      {"kind": "youtube-video", "source": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
	      {"kind": "drive-file", "source": "slides/safety.pdf"}
	    ]
	  }]}]
	}`)
	state := weekOneState(t, desired)
	key := remote.KeyFor("Week 1", "Lab safety quiz")
	cw := state.Coursework[key]
	cw.Materials = append(cw.Materials, remote.Material{Kind: course.MaterialDriveFile, ID: "d9", Title: "safety.pdf"})
	state.Coursework[key] = cw

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := []string{`AttachMaterial("Week 1", "Lab safety quiz", youtube-video)`}
	if diff := cmp.Diff(want, describe(result.Operations)); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
	op := result.Operations[0]
	if op.CourseworkID != "cw1" || len(op.DependsOn) != 0 {
		t.Errorf("CourseworkID = %q, DependsOn = %v; want cw1 and no dependencies", op.CourseworkID, op.DependsOn)
	}
}

func TestPlan_KindConflict(t *testing.T) {
	desired := mustLoad(t, `{"course_epoch": "2024-09-02", "coursework": [
	  {"title": "Reading", "kind": "material", "materials": [{"kind": "link", "source": "https://example.com/r"}]}
	]}`)
	state := remote.EmptyState("42")
	state.Coursework[remote.KeyFor("", "Reading")] = remote.Coursework{ID: "cw1", Title: "Reading", Kind: course.KindAssignment}

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("Plan() = %v, want no operations", describe(result.Operations))
	}
	want := []reconcile.Conflict{{Title: "Reading", Planned: course.KindMaterial, Remote: course.KindAssignment}}
	if diff := cmp.Diff(want, result.Conflicts); diff != "" {
		t.Errorf("Conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_LeavesRemoteOnlyEntitiesAlone(t *testing.T) {
	desired := mustLoad(t, biologyPlan)
	state := remote.EmptyState("42")
	state.Topics["Archive"] = "t-old"
	state.Coursework[remote.KeyFor("Archive", "Old quiz")] = remote.Coursework{ID: "cw-old", TopicID: "t-old", Title: "Old quiz"}
	state.Coursework[remote.KeyFor("", "Welcome")] = remote.Coursework{ID: "cw-welcome", Title: "Welcome", Kind: course.KindMaterial}

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	for _, op := range result.Operations {
		switch op.Kind {
		case reconcile.CreateTopic, reconcile.CreateCoursework, reconcile.UpdateCoursework, reconcile.AttachMaterial:
		default:
			t.Errorf("unexpected operation kind %v", op.Kind)
		}
		if op.CourseworkID == "cw-old" || op.CourseworkID == "cw-welcome" || op.TopicID == "t-old" {
			t.Errorf("operation %v touches a remote-only entity", op)
		}
	}
}

func TestPlan_DependenciesComeFirst(t *testing.T) {
	desired := mustLoad(t, `{
	  "course_epoch": "2024-09-02",
	  "topics": [
	    {"name": "Week 1", "coursework": [
	      {"title": "A", "kind": "assignment", "materials": [{"kind": "link", "source": "https://example.com/a"}, {"kind": "form", "source": "https://forms.gle/a"}]},
	      {"title": "B", "kind": "short-answer-question"}
	    ]},
	    {"name": "Week 2", "coursework": [
	      {"title": "C", "kind": "multiple-choice-question", "choices": ["x", "y"], "materials": [{"kind": "drive-folder", "source": "week2"}]}
	    ]}
	  ],
	  "coursework": [
	    {"title": "D", "kind": "material", "topic": "Week 1"},
	    {"title": "E", "kind": "material", "materials": [{"kind": "youtube-video", "source": "dQw4w9WgXcQ"}]}
	  ]
	}`)
	state := remote.EmptyState("42")
	state.Topics["Week 2"] = "t2"

	result, err := reconcile.Plan(desired, state)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	seen := map[string]int{}
	for i, op := range result.Operations {
		for _, dep := range op.DependsOn {
			j, ok := seen[dep]
			if !ok {
				t.Errorf("%v at %d depends on %q which has not run yet", op, i, dep)
				continue
			}
			if j >= i {
				t.Errorf("%v at %d depends on op at %d", op, i, j)
			}
		}
		seen[op.Key] = i
	}

	want := []string{
		`CreateTopic("Week 1")`,
		`CreateCoursework("Week 1", "A")`,
		`AttachMaterial("Week 1", "A", link)`,
		`AttachMaterial("Week 1", "A", form)`,
		`CreateCoursework("Week 1", "B")`,
		`CreateCoursework("Week 1", "D")`,
		`CreateCoursework("Week 2", "C")`,
		`AttachMaterial("Week 2", "C", drive-folder)`,
		`CreateCoursework("", "E")`,
		`AttachMaterial("", "E", youtube-video)`,
	}
	if diff := cmp.Diff(want, describe(result.Operations)); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_KeysAreStable(t *testing.T) {
	first, err := reconcile.Plan(mustLoad(t, biologyPlan), remote.EmptyState(""))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	second, err := reconcile.Plan(mustLoad(t, biologyPlan), remote.EmptyState("other"))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	keys := func(r *reconcile.Result) []string {
		var out []string
		for _, op := range r.Operations {
			out = append(out, op.Key)
		}
		return out
	}
	want := []string{
		"topic:Week 1",
		"coursework:Week 1/lab safety quiz",
		"material:Week 1/lab safety quiz/link:https://example.com/safety",
	}
	if diff := cmp.Diff(want, keys(first)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(keys(first), keys(second)); diff != "" {
		t.Errorf("keys differ between runs (-first +second):\n%s", diff)
	}
}

func TestPlan_EmptyPlan(t *testing.T) {
	result, err := reconcile.Plan(nil, remote.EmptyState("42"))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.Empty() {
		t.Errorf("Plan(nil) = %v, want empty", describe(result.Operations))
	}

	if _, err := reconcile.Plan(mustLoad(t, biologyPlan), nil); err == nil {
		t.Error("Plan() with nil state should fail")
	}
}
