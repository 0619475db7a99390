package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/dates"
	"github.com/p-n-ai/pai-classroom/internal/materials"
)

// DefaultDueTime is the time of day applied to due dates when neither the
// item nor the plan names one.
const DefaultDueTime = "23:59"

// minChoices is the fewest options a multiple-choice question may offer.
const minChoices = 2

type builder struct {
	opts       options
	loc        *time.Location
	epoch      time.Time
	epochOK    bool
	dueClock   dates.Clock
	violations []Violation
}

func (b *builder) add(path, format string, args ...any) {
	b.violations = append(b.violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (b *builder) addErr(path string, err error) {
	b.violations = append(b.violations, Violation{Path: path, Message: err.Error(), Err: err})
}

// build converts a structurally valid document into a course plan and reports
// every invariant violation it finds along the way.
func build(doc *document, o options) (*course.Plan, []Violation) {
	b := &builder{opts: o, loc: o.location}

	if tz := strings.TrimSpace(doc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			b.add("timezone", "unknown time zone %q", tz)
		} else {
			b.loc = loc
		}
	}

	epoch, err := time.ParseInLocation(dates.DateLayout, strings.TrimSpace(doc.CourseEpoch), b.loc)
	if err != nil {
		b.addErr("course_epoch", fmt.Errorf("%w: course epoch %q must be %s", dates.ErrInvalidDateExpression, doc.CourseEpoch, dates.DateLayout))
	} else {
		b.epoch = epoch
		b.epochOK = true
	}

	dueTime := strings.TrimSpace(doc.DefaultDueTime)
	if dueTime == "" {
		dueTime = DefaultDueTime
	}
	b.dueClock, err = dates.ParseClock(dueTime)
	if err != nil {
		b.addErr("default_due_time", err)
		b.dueClock, _ = dates.ParseClock(DefaultDueTime)
	}

	p := &course.Plan{
		CourseID:   strings.TrimSpace(doc.CourseID),
		CourseName: strings.TrimSpace(doc.CourseName),
		Epoch:      b.epoch,
		Location:   b.loc,
	}

	topicIndex := make(map[string]int, len(doc.Topics))
	for i, td := range doc.Topics {
		path := fmt.Sprintf("topics[%d]", i)
		name := strings.TrimSpace(td.Name)
		if name == "" {
			b.add(path+".name", "topic name is empty")
		}

		first, dup := topicIndex[name]
		if dup {
			b.add(path+".name", "duplicate topic %q (first declared at topics[%d])", name, first)
		} else {
			topicIndex[name] = len(p.Topics)
			p.Topics = append(p.Topics, course.Topic{Name: name})
		}

		for j, cd := range td.Coursework {
			itemPath := fmt.Sprintf("%s.coursework[%d]", path, j)
			if ref := strings.TrimSpace(cd.Topic); ref != "" && ref != name {
				b.add(itemPath+".topic", "topic %q conflicts with enclosing topic %q", ref, name)
			}
			item := b.item(itemPath, cd, name)
			if !dup {
				p.Topics[topicIndex[name]].Items = append(p.Topics[topicIndex[name]].Items, item)
			}
		}
	}

	for j, cd := range doc.Coursework {
		itemPath := fmt.Sprintf("coursework[%d]", j)
		ref := strings.TrimSpace(cd.Topic)
		item := b.item(itemPath, cd, ref)
		if ref == "" {
			p.Ungrouped = append(p.Ungrouped, item)
			continue
		}
		idx, ok := topicIndex[ref]
		if !ok {
			b.add(itemPath+".topic", "topic %q is not declared", ref)
			continue
		}
		p.Topics[idx].Items = append(p.Topics[idx].Items, item)
	}

	b.checkDuplicateTitles(doc)

	return p, b.violations
}

// checkDuplicateTitles reports coursework that would collide on the
// (topic, case-folded title) key used to match remote items.
func (b *builder) checkDuplicateTitles(doc *document) {
	type key struct{ topic, title string }
	seen := make(map[key]string)
	check := func(path, topic, title string) {
		if strings.TrimSpace(title) == "" {
			return
		}
		k := key{topic: topic, title: course.FoldTitle(title)}
		if first, ok := seen[k]; ok {
			b.add(path+".title", "duplicate coursework %q in topic %q (first declared at %s)", strings.TrimSpace(title), topic, first)
			return
		}
		seen[k] = path
	}

	for i, td := range doc.Topics {
		for j, cd := range td.Coursework {
			check(fmt.Sprintf("topics[%d].coursework[%d]", i, j), strings.TrimSpace(td.Name), cd.Title)
		}
	}
	for j, cd := range doc.Coursework {
		check(fmt.Sprintf("coursework[%d]", j), strings.TrimSpace(cd.Topic), cd.Title)
	}
}

func (b *builder) item(path string, d courseworkDoc, topic string) course.Item {
	item := course.Item{
		Title:       strings.TrimSpace(d.Title),
		Kind:        course.ItemKind(strings.ToLower(strings.TrimSpace(d.Kind))),
		Topic:       topic,
		DueExpr:     strings.TrimSpace(d.Due),
		PublishExpr: strings.TrimSpace(d.Publish),
		Points:      d.Points,
		Description: strings.TrimSpace(d.Description),
		PreCourse:   d.PreCourse,
	}

	if item.Title == "" {
		b.add(path+".title", "title is empty")
	}
	if !item.Kind.Valid() {
		b.add(path+".kind", "unknown coursework kind %q", d.Kind)
	}

	b.itemDates(path, d, &item)

	if item.Kind == course.KindMaterial && item.Points != nil {
		b.add(path+".points", "material items cannot carry points")
	}

	b.itemChoices(path, d, &item)
	b.itemMaterials(path, d, &item)

	return item
}

func (b *builder) itemDates(path string, d courseworkDoc, item *course.Item) {
	if item.DueExpr != "" {
		if item.Kind == course.KindMaterial {
			b.add(path+".due", "material items cannot have a due date")
		} else if b.epochOK {
			day, err := dates.Resolve(item.DueExpr, b.epoch)
			if err != nil {
				b.addErr(path+".due", err)
			} else {
				clock := b.dueClock
				if dt := strings.TrimSpace(d.DueTime); dt != "" {
					if c, err := dates.ParseClock(dt); err != nil {
						b.addErr(path+".due_time", err)
					} else {
						clock = c
					}
				}
				due := dates.At(day, clock)
				item.Due = &due
			}
		}
	} else if strings.TrimSpace(d.DueTime) != "" {
		b.add(path+".due_time", "due_time is set without a due date")
	}

	if item.PublishExpr != "" && b.epochOK {
		publish, err := dates.Resolve(item.PublishExpr, b.epoch)
		if err != nil {
			b.addErr(path+".publish", err)
		} else {
			item.Publish = &publish
		}
	}

	if item.Due != nil && dates.BeforeEpoch(*item.Due, b.epoch) {
		item.BeforeEpoch = true
		if !item.PreCourse {
			b.add(path+".due", "due date %s is before the course epoch %s; set pre_course to allow it",
				item.Due.Format(dates.DateLayout), b.epoch.Format(dates.DateLayout))
		}
	}
	if item.Publish != nil && dates.BeforeEpoch(*item.Publish, b.epoch) {
		item.BeforeEpoch = true
		if !item.PreCourse {
			b.add(path+".publish", "publish date %s is before the course epoch %s; set pre_course to allow it",
				item.Publish.Format(dates.DateLayout), b.epoch.Format(dates.DateLayout))
		}
	}
	if item.Publish != nil && item.Due != nil && item.Publish.After(*item.Due) {
		b.add(path+".publish", "publish date %s is after the due date %s",
			item.Publish.Format(dates.DateLayout), item.Due.Format(dates.DateLayout))
	}
}

func (b *builder) itemChoices(path string, d courseworkDoc, item *course.Item) {
	for _, c := range d.Choices {
		item.Choices = append(item.Choices, strings.TrimSpace(c))
	}

	if item.Kind != course.KindMultipleChoice {
		if len(item.Choices) > 0 {
			b.add(path+".choices", "choices are only allowed on multiple-choice questions")
		}
		return
	}
	if len(item.Choices) < minChoices {
		b.add(path+".choices", "multiple-choice questions need at least %d choices, got %d", minChoices, len(item.Choices))
	}
	seen := make(map[string]bool, len(item.Choices))
	for k, c := range item.Choices {
		switch {
		case c == "":
			b.add(fmt.Sprintf("%s.choices[%d]", path, k), "choice is empty")
		case seen[c]:
			b.add(fmt.Sprintf("%s.choices[%d]", path, k), "duplicate choice %q", c)
		}
		seen[c] = true
	}
}

func (b *builder) itemMaterials(path string, d courseworkDoc, item *course.Item) {
	seen := make(map[string]int, len(d.Materials))
	for k, raw := range d.Materials {
		mpath := fmt.Sprintf("%s.materials[%d]", path, k)

		ref, err := materials.Normalize(raw)
		if err != nil {
			b.addErr(mpath, err)
			continue
		}
		if ref.NeedsUpload {
			if !filepath.IsAbs(ref.LocalPath) && b.opts.baseDir != "" {
				ref.LocalPath = filepath.Join(b.opts.baseDir, ref.LocalPath)
			}
			if err := b.checkLocal(ref); err != nil {
				b.addErr(mpath+".source", err)
				continue
			}
		}

		id := materials.Identity(ref)
		if first, ok := seen[id]; ok {
			b.add(mpath, "duplicate material (same as materials[%d])", first)
			continue
		}
		seen[id] = k
		item.Materials = append(item.Materials, ref)
	}
}

// ErrMissingUpload is returned for upload sources that do not exist locally.
var ErrMissingUpload = errors.New("upload source not found")

func (b *builder) checkLocal(ref course.MaterialRef) error {
	if b.opts.fs == nil {
		return nil
	}
	info, err := b.opts.fs.Stat(ref.LocalPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingUpload, ref.LocalPath)
		}
		return fmt.Errorf("checking %s: %w", ref.LocalPath, err)
	}
	switch {
	case ref.Kind == course.MaterialDriveFolder && !info.IsDir():
		return fmt.Errorf("%w: %s is a file, not a folder", materials.ErrInvalidSource, ref.LocalPath)
	case ref.Kind == course.MaterialDriveFile && info.IsDir():
		return fmt.Errorf("%w: %s is a folder, not a file", materials.ErrInvalidSource, ref.LocalPath)
	}
	return nil
}
