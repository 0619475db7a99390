package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-classroom/internal/course"
	"github.com/p-n-ai/pai-classroom/internal/dates"
)

// Workbook sheet names.
const (
	CourseSheet     = "Course"
	CourseworkSheet = "Coursework"
)

// WorkbookColumns are the recognized Coursework sheet headers, in the order
// ExportWorkbook writes them. Header matching is case-insensitive and columns
// may appear in any order; only title and kind are required.
var WorkbookColumns = []string{
	"topic", "title", "kind", "due", "due_time", "publish", "points",
	"description", "choices", "pre_course",
	"material_kind", "material_source", "material_title",
}

// choiceSeparator splits the choices cell of a multiple-choice row.
const choiceSeparator = "|"

// LoadWorkbook reads a spreadsheet plan. The Course sheet holds key/value
// rows (course_epoch, course_name, ...). Each Coursework row declares an item;
// a row that repeats the previous row's topic and title with an empty kind
// adds another material to that item.
func LoadWorkbook(r io.Reader, opts ...Option) (*course.Plan, error) {
	o := newOptions(opts)

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Problems: []string{"reading workbook: " + err.Error()}, Err: err}
	}
	defer f.Close()

	doc, problems := readWorkbook(f)
	if len(problems) > 0 {
		return nil, &ParseError{Problems: problems}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding workbook plan: %w", err)
	}
	return load(data, o)
}

func readWorkbook(f *excelize.File) (*document, []string) {
	var problems []string
	doc := &document{}

	courseRows, err := f.GetRows(CourseSheet)
	if err != nil {
		return nil, []string{fmt.Sprintf("sheet %s: %v", CourseSheet, err)}
	}
	for i, row := range courseRows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		value := ""
		if len(row) > 1 {
			value = strings.TrimSpace(row[1])
		}
		switch key := strings.ToLower(strings.TrimSpace(row[0])); key {
		case "course_id":
			doc.CourseID = value
		case "course_name":
			doc.CourseName = value
		case "course_epoch":
			doc.CourseEpoch = value
		case "timezone":
			doc.Timezone = value
		case "default_due_time":
			doc.DefaultDueTime = value
		default:
			problems = append(problems, fmt.Sprintf("%s!A%d: unknown key %q", CourseSheet, i+1, key))
		}
	}

	rows, err := f.GetRows(CourseworkSheet)
	if err != nil {
		return nil, append(problems, fmt.Sprintf("sheet %s: %v", CourseworkSheet, err))
	}
	if len(rows) == 0 {
		return doc, problems
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		if !knownColumn(name) {
			problems = append(problems, fmt.Sprintf("%s!%s: unknown column %q", CourseworkSheet, cellName(i, 1), h))
			continue
		}
		cols[name] = i
	}
	for _, required := range []string{"title", "kind"} {
		if _, ok := cols[required]; !ok {
			problems = append(problems, fmt.Sprintf("%s: missing %q column", CourseworkSheet, required))
		}
	}
	if len(problems) > 0 {
		return nil, problems
	}

	topicIndex := map[string]int{}
	var last *courseworkDoc
	var lastTopic, lastTitle string

	for r, row := range rows[1:] {
		line := r + 2
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if isBlank(row) {
			continue
		}

		topic, title, kind := cell("topic"), cell("title"), cell("kind")
		material, hasMaterial := rowMaterial(cell)

		if kind == "" && last != nil && topic == lastTopic && title == lastTitle {
			if hasMaterial {
				last.Materials = append(last.Materials, material)
			}
			continue
		}

		cw := courseworkDoc{
			Title:       title,
			Kind:        kind,
			Due:         cell("due"),
			DueTime:     cell("due_time"),
			Publish:     cell("publish"),
			Description: cell("description"),
		}
		if v := cell("points"); v != "" {
			points, err := strconv.ParseFloat(v, 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s!%s: points %q is not a number", CourseworkSheet, cellName(cols["points"], line), v))
			} else {
				cw.Points = &points
			}
		}
		if v := cell("pre_course"); v != "" {
			pre, err := parseFlag(v)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s!%s: pre_course %q is not a yes/no value", CourseworkSheet, cellName(cols["pre_course"], line), v))
			}
			cw.PreCourse = pre
		}
		if v := cell("choices"); v != "" {
			cw.Choices = strings.Split(v, choiceSeparator)
		}
		if hasMaterial {
			cw.Materials = append(cw.Materials, material)
		}

		if topic == "" {
			doc.Coursework = append(doc.Coursework, cw)
			last = &doc.Coursework[len(doc.Coursework)-1]
		} else {
			idx, ok := topicIndex[topic]
			if !ok {
				idx = len(doc.Topics)
				topicIndex[topic] = idx
				doc.Topics = append(doc.Topics, topicDoc{Name: topic})
			}
			doc.Topics[idx].Coursework = append(doc.Topics[idx].Coursework, cw)
			last = &doc.Topics[idx].Coursework[len(doc.Topics[idx].Coursework)-1]
		}
		lastTopic, lastTitle = topic, title
	}

	return doc, problems
}

// ExportWorkbook writes p as a workbook LoadWorkbook can read back.
func ExportWorkbook(w io.Writer, p *course.Plan) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", CourseSheet); err != nil {
		return fmt.Errorf("naming course sheet: %w", err)
	}
	courseRows := [][]string{
		{"course_id", p.CourseID},
		{"course_name", p.CourseName},
		{"course_epoch", p.Epoch.Format(dates.DateLayout)},
	}
	if p.Location != nil {
		courseRows = append(courseRows, []string{"timezone", p.Location.String()})
	}
	for i, row := range courseRows {
		if err := f.SetSheetRow(CourseSheet, cellName(0, i+1), &row); err != nil {
			return fmt.Errorf("writing course sheet: %w", err)
		}
	}

	if _, err := f.NewSheet(CourseworkSheet); err != nil {
		return fmt.Errorf("adding coursework sheet: %w", err)
	}
	header := append([]string(nil), WorkbookColumns...)
	if err := f.SetSheetRow(CourseworkSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing coursework header: %w", err)
	}

	line := 2
	write := func(topic string, item course.Item) error {
		rows := itemRows(topic, item)
		for _, row := range rows {
			if err := f.SetSheetRow(CourseworkSheet, cellName(0, line), &row); err != nil {
				return fmt.Errorf("writing coursework row %d: %w", line, err)
			}
			line++
		}
		return nil
	}
	for _, t := range p.Topics {
		for _, item := range t.Items {
			if err := write(t.Name, item); err != nil {
				return err
			}
		}
	}
	for _, item := range p.Ungrouped {
		if err := write("", item); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func itemRows(topic string, item course.Item) [][]string {
	row := make([]string, len(WorkbookColumns))
	set := func(row []string, col, value string) {
		for i, c := range WorkbookColumns {
			if c == col {
				row[i] = value
				return
			}
		}
	}

	set(row, "topic", topic)
	set(row, "title", item.Title)
	set(row, "kind", string(item.Kind))
	set(row, "due", item.DueExpr)
	if item.Due != nil {
		set(row, "due_time", item.Due.Format("15:04"))
	}
	set(row, "publish", item.PublishExpr)
	if item.Points != nil {
		set(row, "points", strconv.FormatFloat(*item.Points, 'f', -1, 64))
	}
	set(row, "description", item.Description)
	set(row, "choices", strings.Join(item.Choices, choiceSeparator))
	if item.PreCourse {
		set(row, "pre_course", "yes")
	}

	rows := [][]string{row}
	for i, m := range item.Materials {
		target := row
		if i > 0 {
			target = make([]string, len(WorkbookColumns))
			set(target, "topic", topic)
			set(target, "title", item.Title)
			rows = append(rows, target)
		}
		set(target, "material_kind", string(m.Kind))
		set(target, "material_source", m.Source)
		set(target, "material_title", m.Title)
	}
	return rows
}

func rowMaterial(cell func(string) string) (course.RawMaterial, bool) {
	m := course.RawMaterial{
		Kind:   cell("material_kind"),
		Source: cell("material_source"),
		Title:  cell("material_title"),
	}
	return m, m.Kind != "" || m.Source != ""
}

func knownColumn(name string) bool {
	for _, c := range WorkbookColumns {
		if c == name {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "yes", "y", "x":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", row, col+1)
	}
	return name
}
