package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the short day/month/year form used on printed marks records.
const DateLayout = "02/01/2006"

// Student is a roster entry. Identity is the position in the roster, not the name.
type Student struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Test describes one assessment column.
type Test struct {
	Name    string    `json:"name"`
	Date    time.Time `json:"date"`
	Maximum float64   `json:"maximum"`
}

// Label renders the test as "name (/ max)".
func (t Test) Label() string {
	return t.Name + " (/ " + FormatNumber(t.Maximum) + ")"
}

// ShortDate renders the test date as dd/mm/yyyy, or blank when unset.
func (t Test) ShortDate() string {
	if t.Date.IsZero() {
		return ""
	}
	return t.Date.Format(DateLayout)
}

// Mark is a single score cell. An unset mark is "not yet graded", distinct from zero.
type Mark struct {
	Value float64
	Set   bool
}

// Scored builds a set mark.
func Scored(value float64) Mark {
	return Mark{Value: value, Set: true}
}

// Unset is the "not yet graded" marker.
var Unset = Mark{}

// Points returns the aggregation value, zero when unset.
func (m Mark) Points() float64 {
	if !m.Set {
		return 0
	}
	return m.Value
}

// String renders the mark for tables; unset marks are blank.
func (m Mark) String() string {
	if !m.Set {
		return ""
	}
	return FormatNumber(m.Value)
}

// MarshalJSON encodes unset marks as null.
func (m Mark) MarshalJSON() ([]byte, error) {
	if !m.Set {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null as unset.
func (m *Mark) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Unset
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Scored(v)
	return nil
}

// MarkEntry addresses one cell of the score matrix by position.
type MarkEntry struct {
	Student int      `json:"student"`
	Test    int      `json:"test"`
	Value   *float64 `json:"value"`
}

// ReportRow is the derived per-student line of a marks record.
type ReportRow struct {
	Position     int     `json:"position"`
	Student      Student `json:"student"`
	Marks        []Mark  `json:"marks"`
	Total        float64 `json:"total"`
	MaximumTotal float64 `json:"maximum_total"`
	Percentage   float64 `json:"percentage"`
	Rank         int     `json:"rank"`
}

// SequenceNumber is the 1-based roster position.
func (r ReportRow) SequenceNumber() int {
	return r.Position + 1
}

// Metadata is the school/report information block printed above the table.
type Metadata struct {
	District     string `json:"district"`
	Sector       string `json:"sector"`
	School       string `json:"school"`
	Class        string `json:"class"`
	AcademicYear string `json:"academic_year"`
	Term         string `json:"term"`
	Subject      string `json:"subject"`
	Teacher      string `json:"teacher"`
}

// MetadataField is one label/value pair of the metadata block.
type MetadataField struct {
	Label string
	Value string
}

// Fields returns the metadata block in print order.
func (m Metadata) Fields() []MetadataField {
	return []MetadataField{
		{Label: "District", Value: m.District},
		{Label: "Sector", Value: m.Sector},
		{Label: "School", Value: m.School},
		{Label: "Class", Value: m.Class},
		{Label: "Academic Year", Value: m.AcademicYear},
		{Label: "Term", Value: m.Term},
		{Label: "Subject", Value: m.Subject},
		{Label: "Teacher", Value: m.Teacher},
	}
}

// FormatNumber renders marks and totals as plain numbers ("18", "12.5").
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatPercentage renders a percentage with two decimals ("82.50").
func FormatPercentage(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// TrimNames normalises a list of display names into students, dropping blanks.
func TrimNames(names []string) []Student {
	students := make([]Student, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		students = append(students, Student{Name: name})
	}
	return students
}
