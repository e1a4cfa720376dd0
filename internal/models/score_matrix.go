package models

import (
	"math"
	"strings"

	appErrors "github.com/noah-isme/marksheet-api/pkg/errors"
)

// ScoreMatrix holds one mark per (student, test) pair. Students and tests are
// addressed by position. Every mutation either applies fully or leaves the
// matrix untouched.
type ScoreMatrix struct {
	students []Student
	tests    []Test
	marks    [][]Mark
}

// MatrixSnapshot is the serialisable form of a ScoreMatrix.
type MatrixSnapshot struct {
	Students []Student `json:"students"`
	Tests    []Test    `json:"tests"`
	Marks    [][]Mark  `json:"marks"`
}

// NewScoreMatrix builds a matrix with every cell unset.
func NewScoreMatrix(students []Student, tests []Test) (*ScoreMatrix, error) {
	for i, test := range tests {
		if err := validateTest(test); err != nil {
			return nil, appErrors.Clonef(appErrors.ErrInvalidMaximum, "test %d: %s", i+1, err.Message)
		}
	}
	m := &ScoreMatrix{
		students: cloneStudents(students),
		tests:    append([]Test(nil), tests...),
	}
	m.marks = blankMarks(len(m.students), len(m.tests))
	return m, nil
}

// RestoreScoreMatrix rebuilds a matrix from a snapshot, validating its shape and ranges.
func RestoreScoreMatrix(s MatrixSnapshot) (*ScoreMatrix, error) {
	m, err := NewScoreMatrix(s.Students, s.Tests)
	if err != nil {
		return nil, err
	}
	if len(s.Marks) > len(m.students) {
		return nil, appErrors.Clonef(appErrors.ErrUnknownEntity, "snapshot has marks for %d students but roster has %d", len(s.Marks), len(m.students))
	}
	for si, row := range s.Marks {
		if len(row) > len(m.tests) {
			return nil, appErrors.Clonef(appErrors.ErrUnknownEntity, "snapshot row %d has %d marks for %d tests", si+1, len(row), len(m.tests))
		}
		for ti, mark := range row {
			if !mark.Set {
				continue
			}
			if err := m.checkRange(ti, mark.Value); err != nil {
				return nil, err
			}
			m.marks[si][ti] = mark
		}
	}
	return m, nil
}

// Snapshot returns a deep copy of the matrix state.
func (m *ScoreMatrix) Snapshot() MatrixSnapshot {
	return MatrixSnapshot{
		Students: m.Students(),
		Tests:    m.Tests(),
		Marks:    cloneMarks(m.marks),
	}
}

// Clone returns an independent copy of the matrix.
func (m *ScoreMatrix) Clone() *ScoreMatrix {
	return &ScoreMatrix{
		students: cloneStudents(m.students),
		tests:    append([]Test(nil), m.tests...),
		marks:    cloneMarks(m.marks),
	}
}

// Students returns the roster in order.
func (m *ScoreMatrix) Students() []Student {
	return cloneStudents(m.students)
}

// Tests returns the tests in display order.
func (m *ScoreMatrix) Tests() []Test {
	return append([]Test(nil), m.tests...)
}

// StudentCount reports the roster size.
func (m *ScoreMatrix) StudentCount() int { return len(m.students) }

// TestCount reports the number of tests.
func (m *ScoreMatrix) TestCount() int { return len(m.tests) }

// MaximumTotal is the sum of all test maxima.
func (m *ScoreMatrix) MaximumTotal() float64 {
	var total float64
	for _, test := range m.tests {
		total += test.Maximum
	}
	return total
}

// Row returns the marks of one student aligned to test order.
func (m *ScoreMatrix) Row(student int) ([]Mark, error) {
	if err := m.checkStudent(student); err != nil {
		return nil, err
	}
	return append([]Mark(nil), m.marks[student]...), nil
}

// GetMark returns the stored mark or Unset.
func (m *ScoreMatrix) GetMark(student, test int) (Mark, error) {
	if err := m.checkCell(student, test); err != nil {
		return Unset, err
	}
	return m.marks[student][test], nil
}

// SetMark stores a mark within [0, test maximum].
func (m *ScoreMatrix) SetMark(student, test int, value float64) error {
	if err := m.checkCell(student, test); err != nil {
		return err
	}
	if err := m.checkRange(test, value); err != nil {
		return err
	}
	m.marks[student][test] = Scored(value)
	return nil
}

// ClearMark returns a cell to the ungraded state.
func (m *ScoreMatrix) ClearMark(student, test int) error {
	if err := m.checkCell(student, test); err != nil {
		return err
	}
	m.marks[student][test] = Unset
	return nil
}

// SetMarks applies a batch of entries; a nil value clears the cell. The first
// invalid entry rejects the whole batch.
func (m *ScoreMatrix) SetMarks(entries []MarkEntry) error {
	for _, entry := range entries {
		if err := m.checkCell(entry.Student, entry.Test); err != nil {
			return err
		}
		if entry.Value != nil {
			if err := m.checkRange(entry.Test, *entry.Value); err != nil {
				return err
			}
		}
	}
	for _, entry := range entries {
		if entry.Value == nil {
			m.marks[entry.Student][entry.Test] = Unset
			continue
		}
		m.marks[entry.Student][entry.Test] = Scored(*entry.Value)
	}
	return nil
}

// AddTest appends a test and back-fills an unset mark for every student.
func (m *ScoreMatrix) AddTest(test Test) error {
	if err := validateTest(test); err != nil {
		return err
	}
	m.tests = append(m.tests, test)
	for i := range m.marks {
		m.marks[i] = append(m.marks[i], Unset)
	}
	return nil
}

// UpdateTest replaces a test's name, date and maximum. Lowering the maximum
// below a recorded mark is rejected.
func (m *ScoreMatrix) UpdateTest(index int, test Test) error {
	if err := m.checkTest(index); err != nil {
		return err
	}
	if err := validateTest(test); err != nil {
		return err
	}
	for si := range m.marks {
		mark := m.marks[si][index]
		if mark.Set && mark.Value > test.Maximum {
			return appErrors.Clonef(appErrors.ErrOutOfRange, "student %d already has %s on %q, above the new maximum %s",
				si+1, FormatNumber(mark.Value), m.tests[index].Name, FormatNumber(test.Maximum))
		}
	}
	m.tests[index] = test
	return nil
}

// DefineTests replaces the whole test list. Marks in retained positions are
// kept and must fit the new maxima; new positions start unset.
func (m *ScoreMatrix) DefineTests(tests []Test) error {
	for i, test := range tests {
		if err := validateTest(test); err != nil {
			return appErrors.Clonef(appErrors.ErrInvalidMaximum, "test %d: %s", i+1, err.Message)
		}
	}
	next := blankMarks(len(m.students), len(tests))
	for si := range m.marks {
		for ti := 0; ti < len(tests) && ti < len(m.tests); ti++ {
			mark := m.marks[si][ti]
			if mark.Set && mark.Value > tests[ti].Maximum {
				return appErrors.Clonef(appErrors.ErrOutOfRange, "student %d already has %s on test %d, above the new maximum %s",
					si+1, FormatNumber(mark.Value), ti+1, FormatNumber(tests[ti].Maximum))
			}
			next[si][ti] = mark
		}
	}
	m.tests = append([]Test(nil), tests...)
	m.marks = next
	return nil
}

// ResizeRoster replaces the roster. When the new roster extends the old one
// (every existing position keeps its name) marks are preserved and new
// students start unset; any other change resets every mark.
func (m *ScoreMatrix) ResizeRoster(students []Student) (preserved bool) {
	preserved = isExtension(m.students, students)
	next := blankMarks(len(students), len(m.tests))
	if preserved {
		for si := range m.marks {
			copy(next[si], m.marks[si])
		}
	}
	m.students = cloneStudents(students)
	m.marks = next
	return preserved
}

func (m *ScoreMatrix) checkStudent(student int) error {
	if student < 0 || student >= len(m.students) {
		return appErrors.Clonef(appErrors.ErrUnknownEntity, "student %d is not on the roster", student+1)
	}
	return nil
}

func (m *ScoreMatrix) checkTest(test int) error {
	if test < 0 || test >= len(m.tests) {
		return appErrors.Clonef(appErrors.ErrUnknownEntity, "test %d is not defined", test+1)
	}
	return nil
}

func (m *ScoreMatrix) checkCell(student, test int) error {
	if err := m.checkStudent(student); err != nil {
		return err
	}
	return m.checkTest(test)
}

func (m *ScoreMatrix) checkRange(test int, value float64) error {
	max := m.tests[test].Maximum
	if !isFinite(value) || value < 0 || value > max {
		return appErrors.Clonef(appErrors.ErrOutOfRange, "mark %s outside [0, %s] for %q",
			FormatNumber(value), FormatNumber(max), m.tests[test].Name)
	}
	return nil
}

func validateTest(test Test) *appErrors.Error {
	if !isFinite(test.Maximum) || test.Maximum < 1 {
		return appErrors.Clonef(appErrors.ErrInvalidMaximum, "maximum for %q must be a finite number of at least 1, got %s",
			strings.TrimSpace(test.Name), FormatNumber(test.Maximum))
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isExtension(old, next []Student) bool {
	if len(next) < len(old) {
		return false
	}
	for i := range old {
		if old[i].Name != next[i].Name {
			return false
		}
	}
	return true
}

func blankMarks(students, tests int) [][]Mark {
	marks := make([][]Mark, students)
	for i := range marks {
		marks[i] = make([]Mark, tests)
	}
	return marks
}

func cloneMarks(src [][]Mark) [][]Mark {
	out := make([][]Mark, len(src))
	for i, row := range src {
		out[i] = append([]Mark(nil), row...)
	}
	return out
}

func cloneStudents(src []Student) []Student {
	out := make([]Student, len(src))
	for i, s := range src {
		out[i] = Student{Name: s.Name}
		if len(s.Attributes) > 0 {
			out[i].Attributes = make(map[string]string, len(s.Attributes))
			for k, v := range s.Attributes {
				out[i].Attributes[k] = v
			}
		}
	}
	return out
}
