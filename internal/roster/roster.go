package roster

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when a student does not exist.
var ErrNotFound = errors.New("student not found")

// EnrollmentStatus mirrors the registration workflow of the student profile system.
type EnrollmentStatus string

const (
	StatusPending  EnrollmentStatus = "pending"
	StatusApproved EnrollmentStatus = "approved"
	StatusRejected EnrollmentStatus = "rejected"
)

// Student is the slice of a student profile the attendance core needs.
type Student struct {
	ID               string           `json:"id" yaml:"id"`
	ClassID          string           `json:"classId" yaml:"class_id"`
	EnrollmentStatus EnrollmentStatus `json:"enrollmentStatus" yaml:"status"`
}

// Approved reports whether the student may record attendance.
func (s Student) Approved() bool { return s.EnrollmentStatus == StatusApproved }

// Memory is an in-process roster and credential store, used for development
// and tests. Templates are stored as given (encrypted or not).
type Memory struct {
	mu        sync.RWMutex
	students  map[string]Student
	nfc       map[string]string
	templates map[string][]byte
}

// NewMemory creates an empty roster.
func NewMemory() *Memory {
	return &Memory{
		students:  make(map[string]Student),
		nfc:       make(map[string]string),
		templates: make(map[string][]byte),
	}
}

// Put adds or replaces a student.
func (m *Memory) Put(s Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

// SetNFCTag stores the NFC tag for a student.
func (m *Memory) SetNFCTag(studentID, tagID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nfc[studentID] = tagID
}

// SetBiometricTemplate stores the biometric template for a student.
func (m *Memory) SetBiometricTemplate(studentID string, template []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[studentID] = append([]byte(nil), template...)
}

func (m *Memory) GetStudent(_ context.Context, studentID string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListByClass(_ context.Context, classID string) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Student
	for _, s := range m.students {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetNFCTag(_ context.Context, studentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nfc[studentID], nil
}

func (m *Memory) GetBiometricTemplate(_ context.Context, studentID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.templates[studentID]
	if t == nil {
		return nil, nil
	}
	return append([]byte(nil), t...), nil
}
