// Package seed loads a YAML fixture of timetables, students and credentials
// into the in-memory backend or a Postgres database.
package seed

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"campusattend/internal/credential"
	"campusattend/internal/roster"
	"campusattend/internal/schedule"
)

// StudentEntry is a student plus its enrolled credentials.
type StudentEntry struct {
	roster.Student `yaml:",inline"`
	NFCTag         string `yaml:"nfc_tag"`
	Biometric      string `yaml:"biometric"` // base64 of the raw template
}

// File is the seed document.
type File struct {
	TimetableList []schedule.Timetable `yaml:"timetables"`
	Students      []StudentEntry       `yaml:"students"`
}

// Load reads the seed file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a seed document.
func Decode(r io.Reader) (*File, error) {
	var doc File
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, s := range doc.Students {
		if s.ID == "" || s.ClassID == "" {
			return nil, fmt.Errorf("seed student %d: id and class_id required", i)
		}
		if s.EnrollmentStatus == "" {
			doc.Students[i].EnrollmentStatus = roster.StatusApproved
		}
	}
	return &doc, nil
}

// Timetables makes File a schedule.Source.
func (f *File) Timetables(context.Context) ([]schedule.Timetable, error) {
	return append([]schedule.Timetable(nil), f.TimetableList...), nil
}

// Apply loads the students and their credentials into m, sealing biometric
// templates with cipher when one is configured.
func (f *File) Apply(m *roster.Memory, cipher *credential.TemplateCipher) error {
	for _, s := range f.Students {
		tmpl, err := s.template(cipher)
		if err != nil {
			return err
		}
		m.Put(s.Student)
		if s.NFCTag != "" {
			m.SetNFCTag(s.ID, s.NFCTag)
		}
		if tmpl != nil {
			m.SetBiometricTemplate(s.ID, tmpl)
		}
	}
	return nil
}

// StudentWriter persists students and credentials; *roster.Repository
// satisfies it.
type StudentWriter interface {
	UpsertStudent(ctx context.Context, s roster.Student) error
	UpsertNFCTag(ctx context.Context, studentID, tagID string) error
	UpsertBiometricTemplate(ctx context.Context, studentID string, template []byte) error
}

// TimetableWriter persists timetables; *schedule.Repository satisfies it.
type TimetableWriter interface {
	UpsertTimetable(ctx context.Context, tt schedule.Timetable) error
}

// Sync writes the whole document into durable stores. It is safe to run on
// every start.
func (f *File) Sync(ctx context.Context, students StudentWriter, timetables TimetableWriter, cipher *credential.TemplateCipher) error {
	for _, tt := range f.TimetableList {
		if err := timetables.UpsertTimetable(ctx, tt); err != nil {
			return fmt.Errorf("seed timetable %s: %w", tt.ID, err)
		}
	}
	for _, s := range f.Students {
		tmpl, err := s.template(cipher)
		if err != nil {
			return err
		}
		if err := students.UpsertStudent(ctx, s.Student); err != nil {
			return fmt.Errorf("seed student %s: %w", s.ID, err)
		}
		if s.NFCTag != "" {
			if err := students.UpsertNFCTag(ctx, s.ID, s.NFCTag); err != nil {
				return fmt.Errorf("seed student %s: nfc tag: %w", s.ID, err)
			}
		}
		if tmpl != nil {
			if err := students.UpsertBiometricTemplate(ctx, s.ID, tmpl); err != nil {
				return fmt.Errorf("seed student %s: template: %w", s.ID, err)
			}
		}
	}
	return nil
}

// template decodes and seals the entry's biometric template, nil when none.
func (s StudentEntry) template(cipher *credential.TemplateCipher) ([]byte, error) {
	if s.Biometric == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s.Biometric)
	if err != nil {
		return nil, fmt.Errorf("seed student %s: biometric: %w", s.ID, err)
	}
	sealed, err := cipher.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("seed student %s: seal template: %w", s.ID, err)
	}
	return sealed, nil
}
