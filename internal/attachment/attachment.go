package attachment

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// Slot identifies one of the four user inputs of a run
type Slot int

const (
	SlotText Slot = iota
	SlotSourceFile
	SlotPhoto
	SlotVoice
)

func (s Slot) String() string {
	switch s {
	case SlotText:
		return "text"
	case SlotSourceFile:
		return "file"
	case SlotPhoto:
		return "photo"
	case SlotVoice:
		return "voice"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// File is an uploaded input asset
type File struct {
	Name     string
	Data     []byte
	MIMEType string
}

// Set holds the user inputs for a generation run. The zero value is empty and
// ready to use.
type Set struct {
	text   string
	source *File
	photo  *File
	voice  *File

	mu sync.RWMutex
}

// Snapshot is an immutable view of a Set taken at submission time
type Snapshot struct {
	Text       string
	SourceFile *File
	Photo      *File
	Voice      *File
}

// HasContent reports whether the snapshot carries story content
func (s Snapshot) HasContent() bool {
	return s.Text != "" || s.SourceFile != nil
}

// IsSubmittable reports whether content, photo and voice are all present
func (s Snapshot) IsSubmittable() bool {
	return s.HasContent() && s.Photo != nil && s.Voice != nil
}

// Missing lists the slots that keep the snapshot from being submittable
func (s Snapshot) Missing() []string {
	var missing []string
	if !s.HasContent() {
		missing = append(missing, "text or file")
	}
	if s.Photo == nil {
		missing = append(missing, SlotPhoto.String())
	}
	if s.Voice == nil {
		missing = append(missing, SlotVoice.String())
	}
	return missing
}

// SetText replaces the free-text story body
func (s *Set) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

// SetSourceFile replaces the source document; nil clears it
func (s *Set) SetSourceFile(f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = f
}

// SetPhoto replaces the reference photo; nil clears it
func (s *Set) SetPhoto(f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photo = f
}

// SetVoice replaces the voice sample; nil clears it
func (s *Set) SetVoice(f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = f
}

// Clear removes the value of one slot
func (s *Set) Clear(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch slot {
	case SlotText:
		s.text = ""
	case SlotSourceFile:
		s.source = nil
	case SlotPhoto:
		s.photo = nil
	case SlotVoice:
		s.voice = nil
	}
}

// HasContent reports whether text is non-empty or a source file is present
func (s *Set) HasContent() bool {
	return s.Snapshot().HasContent()
}

// IsSubmittable reports whether the set is ready to be sent
func (s *Set) IsSubmittable() bool {
	return s.Snapshot().IsSubmittable()
}

// Snapshot returns a copy of the current values
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Text:       s.text,
		SourceFile: cloneFile(s.source),
		Photo:      cloneFile(s.photo),
		Voice:      cloneFile(s.voice),
	}
}

func cloneFile(f *File) *File {
	if f == nil {
		return nil
	}
	return &File{
		Name:     f.Name,
		Data:     append([]byte(nil), f.Data...),
		MIMEType: f.MIMEType,
	}
}

// LoadFile reads path into a File, detecting its MIME type from the
// extension or, failing that, from the content.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return &File{Name: name, Data: data, MIMEType: mimeType}, nil
}

var sourceExtensions = map[string]bool{".txt": true, ".md": true, ".csv": true}

// ValidateSourceFile checks that f is a UTF-8 text document the generation
// service accepts as story input.
func ValidateSourceFile(f *File) error {
	if f == nil {
		return fmt.Errorf("source file is missing")
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	if !sourceExtensions[ext] {
		return fmt.Errorf("unsupported source file %q: only .txt, .md and .csv are accepted, paste the text instead", f.Name)
	}

	if !utf8.Valid(f.Data) {
		return fmt.Errorf("source file %q must be UTF-8 encoded, paste the text instead", f.Name)
	}

	return nil
}
