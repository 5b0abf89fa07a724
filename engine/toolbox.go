package engine

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// toolboxSchemaVersion is the usernotes document schema this code
// understands. A mismatch is a hard error for the flush; the document is
// never rewritten under an unknown schema.
const toolboxSchemaVersion = 6

// UserNote is one queued moderation annotation.
type UserNote struct {
	Author    string
	Level     string
	Link      string
	Moderator string
	Text      string
	Time      int64
}

// toolboxPage is the top-level usernotes wiki document.
type toolboxPage struct {
	Ver       int              `json:"ver"`
	Constants toolboxConstants `json:"constants"`
	Blob      string           `json:"blob"`
}

// toolboxConstants are the lookup lists notes index into. Existing entries
// keep their positions; new names are appended.
type toolboxConstants struct {
	Users    []string `json:"users"`
	Warnings []string `json:"warnings"`
}

type toolboxNote struct {
	Note    string `json:"n"`
	Time    int64  `json:"t"`
	Mod     int    `json:"m"`
	Link    string `json:"l"`
	Warning int    `json:"w"`
}

type toolboxUserNotes struct {
	Notes []toolboxNote `json:"ns"`
}

// EncodeBlob serializes a value the way Toolbox stores its notes blob:
// JSON, deflated, base64.
func EncodeBlob(v any) (string, error) {
	serialized, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(serialized); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBlob reverses EncodeBlob.
func DecodeBlob(blob string, v any) error {
	compressed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("decoding notes blob: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("decompressing notes blob: %w", err)
	}
	defer zr.Close()
	serialized, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("decompressing notes blob: %w", err)
	}
	return json.Unmarshal(serialized, v)
}

// transform merges every queued note into the usernotes document, newest
// first per author.
func (l *NoteLedger) transform(content string) (string, error) {
	var page toolboxPage
	if err := json.Unmarshal([]byte(content), &page); err != nil {
		return "", fmt.Errorf("parsing usernotes page: %w", err)
	}
	if page.Ver != toolboxSchemaVersion {
		return "", fmt.Errorf("unexpected toolbox notes version: %d", page.Ver)
	}

	modIndices := prepareIndices(&page.Constants.Users, l.noteValues(func(n UserNote) string { return n.Moderator }))
	warningIndices := prepareIndices(&page.Constants.Warnings, l.noteValues(func(n UserNote) string { return n.Level }))

	notes := make(map[string]*toolboxUserNotes)
	if page.Blob != "" {
		if err := DecodeBlob(page.Blob, &notes); err != nil {
			return "", err
		}
	}

	for _, note := range l.notes {
		entry := notes[note.Author]
		if entry == nil {
			entry = &toolboxUserNotes{Notes: []toolboxNote{}}
			notes[note.Author] = entry
		}
		serialized := toolboxNote{
			Note:    note.Text,
			Time:    note.Time,
			Mod:     modIndices[note.Moderator],
			Link:    note.Link,
			Warning: warningIndices[note.Level],
		}
		entry.Notes = append([]toolboxNote{serialized}, entry.Notes...)
	}

	blob, err := EncodeBlob(notes)
	if err != nil {
		return "", err
	}
	page.Blob = blob

	updated, err := json.Marshal(page)
	if err != nil {
		return "", err
	}
	return string(updated), nil
}

func (l *NoteLedger) noteValues(key func(UserNote) string) []string {
	out := make([]string, len(l.notes))
	for i, note := range l.notes {
		out[i] = key(note)
	}
	return out
}

// prepareIndices maps each item to its position, appending values not yet
// present. Previously-known names keep their stable index assignment.
func prepareIndices(items *[]string, values []string) map[string]int {
	indices := make(map[string]int, len(*items))
	for i, item := range *items {
		indices[item] = i
	}
	for _, value := range values {
		if _, ok := indices[value]; !ok {
			indices[value] = len(*items)
			*items = append(*items, value)
		}
	}
	return indices
}
