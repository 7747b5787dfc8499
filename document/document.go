// Package document applies edit operations to shared file buffers.
//
// Operations for a given file are applied strictly in the order the
// caller presents them, one at a time; there is no reordering or merging
// of concurrent edits. The later of two racing edits is interpreted
// against the buffer after the earlier one has landed (last-applied-wins
// at the character-offset level). Callers serialize access; this package
// holds no locks.
package document

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/copairhq/copair/model"
)

// languageByExt maps file extensions to editor language identifiers.
var languageByExt = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".java": "java",
	".cpp":  "cpp",
	".c":    "c",
	".cs":   "csharp",
	".php":  "php",
	".rb":   "ruby",
	".go":   "go",
	".rs":   "rust",
	".html": "html",
	".css":  "css",
	".json": "json",
	".xml":  "xml",
	".yaml": "yaml",
	".yml":  "yaml",
}

// DetectLanguage derives the language identifier from a file name.
// Unknown extensions map to "text".
func DetectLanguage(fileName string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return lang
	}
	return "text"
}

// NewFileState returns an empty buffer for the named file. Version is 0
// until the first applied operation.
func NewFileState(fileName string) *model.FileState {
	return &model.FileState{
		Name:     fileName,
		Language: DetectLanguage(fileName),
	}
}

// Apply mutates f with one operation and bumps its version by exactly 1.
// Out-of-range positions are clamped rather than rejected: an insert past
// the last line pads the buffer with empty lines, and a delete that
// overruns its line is truncated to the line's end. A clamped apply still
// counts as applied.
func Apply(f *model.FileState, op model.EditOperation) error {
	switch op.Kind {
	case model.OpInsert:
		f.Content = applyInsert(f.Content, op.Text, op.Position)
	case model.OpDelete:
		f.Content = applyDelete(f.Content, op.Position, op.Length)
	case model.OpReplace:
		f.Content = op.Text
	default:
		return fmt.Errorf("%w: unknown operation kind %q", model.ErrMalformed, op.Kind)
	}
	f.Version++
	f.LastModifiedAt = time.Now().UTC()
	return nil
}

// applyInsert splits the target line at the column and splices text in.
// All other lines are untouched.
func applyInsert(content, text string, pos model.Position) string {
	lines := strings.Split(content, "\n")
	if pos.Line < 0 {
		pos.Line = 0
	}
	for len(lines) <= pos.Line {
		lines = append(lines, "")
	}
	line := lines[pos.Line]
	col := clamp(pos.Column, len(line))
	lines[pos.Line] = line[:col] + text + line[col:]
	return strings.Join(lines, "\n")
}

// applyDelete removes length characters from the target line starting at
// the column. Deletes never span lines in this model.
func applyDelete(content string, pos model.Position, length int) string {
	lines := strings.Split(content, "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return content
	}
	line := lines[pos.Line]
	col := clamp(pos.Column, len(line))
	end := clamp(col+length, len(line))
	if end < col {
		end = col
	}
	lines[pos.Line] = line[:col] + line[end:]
	return strings.Join(lines, "\n")
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
