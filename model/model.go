// Package model defines the core domain types shared across all copair packages.
// It has zero dependencies on other copair packages.
package model

import "time"

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusEnded    Status = "ended"
)

// Role represents a participant's permission level within a session.
type Role string

const (
	RoleCreator Role = "creator"
	RoleEditor  Role = "editor"
	RoleViewer  Role = "viewer"
)

// RoleAll is the wildcard entry for permission lists: a session whose
// editor list contains it grants editor to every joiner.
const RoleAll = "all"

// AssistantID is the sentinel author identity for AI-generated chat messages.
const AssistantID = "assistant"

// Session is a named collaborative workspace. It is owned exclusively by
// the engine; other packages only ever see snapshots of it.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	Permissions Permissions `json:"permissions"`
}

// Permissions holds the coarse access lists for a session.
type Permissions struct {
	Editors  []string `json:"editors"`
	Viewers  []string `json:"viewers"`
	IsPublic bool     `json:"is_public"`
}

// Participant is a member of a session. ConnectionID is an association to
// a live connection, never ownership: it is cleared when the connection
// closes, while the participant record remains.
type Participant struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
	ConnectionID string    `json:"-"`
}

// FileState is the shared text buffer for one file in a session.
// Version increases by exactly 1 per successfully applied operation and
// starts at 1 on the first write.
type FileState struct {
	Name           string    `json:"name"`
	Content        string    `json:"content"`
	Language       string    `json:"language"`
	Version        int       `json:"version"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// OpKind discriminates edit operations.
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
	OpReplace OpKind = "replace"
)

// Position is a zero-based line/column location in a file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// EditOperation is a single mutation of a file's text buffer.
// For inserts Text carries the inserted payload; for deletes Length is
// the number of characters removed from the target line; for replaces
// Text is the wholesale new content.
type EditOperation struct {
	Kind     OpKind   `json:"kind"`
	FileName string   `json:"file_name"`
	AuthorID string   `json:"author_id"`
	Position Position `json:"position"`
	Text     string   `json:"text,omitempty"`
	Length   int      `json:"length,omitempty"`

	// ProducedVersion is filled in by the engine after a successful apply.
	ProducedVersion int `json:"produced_version,omitempty"`
}

// CursorState is a participant's last-known cursor location. Ephemeral:
// overwritten in place, never persisted.
type CursorState struct {
	ParticipantID string    `json:"participant_id"`
	FileName      string    `json:"file_name"`
	Line          int       `json:"line"`
	Column        int       `json:"column"`
	Selection     string    `json:"selection,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MessageKind discriminates chat messages.
type MessageKind string

const (
	MessageUser      MessageKind = "user"
	MessageSystem    MessageKind = "system"
	MessageAssistant MessageKind = "assistant"
)

// ChatMessage is one entry in a session's bounded chat history.
type ChatMessage struct {
	ID        string      `json:"id"`
	AuthorID  string      `json:"author_id"`
	Body      string      `json:"body"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
	InReplyTo string      `json:"in_reply_to,omitempty"`
}

// Activity is one entry in a session's bounded activity log. The last
// entry's timestamp drives the session-inactivity sweep.
type Activity struct {
	Type      string    `json:"type"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionStats summarizes one session for the stats endpoints.
type SessionStats struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	Participants int       `json:"participants"`
	Files        int       `json:"files"`
	ChatMessages int       `json:"chat_messages"`
	Activities   int       `json:"activities"`
	CreatedAt    time.Time `json:"created_at"`
	DurationSec  int64     `json:"duration_sec"`
}

// PlatformStats aggregates across all sessions.
type PlatformStats struct {
	TotalSessions     int             `json:"total_sessions"`
	ActiveSessions    int             `json:"active_sessions"`
	TotalParticipants int             `json:"total_participants"`
	Languages         []LanguageCount `json:"languages"`
}

// LanguageCount is one entry in the popular-languages breakdown.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// Snapshot is the persisted form of a session: the full mutable state as
// one document, saved best-effort by the engine.
type Snapshot struct {
	Session      Session               `json:"session"`
	Participants []Participant         `json:"participants"`
	Files        map[string]*FileState `json:"files"`
	Chat         []ChatMessage         `json:"chat"`
	CurrentFile  string                `json:"current_file,omitempty"`
	TakenAt      time.Time             `json:"taken_at"`
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
