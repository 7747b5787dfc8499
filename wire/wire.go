// Package wire defines the websocket message protocol: a closed set of
// inbound and outbound event types carried in a {type, sessionId, data}
// envelope. Every inbound frame is parsed into an Envelope and then
// decoded into the payload struct for its type; unknown types and
// unparsable frames surface as model.ErrMalformed.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/copairhq/copair/model"
)

// Inbound event types.
const (
	TypeJoinSession    = "join_session"
	TypeLeaveSession   = "leave_session"
	TypeCodeChange     = "code_change"
	TypeCursorPosition = "cursor_position"
	TypeChatMessage    = "chat_message"
	TypeAIRequest      = "ai_request"
	TypeFileSelection  = "file_selection"
)

// Outbound event types.
const (
	TypeSessionJoined     = "session_joined"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeCodeChanged       = "code_changed"
	TypeCursorMoved       = "cursor_moved"
	TypeChat              = "chat_message"
	TypeAIResponse        = "ai_response"
	TypeFileSelected      = "file_selected"
	TypeError             = "error"
)

// Envelope is the frame shared by all inbound messages.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// ParseInbound decodes a raw frame into an Envelope. The envelope's Type
// must be one of the inbound types; anything else is malformed.
func ParseInbound(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	switch env.Type {
	case TypeJoinSession, TypeLeaveSession, TypeCodeChange,
		TypeCursorPosition, TypeChatMessage, TypeAIRequest, TypeFileSelection:
		return &env, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrMalformed, env.Type)
	}
}

func (e *Envelope) decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: missing data for %s", model.ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: bad %s payload: %v", model.ErrMalformed, e.Type, err)
	}
	return nil
}

// --- Inbound payloads ---

// JoinPayload accompanies join_session.
type JoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Join decodes the envelope as a join_session payload.
func (e *Envelope) Join() (JoinPayload, error) {
	var p JoinPayload
	if err := e.decode(&p); err != nil {
		return p, err
	}
	if p.UserID == "" {
		return p, fmt.Errorf("%w: join_session requires userId", model.ErrMalformed)
	}
	return p, nil
}

// EditPayload accompanies code_change.
type EditPayload struct {
	Kind     model.OpKind   `json:"kind"`
	FileName string         `json:"fileName"`
	Position model.Position `json:"position"`
	Text     string         `json:"text,omitempty"`
	Length   int            `json:"length,omitempty"`
}

// Edit decodes the envelope as a code_change payload.
func (e *Envelope) Edit() (EditPayload, error) {
	var p EditPayload
	if err := e.decode(&p); err != nil {
		return p, err
	}
	switch p.Kind {
	case model.OpInsert, model.OpDelete, model.OpReplace:
	default:
		return p, fmt.Errorf("%w: unknown operation kind %q", model.ErrMalformed, p.Kind)
	}
	if p.FileName == "" {
		return p, fmt.Errorf("%w: code_change requires fileName", model.ErrMalformed)
	}
	return p, nil
}

// CursorPayload accompanies cursor_position.
type CursorPayload struct {
	FileName  string `json:"fileName"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	Selection string `json:"selection,omitempty"`
}

// Cursor decodes the envelope as a cursor_position payload.
func (e *Envelope) Cursor() (CursorPayload, error) {
	var p CursorPayload
	err := e.decode(&p)
	return p, err
}

// ChatPayload accompanies chat_message.
type ChatPayload struct {
	Body string `json:"body"`
}

// Chat decodes the envelope as a chat_message payload.
func (e *Envelope) Chat() (ChatPayload, error) {
	var p ChatPayload
	if err := e.decode(&p); err != nil {
		return p, err
	}
	if p.Body == "" {
		return p, fmt.Errorf("%w: chat_message requires body", model.ErrMalformed)
	}
	return p, nil
}

// AIRequestPayload accompanies ai_request.
type AIRequestPayload struct {
	Request string `json:"request"`
	Context string `json:"context,omitempty"`
}

// AIRequest decodes the envelope as an ai_request payload.
func (e *Envelope) AIRequest() (AIRequestPayload, error) {
	var p AIRequestPayload
	if err := e.decode(&p); err != nil {
		return p, err
	}
	if p.Request == "" {
		return p, fmt.Errorf("%w: ai_request requires request", model.ErrMalformed)
	}
	return p, nil
}

// FileSelectionPayload accompanies file_selection.
type FileSelectionPayload struct {
	FileName string `json:"fileName"`
	Content  string `json:"content,omitempty"`
}

// FileSelection decodes the envelope as a file_selection payload.
func (e *Envelope) FileSelection() (FileSelectionPayload, error) {
	var p FileSelectionPayload
	if err := e.decode(&p); err != nil {
		return p, err
	}
	if p.FileName == "" {
		return p, fmt.Errorf("%w: file_selection requires fileName", model.ErrMalformed)
	}
	return p, nil
}

// --- Outbound events ---

// Event is an outbound frame. Data is marshaled as-is.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Encode marshals an outbound event for the transport. Marshal failures
// cannot happen for the payload types this package constructs, so Encode
// returns only the bytes.
func Encode(ev Event) []byte {
	b, err := json.Marshal(ev)
	if err != nil {
		b, _ = json.Marshal(Event{Type: TypeError, Data: ErrorData{
			Code:    "internal",
			Message: "failed to encode event",
		}})
	}
	return b
}

// SessionJoinedData is the snapshot delivered to a joiner.
type SessionJoinedData struct {
	Session     model.Session               `json:"session"`
	Participant model.Participant           `json:"participant"`
	Files       map[string]*model.FileState `json:"files"`
	CurrentFile string                      `json:"currentFile,omitempty"`
	Roster      []model.Participant         `json:"roster"`
	RecentChat  []model.ChatMessage         `json:"recentChat"`
}

// ParticipantData accompanies participant_joined / participant_left.
type ParticipantData struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	Role        model.Role `json:"role,omitempty"`
}

// CodeChangedData accompanies code_changed.
type CodeChangedData struct {
	Operation model.EditOperation `json:"operation"`
	File      model.FileState     `json:"file"`
}

// FileSelectedData accompanies file_selected.
type FileSelectedData struct {
	FileName   string `json:"fileName"`
	Content    string `json:"content"`
	SelectedBy string `json:"selectedBy"`
}

// ErrorData accompanies error events.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent builds an error frame for a single client from a taxonomy
// error.
func ErrorEvent(sessionID string, err error) Event {
	return Event{
		Type:      TypeError,
		SessionID: sessionID,
		Data: ErrorData{
			Code:    model.ErrorCode(err),
			Message: err.Error(),
		},
	}
}
