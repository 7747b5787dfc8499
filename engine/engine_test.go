package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/copairhq/copair/ai"
	"github.com/copairhq/copair/model"
	"github.com/copairhq/copair/sandbox"
	"github.com/copairhq/copair/wire"
)

// --- stubs ---

type published struct {
	sessionID string
	frame     wire.Event
	exclude   string
}

type fakePublisher struct {
	mu        sync.Mutex
	sent      map[string][]wire.Event // connID -> frames
	published []published
	bound     map[string]string // connID -> sessionID
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		sent:  make(map[string][]wire.Event),
		bound: make(map[string]string),
	}
}

func decodeFrame(data []byte) wire.Event {
	var raw struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Data      json.RawMessage `json:"data"`
	}
	json.Unmarshal(data, &raw)
	return wire.Event{Type: raw.Type, SessionID: raw.SessionID, Data: raw.Data}
}

func (p *fakePublisher) Publish(sessionID string, data []byte, excludeConnID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, published{sessionID, decodeFrame(data), excludeConnID})
}

func (p *fakePublisher) Send(connID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[connID] = append(p.sent[connID], decodeFrame(data))
	return nil
}

func (p *fakePublisher) Bind(connID, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound[connID] = sessionID
}

func (p *fakePublisher) Unbind(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bound, connID)
}

func (p *fakePublisher) sentTo(connID string) []wire.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.Event(nil), p.sent[connID]...)
}

func (p *fakePublisher) broadcasts(typ string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, pub := range p.published {
		if pub.frame.Type == typ {
			out = append(out, pub)
		}
	}
	return out
}

type stubRuntime struct {
	lastReq sandbox.Request
}

func (s *stubRuntime) Execute(_ context.Context, req sandbox.Request) (sandbox.Result, error) {
	s.lastReq = req
	return sandbox.Result{Status: sandbox.StatusSuccess, Output: "ok"}, nil
}

// --- helpers ---

func testEngine(t *testing.T, gen ai.Generator) (*Engine, *fakePublisher) {
	t.Helper()
	pub := newFakePublisher()
	eng := New(Config{ChatHistoryCap: 100}, pub, nil, gen, &stubRuntime{})
	return eng, pub
}

func createSession(t *testing.T, eng *Engine, creator string, editors ...string) model.Session {
	t.Helper()
	sess, err := eng.CreateSession(CreateOptions{
		Name: "test", CreatorID: creator, Editors: editors,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func frame(t *testing.T, typ, sessionID string, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(map[string]any{
		"type": typ, "sessionId": sessionID, "data": json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return raw
}

func join(t *testing.T, eng *Engine, sessionID, connID, userID string) {
	t.Helper()
	eng.HandleMessage(connID, frame(t, wire.TypeJoinSession, sessionID,
		map[string]string{"userId": userID, "displayName": userID}))
}

func lastErrorCode(events []wire.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == wire.TypeError {
			var data struct {
				Code string `json:"code"`
			}
			json.Unmarshal(events[i].Data.(json.RawMessage), &data)
			return data.Code
		}
	}
	return ""
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- tests ---

func TestCreateSessionRequiresCreator(t *testing.T) {
	eng, _ := testEngine(t, nil)
	if _, err := eng.CreateSession(CreateOptions{}); !errors.Is(err, model.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestJoinDeliversSnapshotAndBroadcasts(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")

	join(t, eng, sess.ID, "conn-1", "alice")

	events := pub.sentTo("conn-1")
	if len(events) == 0 || events[0].Type != wire.TypeSessionJoined {
		t.Fatalf("joiner events = %+v", events)
	}
	if pub.bound["conn-1"] != sess.ID {
		t.Error("connection not bound to session")
	}

	// Second participant: the first should see a participant_joined
	// broadcast that excludes the newcomer's connection.
	join(t, eng, sess.ID, "conn-2", "bob")
	joins := pub.broadcasts(wire.TypeParticipantJoined)
	if len(joins) != 2 {
		t.Fatalf("participant_joined broadcasts = %d, want 2", len(joins))
	}
	if joins[1].exclude != "conn-2" {
		t.Errorf("exclude = %q, want conn-2", joins[1].exclude)
	}
}

func TestJoinSnapshotIncludesOwnJoinMessage(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "bob")

	// The join broadcast skips the joiner, so the snapshot must already
	// carry their own "joined" message or their history diverges from
	// everyone else's.
	events := pub.sentTo("c2")
	if len(events) == 0 || events[0].Type != wire.TypeSessionJoined {
		t.Fatalf("joiner events = %+v", events)
	}
	var joined struct {
		RecentChat []model.ChatMessage `json:"recentChat"`
	}
	json.Unmarshal(events[0].Data.(json.RawMessage), &joined)
	if len(joined.RecentChat) != 2 {
		t.Fatalf("recent chat = %+v", joined.RecentChat)
	}
	last := joined.RecentChat[1]
	if last.Kind != model.MessageSystem || last.Body != "bob joined" {
		t.Errorf("last message = %+v", last)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	eng, pub := testEngine(t, nil)
	join(t, eng, "missing", "conn-1", "alice")
	if code := lastErrorCode(pub.sentTo("conn-1")); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestRejoinDoesNotDuplicateRoster(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")

	join(t, eng, sess.ID, "conn-1", "alice")
	join(t, eng, sess.ID, "conn-2", "alice")

	snap, err := eng.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(snap.Participants) != 1 {
		t.Errorf("roster size = %d, want 1", len(snap.Participants))
	}
	// Rejoin refreshes the binding but announces no new participant.
	if n := len(pub.broadcasts(wire.TypeParticipantJoined)); n != 1 {
		t.Errorf("participant_joined broadcasts = %d, want 1", n)
	}
}

func TestRolesFromPermissions(t *testing.T) {
	eng, _ := testEngine(t, nil)
	sess := createSession(t, eng, "alice", "bob")

	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "bob")
	join(t, eng, sess.ID, "c3", "carol")

	snap, _ := eng.GetSession(sess.ID)
	roles := make(map[string]model.Role)
	for _, p := range snap.Participants {
		roles[p.ID] = p.Role
	}
	if roles["alice"] != model.RoleCreator {
		t.Errorf("alice role = %q", roles["alice"])
	}
	if roles["bob"] != model.RoleEditor {
		t.Errorf("bob role = %q", roles["bob"])
	}
	if roles["carol"] != model.RoleViewer {
		t.Errorf("carol role = %q", roles["carol"])
	}
}

func TestEditorWildcard(t *testing.T) {
	eng, _ := testEngine(t, nil)
	sess := createSession(t, eng, "alice", model.RoleAll)
	join(t, eng, sess.ID, "c1", "dave")

	snap, _ := eng.GetSession(sess.ID)
	if snap.Participants[0].Role != model.RoleEditor {
		t.Errorf("role = %q, want editor", snap.Participants[0].Role)
	}
}

func TestCodeChangeAppliesAndBroadcasts(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "bob")

	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "insert", "fileName": "main.js", "text": "console.log(1)",
	}))

	changes := pub.broadcasts(wire.TypeCodeChanged)
	if len(changes) != 1 {
		t.Fatalf("code_changed broadcasts = %d, want 1", len(changes))
	}
	if changes[0].exclude != "c1" {
		t.Errorf("exclude = %q, want c1", changes[0].exclude)
	}

	var data struct {
		Operation model.EditOperation `json:"operation"`
		File      model.FileState     `json:"file"`
	}
	json.Unmarshal(changes[0].frame.Data.(json.RawMessage), &data)
	if data.File.Version != 1 {
		t.Errorf("version = %d, want 1", data.File.Version)
	}
	if data.File.Content != "console.log(1)" {
		t.Errorf("content = %q", data.File.Content)
	}
	if data.Operation.ProducedVersion != 1 {
		t.Errorf("produced version = %d, want 1", data.Operation.ProducedVersion)
	}
	if data.File.Language != "javascript" {
		t.Errorf("language = %q", data.File.Language)
	}
}

func TestCodeChangeNegativePositionClamped(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "bob")

	// A hostile frame with negative coordinates must behave like any
	// other clamped edit: applied at the buffer start, broadcast, and
	// the process keeps serving everyone else.
	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "insert", "fileName": "a.js", "text": "x",
		"position": map[string]int{"line": -1, "column": -7},
	}))

	changes := pub.broadcasts(wire.TypeCodeChanged)
	if len(changes) != 1 {
		t.Fatalf("code_changed broadcasts = %d, want 1", len(changes))
	}
	var data struct {
		File model.FileState `json:"file"`
	}
	json.Unmarshal(changes[0].frame.Data.(json.RawMessage), &data)
	if data.File.Content != "x" || data.File.Version != 1 {
		t.Errorf("file = %+v", data.File)
	}

	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "delete", "fileName": "a.js", "length": 5,
		"position": map[string]int{"line": -3, "column": -1},
	}))
	snap, _ := eng.GetSession(sess.ID)
	if v := snap.Files["a.js"].Version; v != 2 {
		t.Errorf("version after clamped delete = %d, want 2", v)
	}
}

func TestVersionCountsEveryApply(t *testing.T) {
	eng, _ := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	for i := 0; i < 3; i++ {
		eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
			"kind": "insert", "fileName": "a.txt", "text": "x",
		}))
	}
	snap, _ := eng.GetSession(sess.ID)
	if v := snap.Files["a.txt"].Version; v != 3 {
		t.Errorf("version = %d, want 3", v)
	}
}

func TestViewerCannotEdit(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "mallory")

	eng.HandleMessage("c2", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "insert", "fileName": "a.txt", "text": "sneaky",
	}))

	// The rejection goes only to the sender; nothing is broadcast and the
	// buffer is untouched.
	if code := lastErrorCode(pub.sentTo("c2")); code != "forbidden" {
		t.Errorf("error code = %q, want forbidden", code)
	}
	if n := len(pub.broadcasts(wire.TypeCodeChanged)); n != 0 {
		t.Errorf("code_changed broadcasts = %d, want 0", n)
	}
	snap, _ := eng.GetSession(sess.ID)
	if len(snap.Files) != 0 {
		t.Errorf("files = %d, want 0", len(snap.Files))
	}
}

func TestDeleteOnMissingFile(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "delete", "fileName": "ghost.txt", "length": 3,
	}))
	if code := lastErrorCode(pub.sentTo("c1")); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestEditBeforeJoin(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "insert", "fileName": "a.txt", "text": "x",
	}))
	if code := lastErrorCode(pub.sentTo("c1")); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestCursorBroadcastExcludesSender(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeCursorPosition, sess.ID, map[string]any{
		"fileName": "a.txt", "line": 3, "column": 7,
	}))

	moves := pub.broadcasts(wire.TypeCursorMoved)
	if len(moves) != 1 {
		t.Fatalf("cursor_moved broadcasts = %d, want 1", len(moves))
	}
	if moves[0].exclude != "c1" {
		t.Errorf("exclude = %q, want c1", moves[0].exclude)
	}
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeChatMessage, sess.ID,
		map[string]string{"body": "hello all"}))

	chats := pub.broadcasts(wire.TypeChat)
	last := chats[len(chats)-1]
	if last.exclude != "" {
		t.Errorf("chat excluded %q, want nobody", last.exclude)
	}
}

func TestChatHistoryRing(t *testing.T) {
	pub := newFakePublisher()
	eng := New(Config{ChatHistoryCap: 3}, pub, nil, nil, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	for i := 0; i < 6; i++ {
		eng.HandleMessage("c1", frame(t, wire.TypeChatMessage, sess.ID,
			map[string]string{"body": fmt.Sprintf("msg %d", i)}))
	}

	snap, _ := eng.GetSession(sess.ID)
	if len(snap.Chat) != 3 {
		t.Fatalf("chat length = %d, want 3", len(snap.Chat))
	}
	if snap.Chat[2].Body != "msg 5" {
		t.Errorf("newest message = %q, want %q", snap.Chat[2].Body, "msg 5")
	}
}

func TestAssistantRouting(t *testing.T) {
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return "the answer is 42", nil
	})
	eng, pub := testEngine(t, gen)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeChatMessage, sess.ID,
		map[string]string{"body": "@AI what is the answer?"}))

	// The user message is broadcast immediately; the reply arrives later.
	if n := len(pub.broadcasts(wire.TypeChat)); n < 2 { // join system msg + user msg
		t.Fatalf("chat broadcasts = %d", n)
	}

	waitFor(t, "assistant reply", func() bool {
		return len(pub.broadcasts(wire.TypeAIResponse)) == 1
	})
	var msg model.ChatMessage
	reply := pub.broadcasts(wire.TypeAIResponse)[0]
	json.Unmarshal(reply.frame.Data.(json.RawMessage), &msg)
	if msg.AuthorID != model.AssistantID || msg.Kind != model.MessageAssistant {
		t.Errorf("reply = %+v", msg)
	}
	if msg.Body != "@alice the answer is 42" {
		t.Errorf("body = %q", msg.Body)
	}

	snap, _ := eng.GetSession(sess.ID)
	if snap.Chat[len(snap.Chat)-1].Kind != model.MessageAssistant {
		t.Error("assistant reply not in history")
	}
}

func TestAssistantFallbackOnFailure(t *testing.T) {
	gen := ai.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("upstream down")
	})
	eng, pub := testEngine(t, gen)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeChatMessage, sess.ID,
		map[string]string{"body": "@ai help"}))

	waitFor(t, "fallback reply", func() bool {
		return len(pub.broadcasts(wire.TypeAIResponse)) == 1
	})
	var msg model.ChatMessage
	json.Unmarshal(pub.broadcasts(wire.TypeAIResponse)[0].frame.Data.(json.RawMessage), &msg)
	if msg.Body != "@alice "+ai.FallbackReply {
		t.Errorf("body = %q, want fallback", msg.Body)
	}
}

func TestPlainChatDoesNotInvokeAssistant(t *testing.T) {
	called := false
	gen := ai.GeneratorFunc(func(_ context.Context, _ string) (string, error) {
		called = true
		return "nope", nil
	})
	eng, _ := testEngine(t, gen)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeChatMessage, sess.ID,
		map[string]string{"body": "just chatting about @ai stuff"}))
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("generator invoked for non-prefixed message")
	}
}

func TestFileSelectionSwitchesCurrentFile(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeFileSelection, sess.ID, map[string]any{
		"fileName": "app.py", "content": "print('hi')",
	}))

	snap, _ := eng.GetSession(sess.ID)
	if snap.CurrentFile != "app.py" {
		t.Errorf("current file = %q", snap.CurrentFile)
	}
	f := snap.Files["app.py"]
	if f == nil || f.Content != "print('hi')" || f.Version != 1 {
		t.Errorf("file = %+v", f)
	}

	selected := pub.broadcasts(wire.TypeFileSelected)
	if len(selected) != 1 || selected[0].exclude != "c1" {
		t.Errorf("file_selected broadcasts = %+v", selected)
	}
}

func TestDisconnectClearsPresence(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	join(t, eng, sess.ID, "c2", "bob")

	eng.HandleMessage("c2", frame(t, wire.TypeCursorPosition, sess.ID,
		map[string]any{"fileName": "a.txt", "line": 1}))

	eng.HandleDisconnect("c2")
	// A second notification for the same connection is a no-op.
	eng.HandleDisconnect("c2")

	lefts := pub.broadcasts(wire.TypeParticipantLeft)
	if len(lefts) != 1 {
		t.Errorf("participant_left broadcasts = %d, want 1", len(lefts))
	}
	// The participant record survives the departure.
	snap, _ := eng.GetSession(sess.ID)
	if len(snap.Participants) != 2 {
		t.Errorf("roster size = %d, want 2", len(snap.Participants))
	}
}

func TestExplicitLeaveThenDisconnect(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")

	eng.HandleMessage("c1", frame(t, wire.TypeLeaveSession, sess.ID, map[string]any{}))
	eng.HandleDisconnect("c1")

	if n := len(pub.broadcasts(wire.TypeParticipantLeft)); n != 1 {
		t.Errorf("participant_left broadcasts = %d, want 1", n)
	}
}

func TestEndSessionCreatorOnly(t *testing.T) {
	eng, _ := testEngine(t, nil)
	sess := createSession(t, eng, "alice")

	if err := eng.EndSession(sess.ID, "bob"); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if err := eng.EndSession(sess.ID, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}
	snap, _ := eng.GetSession(sess.ID)
	if snap.Session.Status != model.StatusEnded {
		t.Errorf("status = %q, want ended", snap.Session.Status)
	}
	if snap.Session.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
	// Ending again is idempotent.
	if err := eng.EndSession(sess.ID, "alice"); err != nil {
		t.Errorf("second end: %v", err)
	}
}

func TestJoinEndedSession(t *testing.T) {
	eng, pub := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	eng.EndSession(sess.ID, "alice")

	join(t, eng, sess.ID, "c1", "bob")
	if code := lastErrorCode(pub.sentTo("c1")); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestMalformedFrame(t *testing.T) {
	eng, pub := testEngine(t, nil)
	eng.HandleMessage("c1", []byte(`{"type":"no_such_thing"}`))
	if code := lastErrorCode(pub.sentTo("c1")); code != "malformed" {
		t.Errorf("error code = %q, want malformed", code)
	}
}

func TestStats(t *testing.T) {
	eng, _ := testEngine(t, nil)
	sess := createSession(t, eng, "alice")
	join(t, eng, sess.ID, "c1", "alice")
	eng.HandleMessage("c1", frame(t, wire.TypeCodeChange, sess.ID, map[string]any{
		"kind": "insert", "fileName": "main.go", "text": "package main",
	}))

	stats, err := eng.Stats(sess.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Participants != 1 || stats.Files != 1 {
		t.Errorf("stats = %+v", stats)
	}

	platform := eng.PlatformStats()
	if platform.TotalSessions != 1 || platform.ActiveSessions != 1 {
		t.Errorf("platform = %+v", platform)
	}
	if len(platform.Languages) != 1 || platform.Languages[0].Language != "go" {
		t.Errorf("languages = %+v", platform.Languages)
	}
}

func TestExecutePassthrough(t *testing.T) {
	rt := &stubRuntime{}
	eng := New(Config{}, newFakePublisher(), nil, nil, rt)

	res, err := eng.Execute(context.Background(), sandbox.Request{
		Code: "1+1", Language: "javascript",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Status != sandbox.StatusSuccess {
		t.Errorf("status = %q", res.Status)
	}
	if rt.lastReq.Language != "javascript" {
		t.Errorf("runtime saw %+v", rt.lastReq)
	}
}
