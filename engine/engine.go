// Package engine owns collaboration session state and orchestrates every
// mutation of it. All joins, edits, cursor updates, and chat appends for
// one session are serialized through that session's mutex, and each
// mutation is committed before it is broadcast — never the other way
// around. The engine depends only on interfaces (publisher, snapshot
// store, AI generator, sandbox runtime).
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copairhq/copair/ai"
	"github.com/copairhq/copair/document"
	"github.com/copairhq/copair/model"
	"github.com/copairhq/copair/sandbox"
	"github.com/copairhq/copair/store"
	"github.com/copairhq/copair/wire"
)

// assistantPrefix marks a chat message directed at the AI collaborator.
// Matched case-insensitively.
const assistantPrefix = "@ai "

// Publisher delivers encoded events to connections. The gateway satisfies
// this interface.
type Publisher interface {
	Publish(sessionID string, data []byte, excludeConnID string)
	Send(connID string, data []byte) error
	Bind(connID, sessionID string)
	Unbind(connID string)
}

// Config holds engine-specific tunables.
type Config struct {
	// ChatHistoryCap bounds the per-session chat ring (default 100).
	ChatHistoryCap int
	// ActivityLogCap bounds the per-session activity log (default 200).
	ActivityLogCap int
	// SessionIdleTimeout is how long a session may go without activity
	// before the sweep marks it inactive (default 24h).
	SessionIdleTimeout time.Duration
	// SweepInterval is the session-inactivity sweep cadence (default 10m).
	SweepInterval time.Duration
	// SnapshotInterval is the best-effort snapshot flush cadence
	// (default 1m). Zero with a nil store disables flushing.
	SnapshotInterval time.Duration
	// GenerateTimeout bounds one AI generator call (default 30s).
	GenerateTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChatHistoryCap <= 0 {
		c.ChatHistoryCap = 100
	}
	if c.ActivityLogCap <= 0 {
		c.ActivityLogCap = 200
	}
	if c.SessionIdleTimeout <= 0 {
		c.SessionIdleTimeout = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	return c
}

// session is the engine-private mutable state for one workspace. Every
// field is guarded by mu.
type session struct {
	mu sync.Mutex

	meta         model.Session
	participants map[string]*model.Participant
	files        map[string]*model.FileState
	chat         []model.ChatMessage
	cursors      map[string]*model.CursorState
	activity     []model.Activity
	currentFile  string
}

// binding associates a live connection with its participant.
type binding struct {
	sessionID     string
	participantID string
}

// Engine is the session registry and message dispatcher.
type Engine struct {
	cfg     Config
	pub     Publisher
	store   store.SnapshotStore // may be nil
	gen     ai.Generator        // may be nil
	runtime sandbox.Runtime

	mu       sync.RWMutex
	sessions map[string]*session
	bindings map[string]binding // connID -> binding

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Engine with all dependencies. store and gen may be nil:
// snapshotting is then skipped and assistant replies degrade to the
// canned fallback.
func New(cfg Config, pub Publisher, st store.SnapshotStore, gen ai.Generator, rt sandbox.Runtime) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		pub:      pub,
		store:    st,
		gen:      gen,
		runtime:  rt,
		sessions: make(map[string]*session),
		bindings: make(map[string]binding),
	}
}

// Start restores persisted sessions and launches the background sweeps.
// Call Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.restore()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.sweepLoop(e.ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.snapshotLoop(e.ctx)
	}()
}

// Stop cancels background work, waits for in-flight goroutines, and takes
// a final snapshot of every session.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.flushSnapshots()
}

// --- Session registry ---

// CreateOptions configures a new session.
type CreateOptions struct {
	Name      string
	CreatorID string
	Editors   []string
	Viewers   []string
	IsPublic  bool
}

// CreateSession registers a new active session and returns its metadata.
func (e *Engine) CreateSession(opts CreateOptions) (model.Session, error) {
	if opts.CreatorID == "" {
		return model.Session{}, fmt.Errorf("%w: creator id is required", model.ErrMalformed)
	}

	id := uuid.New().String()
	name := opts.Name
	if name == "" {
		name = "Session " + id[:8]
	}

	s := &session{
		meta: model.Session{
			ID:        id,
			Name:      name,
			CreatorID: opts.CreatorID,
			Status:    model.StatusActive,
			CreatedAt: time.Now().UTC(),
			Permissions: model.Permissions{
				Editors:  append([]string(nil), opts.Editors...),
				Viewers:  append([]string(nil), opts.Viewers...),
				IsPublic: opts.IsPublic,
			},
		},
		participants: make(map[string]*model.Participant),
		files:        make(map[string]*model.FileState),
		cursors:      make(map[string]*model.CursorState),
	}
	e.appendActivity(s, "session_created", opts.CreatorID, name)

	e.mu.Lock()
	e.sessions[id] = s
	e.mu.Unlock()

	log.Printf("engine: session %s created by %s", id[:8], opts.CreatorID)
	return s.meta, nil
}

// GetSession returns a point-in-time snapshot of a session.
func (e *Engine) GetSession(id string) (*model.Snapshot, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.snapshotLocked(s), nil
}

// EndSession terminates a session. Only the creator may end it.
func (e *Engine) EndSession(id, requesterID string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if requesterID != s.meta.CreatorID {
		s.mu.Unlock()
		return fmt.Errorf("only the creator may end a session: %w", model.ErrForbidden)
	}
	if s.meta.Status == model.StatusEnded {
		s.mu.Unlock()
		return nil
	}
	s.meta.Status = model.StatusEnded
	s.meta.EndedAt = time.Now().UTC()
	e.appendActivity(s, "session_ended", requesterID, "")
	msg := e.appendChatLocked(s, model.ChatMessage{
		AuthorID: requesterID,
		Body:     "session ended",
		Kind:     model.MessageSystem,
	})
	e.publishLocked(s, wire.Event{Type: wire.TypeChat, SessionID: id, Data: msg}, "")
	snap := e.snapshotLocked(s)
	s.mu.Unlock()

	e.saveSnapshot(snap)
	return nil
}

// Sessions returns snapshots of every known session, newest first.
func (e *Engine) Sessions() []*model.Snapshot {
	e.mu.RLock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	snaps := make([]*model.Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		snaps = append(snaps, e.snapshotLocked(s))
		s.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Session.CreatedAt.After(snaps[j].Session.CreatedAt)
	})
	return snaps
}

// Stats summarizes one session.
func (e *Engine) Stats(id string) (model.SessionStats, error) {
	s, err := e.lookup(id)
	if err != nil {
		return model.SessionStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	end := time.Now().UTC()
	if s.meta.Status == model.StatusEnded && !s.meta.EndedAt.IsZero() {
		end = s.meta.EndedAt
	}
	return model.SessionStats{
		SessionID:    s.meta.ID,
		Name:         s.meta.Name,
		Status:       s.meta.Status,
		Participants: len(s.participants),
		Files:        len(s.files),
		ChatMessages: len(s.chat),
		Activities:   len(s.activity),
		CreatedAt:    s.meta.CreatedAt,
		DurationSec:  int64(end.Sub(s.meta.CreatedAt).Seconds()),
	}, nil
}

// PlatformStats aggregates across all sessions.
func (e *Engine) PlatformStats() model.PlatformStats {
	e.mu.RLock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	stats := model.PlatformStats{TotalSessions: len(all)}
	langs := make(map[string]int)
	for _, s := range all {
		s.mu.Lock()
		if s.meta.Status == model.StatusActive {
			stats.ActiveSessions++
			stats.TotalParticipants += len(s.participants)
		}
		for _, f := range s.files {
			langs[f.Language]++
		}
		s.mu.Unlock()
	}
	for lang, n := range langs {
		stats.Languages = append(stats.Languages, model.LanguageCount{Language: lang, Count: n})
	}
	sort.Slice(stats.Languages, func(i, j int) bool {
		if stats.Languages[i].Count != stats.Languages[j].Count {
			return stats.Languages[i].Count > stats.Languages[j].Count
		}
		return stats.Languages[i].Language < stats.Languages[j].Language
	})
	return stats
}

// Execute runs a sandboxed evaluation. It is fully stateless with respect
// to sessions and never touches a session lock.
func (e *Engine) Execute(ctx context.Context, req sandbox.Request) (sandbox.Result, error) {
	if e.runtime == nil {
		return sandbox.Result{}, fmt.Errorf("no sandbox runtime configured: %w", model.ErrUnsupported)
	}
	return e.runtime.Execute(ctx, req)
}

// --- Inbound dispatch (gateway.Handler) ---

// HandleMessage parses and dispatches one inbound frame. Errors caused by
// the frame are reported only to its sender.
func (e *Engine) HandleMessage(connID string, raw []byte) {
	env, err := wire.ParseInbound(raw)
	if err != nil {
		e.sendError(connID, "", err)
		return
	}

	switch env.Type {
	case wire.TypeJoinSession:
		err = e.handleJoin(connID, env)
	case wire.TypeLeaveSession:
		e.detach(connID)
	case wire.TypeCodeChange:
		err = e.handleCodeChange(connID, env)
	case wire.TypeCursorPosition:
		err = e.handleCursor(connID, env)
	case wire.TypeChatMessage:
		err = e.handleChat(connID, env)
	case wire.TypeAIRequest:
		err = e.handleAIRequest(connID, env)
	case wire.TypeFileSelection:
		err = e.handleFileSelection(connID, env)
	}
	if err != nil {
		e.sendError(connID, env.SessionID, err)
	}
}

// HandleDisconnect detaches a closed connection from its session. The
// gateway guarantees exactly one call per connection.
func (e *Engine) HandleDisconnect(connID string) {
	e.detach(connID)
}

func (e *Engine) handleJoin(connID string, env *wire.Envelope) error {
	p, err := env.Join()
	if err != nil {
		return err
	}
	s, err := e.lookup(env.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.meta.Status == model.StatusEnded {
		s.mu.Unlock()
		return fmt.Errorf("session %s has ended: %w", env.SessionID, model.ErrNotFound)
	}

	displayName := p.DisplayName
	if displayName == "" {
		displayName = "User " + p.UserID
	}

	part, rejoin := s.participants[p.UserID]
	if rejoin {
		// Same participant id: refresh the binding, never duplicate the
		// roster entry.
		part.ConnectionID = connID
		part.DisplayName = displayName
	} else {
		part = &model.Participant{
			ID:           p.UserID,
			DisplayName:  displayName,
			Role:         e.roleFor(s, p.UserID),
			JoinedAt:     time.Now().UTC(),
			ConnectionID: connID,
		}
		s.participants[p.UserID] = part
	}
	e.appendActivity(s, "participant_joined", p.UserID, displayName)

	// Commit the join system message before building the joiner's
	// snapshot, so their history matches what everyone else sees; the
	// later broadcast then skips the joiner.
	var joinMsg model.ChatMessage
	if !rejoin {
		joinMsg = e.appendChatLocked(s, model.ChatMessage{
			AuthorID: p.UserID,
			Body:     displayName + " joined",
			Kind:     model.MessageSystem,
		})
	}

	e.mu.Lock()
	e.bindings[connID] = binding{sessionID: env.SessionID, participantID: p.UserID}
	e.mu.Unlock()
	e.pub.Bind(connID, env.SessionID)

	joined := wire.SessionJoinedData{
		Session:     s.meta,
		Participant: *part,
		Files:       copyFiles(s.files),
		CurrentFile: s.currentFile,
		Roster:      rosterLocked(s),
		RecentChat:  recentChat(s.chat, 20),
	}
	e.pub.Send(connID, wire.Encode(wire.Event{
		Type: wire.TypeSessionJoined, SessionID: env.SessionID, Data: joined,
	}))

	if !rejoin {
		e.publishLocked(s, wire.Event{
			Type:      wire.TypeParticipantJoined,
			SessionID: env.SessionID,
			Data:      wire.ParticipantData{UserID: p.UserID, DisplayName: displayName, Role: part.Role},
		}, connID)
		e.publishLocked(s, wire.Event{Type: wire.TypeChat, SessionID: env.SessionID, Data: joinMsg}, connID)
	}
	snap := e.snapshotLocked(s)
	s.mu.Unlock()

	e.saveSnapshot(snap)
	log.Printf("engine: %s joined session %s as %s", p.UserID, shortID(env.SessionID), part.Role)
	return nil
}

// detach removes the connection's participant association. It is a no-op
// for connections that never joined, so explicit leave followed by a
// transport close produces exactly one departure notification.
func (e *Engine) detach(connID string) {
	e.mu.Lock()
	b, ok := e.bindings[connID]
	if ok {
		delete(e.bindings, connID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	e.pub.Unbind(connID)

	s, err := e.lookup(b.sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	part := s.participants[b.participantID]
	if part == nil || part.ConnectionID != connID {
		// The participant rebound to a newer connection; this departure
		// is stale.
		s.mu.Unlock()
		return
	}
	part.ConnectionID = ""
	delete(s.cursors, b.participantID)
	e.appendActivity(s, "participant_left", b.participantID, part.DisplayName)
	msg := e.appendChatLocked(s, model.ChatMessage{
		AuthorID: b.participantID,
		Body:     part.DisplayName + " left",
		Kind:     model.MessageSystem,
	})
	e.publishLocked(s, wire.Event{
		Type:      wire.TypeParticipantLeft,
		SessionID: b.sessionID,
		Data:      wire.ParticipantData{UserID: b.participantID, DisplayName: part.DisplayName},
	}, connID)
	e.publishLocked(s, wire.Event{Type: wire.TypeChat, SessionID: b.sessionID, Data: msg}, connID)
	s.mu.Unlock()

	log.Printf("engine: %s left session %s", b.participantID, shortID(b.sessionID))
}

func (e *Engine) handleCodeChange(connID string, env *wire.Envelope) error {
	p, err := env.Edit()
	if err != nil {
		return err
	}
	s, b, err := e.boundSession(connID, env.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.participants[b.participantID]
	if part == nil {
		return fmt.Errorf("participant %s: %w", b.participantID, model.ErrNotFound)
	}
	if part.Role == model.RoleViewer {
		return fmt.Errorf("viewers cannot edit: %w", model.ErrForbidden)
	}

	file, ok := s.files[p.FileName]
	if !ok {
		// Inserts and replaces create the file; a delete has nothing to
		// delete from.
		if p.Kind == model.OpDelete {
			return fmt.Errorf("file %s: %w", p.FileName, model.ErrNotFound)
		}
		file = document.NewFileState(p.FileName)
		s.files[p.FileName] = file
	}

	op := model.EditOperation{
		Kind:     p.Kind,
		FileName: p.FileName,
		AuthorID: b.participantID,
		Position: p.Position,
		Text:     p.Text,
		Length:   p.Length,
	}
	if err := document.Apply(file, op); err != nil {
		return err
	}
	op.ProducedVersion = file.Version
	e.appendActivity(s, "code_change", b.participantID, p.FileName)

	e.publishLocked(s, wire.Event{
		Type:      wire.TypeCodeChanged,
		SessionID: env.SessionID,
		Data:      wire.CodeChangedData{Operation: op, File: *file},
	}, connID)
	return nil
}

func (e *Engine) handleCursor(connID string, env *wire.Envelope) error {
	p, err := env.Cursor()
	if err != nil {
		return err
	}
	s, b, err := e.boundSession(connID, env.SessionID)
	if err != nil {
		return err
	}

	cursor := model.CursorState{
		ParticipantID: b.participantID,
		FileName:      p.FileName,
		Line:          p.Line,
		Column:        p.Column,
		Selection:     p.Selection,
		UpdatedAt:     time.Now().UTC(),
	}

	s.mu.Lock()
	s.cursors[b.participantID] = &cursor
	e.publishLocked(s, wire.Event{
		Type: wire.TypeCursorMoved, SessionID: env.SessionID, Data: cursor,
	}, connID)
	s.mu.Unlock()
	return nil
}

func (e *Engine) handleChat(connID string, env *wire.Envelope) error {
	p, err := env.Chat()
	if err != nil {
		return err
	}
	s, b, err := e.boundSession(connID, env.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	msg := e.appendChatLocked(s, model.ChatMessage{
		AuthorID: b.participantID,
		Body:     p.Body,
		Kind:     model.MessageUser,
	})
	e.appendActivity(s, "chat_message", b.participantID, "")
	// Chat goes to everyone, sender included, so all clients share one
	// ordered history.
	e.publishLocked(s, wire.Event{Type: wire.TypeChat, SessionID: env.SessionID, Data: msg}, "")
	s.mu.Unlock()

	// Assistant routing happens off the session lock: the user message is
	// already committed and broadcast; the reply arrives later as an
	// independent event.
	if strings.HasPrefix(strings.ToLower(p.Body), assistantPrefix) {
		query := strings.TrimSpace(p.Body[len(assistantPrefix):])
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.askAssistant(env.SessionID, b.participantID, query, msg.ID)
		}()
	}
	return nil
}

func (e *Engine) handleAIRequest(connID string, env *wire.Envelope) error {
	p, err := env.AIRequest()
	if err != nil {
		return err
	}
	s, b, err := e.boundSession(connID, env.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e.appendActivity(s, "ai_request", b.participantID, "")
	prompt := p.Request
	if p.Context != "" {
		prompt += "\n\nContext: " + p.Context
	}
	if s.currentFile != "" {
		if f, ok := s.files[s.currentFile]; ok {
			prompt += "\n\nCurrent file " + f.Name + ":\n" + model.Truncate(f.Content, 300)
		}
	}
	s.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.askAssistant(env.SessionID, b.participantID, prompt, "")
	}()
	return nil
}

func (e *Engine) handleFileSelection(connID string, env *wire.Envelope) error {
	p, err := env.FileSelection()
	if err != nil {
		return err
	}
	s, b, err := e.boundSession(connID, env.SessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.participants[b.participantID]
	if part == nil {
		return fmt.Errorf("participant %s: %w", b.participantID, model.ErrNotFound)
	}

	file, ok := s.files[p.FileName]
	if !ok {
		if part.Role == model.RoleViewer {
			return fmt.Errorf("viewers cannot create files: %w", model.ErrForbidden)
		}
		file = document.NewFileState(p.FileName)
		s.files[p.FileName] = file
	}
	if p.Content != "" {
		// Bulk content carries replace semantics and is therefore a
		// mutating operation.
		if part.Role == model.RoleViewer {
			return fmt.Errorf("viewers cannot edit: %w", model.ErrForbidden)
		}
		if err := document.Apply(file, model.EditOperation{
			Kind:     model.OpReplace,
			FileName: p.FileName,
			AuthorID: b.participantID,
			Text:     p.Content,
		}); err != nil {
			return err
		}
	}
	s.currentFile = p.FileName
	e.appendActivity(s, "file_selection", b.participantID, p.FileName)

	e.publishLocked(s, wire.Event{
		Type:      wire.TypeFileSelected,
		SessionID: env.SessionID,
		Data: wire.FileSelectedData{
			FileName:   p.FileName,
			Content:    file.Content,
			SelectedBy: b.participantID,
		},
	}, connID)
	return nil
}

// --- Assistant routing ---

// askAssistant calls the generator and appends the reply as an
// assistant-kind message. Generator failure degrades to the canned
// fallback; it never surfaces to the requesting connection as an error.
func (e *Engine) askAssistant(sessionID, requesterID, prompt, inReplyTo string) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()

	reply := ai.FallbackReply
	if e.gen != nil {
		text, err := e.gen.Generate(genCtx, prompt)
		if err != nil {
			log.Printf("engine: assistant call failed for session %s: %v", shortID(sessionID), err)
		} else if text != "" {
			reply = text
		}
	}

	s, err := e.lookup(sessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	msg := e.appendChatLocked(s, model.ChatMessage{
		AuthorID:  model.AssistantID,
		Body:      "@" + requesterID + " " + reply,
		Kind:      model.MessageAssistant,
		InReplyTo: inReplyTo,
	})
	e.publishLocked(s, wire.Event{Type: wire.TypeAIResponse, SessionID: sessionID, Data: msg}, "")
	s.mu.Unlock()
}

// --- Background loops ---

// sweepLoop marks sessions inactive once their last activity-log entry is
// older than the idle window. This is a longer horizon than the gateway's
// connection sweep.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-e.cfg.SessionIdleTimeout)
			for _, s := range e.snapshotTargets() {
				s.mu.Lock()
				last := s.meta.CreatedAt
				if n := len(s.activity); n > 0 {
					last = s.activity[n-1].Timestamp
				}
				var snap *model.Snapshot
				if s.meta.Status == model.StatusActive && last.Before(cutoff) {
					s.meta.Status = model.StatusInactive
					snap = e.snapshotLocked(s)
					log.Printf("engine: session %s marked inactive", shortID(s.meta.ID))
				}
				s.mu.Unlock()
				if snap != nil {
					e.saveSnapshot(snap)
				}
			}
		}
	}
}

func (e *Engine) snapshotLoop(ctx context.Context) {
	if e.store == nil {
		return
	}
	ticker := time.NewTicker(e.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.flushSnapshots()
		}
	}
}

func (e *Engine) flushSnapshots() {
	if e.store == nil {
		return
	}
	for _, s := range e.snapshotTargets() {
		s.mu.Lock()
		snap := e.snapshotLocked(s)
		s.mu.Unlock()
		e.saveSnapshot(snap)
	}
}

// restore reloads persisted non-ended sessions into memory on startup.
func (e *Engine) restore() {
	if e.store == nil {
		return
	}
	snaps, err := e.store.List()
	if err != nil {
		log.Printf("engine: restore failed: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	restored := 0
	for _, snap := range snaps {
		if snap.Session.Status == model.StatusEnded {
			continue
		}
		if _, exists := e.sessions[snap.Session.ID]; exists {
			continue
		}
		s := &session{
			meta:         snap.Session,
			participants: make(map[string]*model.Participant),
			files:        snap.Files,
			chat:         snap.Chat,
			cursors:      make(map[string]*model.CursorState),
			currentFile:  snap.CurrentFile,
		}
		if s.files == nil {
			s.files = make(map[string]*model.FileState)
		}
		// Connections do not survive a restart; participants rejoin with
		// fresh bindings but keep their historical records.
		for i := range snap.Participants {
			p := snap.Participants[i]
			p.ConnectionID = ""
			s.participants[p.ID] = &p
		}
		e.sessions[snap.Session.ID] = s
		restored++
	}
	if restored > 0 {
		log.Printf("engine: restored %d session(s) from snapshots", restored)
	}
}

// --- Helpers ---

func (e *Engine) lookup(id string) (*session, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	return s, nil
}

// boundSession resolves the connection's binding and checks it targets
// the session named in the envelope.
func (e *Engine) boundSession(connID, sessionID string) (*session, binding, error) {
	e.mu.RLock()
	b, ok := e.bindings[connID]
	e.mu.RUnlock()
	if !ok || b.sessionID != sessionID {
		return nil, binding{}, fmt.Errorf("connection not joined to session %s: %w", sessionID, model.ErrNotFound)
	}
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, binding{}, err
	}
	return s, b, nil
}

func (e *Engine) roleFor(s *session, userID string) model.Role {
	if userID == s.meta.CreatorID {
		return model.RoleCreator
	}
	for _, id := range s.meta.Permissions.Editors {
		if id == userID || id == model.RoleAll {
			return model.RoleEditor
		}
	}
	return model.RoleViewer
}

// appendChatLocked appends to the bounded chat ring. Caller holds s.mu.
func (e *Engine) appendChatLocked(s *session, msg model.ChatMessage) model.ChatMessage {
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()
	s.chat = append(s.chat, msg)
	if len(s.chat) > e.cfg.ChatHistoryCap {
		s.chat = s.chat[len(s.chat)-e.cfg.ChatHistoryCap:]
	}
	return msg
}

// appendActivity appends to the bounded activity log. Caller holds s.mu
// (or exclusively owns s during construction).
func (e *Engine) appendActivity(s *session, typ, actor, detail string) {
	s.activity = append(s.activity, model.Activity{
		Type:      typ,
		Actor:     actor,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	if len(s.activity) > e.cfg.ActivityLogCap {
		s.activity = s.activity[len(s.activity)-e.cfg.ActivityLogCap:]
	}
}

// publishLocked broadcasts while the session lock is held, so fan-out
// order matches commit order. Caller holds s.mu.
func (e *Engine) publishLocked(s *session, ev wire.Event, excludeConnID string) {
	e.pub.Publish(s.meta.ID, wire.Encode(ev), excludeConnID)
}

func (e *Engine) sendError(connID, sessionID string, err error) {
	e.pub.Send(connID, wire.Encode(wire.ErrorEvent(sessionID, err)))
}

// snapshotLocked copies the session state into a persistence/transfer
// value. Caller holds s.mu.
func (e *Engine) snapshotLocked(s *session) *model.Snapshot {
	return &model.Snapshot{
		Session:      s.meta,
		Participants: rosterLocked(s),
		Files:        copyFiles(s.files),
		Chat:         append([]model.ChatMessage(nil), s.chat...),
		CurrentFile:  s.currentFile,
		TakenAt:      time.Now().UTC(),
	}
}

func (e *Engine) snapshotTargets() []*session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	return all
}

func (e *Engine) saveSnapshot(snap *model.Snapshot) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(snap); err != nil {
		log.Printf("engine: snapshot save failed for session %s: %v", shortID(snap.Session.ID), err)
	}
}

func rosterLocked(s *session) []model.Participant {
	roster := make([]model.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		roster = append(roster, *p)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].JoinedAt.Before(roster[j].JoinedAt) })
	return roster
}

func copyFiles(files map[string]*model.FileState) map[string]*model.FileState {
	out := make(map[string]*model.FileState, len(files))
	for name, f := range files {
		cp := *f
		out[name] = &cp
	}
	return out
}

func recentChat(chat []model.ChatMessage, n int) []model.ChatMessage {
	if len(chat) > n {
		chat = chat[len(chat)-n:]
	}
	return append([]model.ChatMessage(nil), chat...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
