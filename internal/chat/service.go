package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/ai"
	"github.com/studysensei/exambot/internal/classify"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/knowledge"
	"github.com/studysensei/exambot/internal/prompt"
)

// DeclineMessage is returned verbatim for prohibited queries, without any
// model call.
const DeclineMessage = "I cannot help with that. I explain exam processes only, not predict grades or provide answers."

// OffTopicMessage redirects queries outside the assistant's domain.
const OffTopicMessage = "That's outside what I can help with. I explain examination and evaluation policy - ask me about grading, revaluation, attendance, supplementary exams, or exam rules."

// Options configures the pipeline.
type Options struct {
	ProviderName    string
	ModelName       string
	RetrievalTopK   int
	DefaultLanguage string
	ModelTimeout    time.Duration
}

// Reply is the outcome of one submitted query.
type Reply struct {
	Answer          string            `json:"answer"`
	Citations       []prompt.Citation `json:"citations"`
	Topic           string            `json:"topic"`
	Refused         bool              `json:"refused"`
	AssistantTurnID string            `json:"assistant_turn_id,omitempty"`
}

// Service runs the conversational pipeline: classify, retrieve, assemble,
// build the instruction, call the model, persist. All per-session mutable
// state (gateway, analytics, custom passages) lives here, never in the
// shared knowledge store.
type Service struct {
	repo       *Repo
	registry   *ai.Registry
	classifier classify.Classifier
	store      *knowledge.Store
	opts       Options
	logger     *slog.Logger

	mu       sync.Mutex
	gateways map[string]*ai.Gateway
	stats    map[string]*SessionAnalytics
	custom   map[string][]knowledge.Passage
}

func NewService(repo *Repo, registry *ai.Registry, classifier classify.Classifier,
	store *knowledge.Store, opts Options, logger *slog.Logger) *Service {

	if opts.RetrievalTopK <= 0 {
		opts.RetrievalTopK = 5
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = prompt.DefaultLanguage
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		registry:   registry,
		classifier: classifier,
		store:      store,
		opts:       opts,
		logger:     logger,
		gateways:   make(map[string]*ai.Gateway),
		stats:      make(map[string]*SessionAnalytics),
		custom:     make(map[string][]knowledge.Passage),
	}
}

// CreateSession opens a new conversation thread and resets its analytics.
func (s *Service) CreateSession(ctx context.Context, ownerID uint64, language string) (*Session, error) {
	lang := prompt.Normalize(language)
	session := &Session{
		ID:       common.NewUUID(),
		OwnerID:  ownerID,
		Title:    DefaultTitle,
		Language: lang,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats[session.ID] = NewSessionAnalytics()
	delete(s.gateways, session.ID)
	delete(s.custom, session.ID)
	s.mu.Unlock()

	return session, nil
}

// ownedSession loads a session and hides its existence from non-owners.
func (s *Service) ownedSession(ctx context.Context, ownerID uint64, sessionID string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

// Submit runs the full pipeline for one user query and returns the answer
// with its citations. Ledger writes are best-effort: a persistence failure
// is logged but never blocks the reply.
func (s *Service) Submit(ctx context.Context, ownerID uint64, sessionID, query, language string) (*Reply, error) {
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	lang := language
	if lang == "" {
		lang = session.Language
	}
	lang = prompt.Normalize(lang)

	verdict := s.classifier.Classify(query)
	s.analytics(sessionID).RecordQuestion(verdict.Topic, lang)

	s.persistTurn(ctx, sessionID, RoleUser, query, nil)
	s.maybeDeriveTitle(ctx, session, query)

	if verdict.Prohibited {
		s.analytics(sessionID).RecordRefusal()
		turnID := s.persistTurn(ctx, sessionID, RoleAssistant, DeclineMessage, nil)
		return &Reply{Answer: DeclineMessage, Topic: verdict.Topic, Refused: true, AssistantTurnID: turnID}, nil
	}
	if verdict.OffTopic {
		turnID := s.persistTurn(ctx, sessionID, RoleAssistant, OffTopicMessage, nil)
		return &Reply{Answer: OffTopicMessage, Topic: verdict.Topic, AssistantTurnID: turnID}, nil
	}

	matches := knowledge.RetrieveFrom(s.passagesFor(sessionID), query, s.opts.RetrievalTopK)
	contextBlock, citations := prompt.BuildContext(matches)
	instruction := prompt.BuildSystem(contextBlock, lang)

	gw, err := s.gateway(ctx, sessionID, instruction)
	if err != nil {
		return nil, err
	}
	if session.Language != lang {
		// The language directive is baked into the conversation start, so
		// switching requires a hard reset.
		gw.Reset(instruction)
		if err := s.repo.UpdateLanguage(ctx, sessionID, lang); err != nil {
			s.logger.Warn("failed to persist session language", "session_id", sessionID, "error", err)
		}
	} else if err := gw.SetInstruction(instruction); err != nil {
		gw.Start(instruction)
	}

	answer, err := gw.Send(ctx, query)
	if err != nil {
		// Only ErrNotStarted reaches here; the gateway was started above.
		return nil, err
	}

	ids := make(CitationList, 0, len(citations))
	for _, c := range citations {
		ids = append(ids, c.PassageID)
	}
	turnID := s.persistTurn(ctx, sessionID, RoleAssistant, answer, ids)

	return &Reply{
		Answer:          answer,
		Citations:       citations,
		Topic:           verdict.Topic,
		AssistantTurnID: turnID,
	}, nil
}

// SubmitStream is the streaming variant: fragments arrive on chunks, the
// final Reply (with citations and persisted turn id) on result, failures on
// errs. All channels close when the turn completes.
func (s *Service) SubmitStream(ctx context.Context, ownerID uint64, sessionID, query, language string) (<-chan string, <-chan Reply, <-chan error) {
	chunks := make(chan string, 16)
	result := make(chan Reply, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(result)
		defer close(errs)

		session, err := s.ownedSession(ctx, ownerID, sessionID)
		if err != nil {
			errs <- err
			return
		}

		lang := language
		if lang == "" {
			lang = session.Language
		}
		lang = prompt.Normalize(lang)

		verdict := s.classifier.Classify(query)
		s.analytics(sessionID).RecordQuestion(verdict.Topic, lang)

		s.persistTurn(ctx, sessionID, RoleUser, query, nil)
		s.maybeDeriveTitle(ctx, session, query)

		if verdict.Prohibited || verdict.OffTopic {
			msg := OffTopicMessage
			refused := false
			if verdict.Prohibited {
				msg = DeclineMessage
				refused = true
				s.analytics(sessionID).RecordRefusal()
			}
			select {
			case chunks <- msg:
			case <-ctx.Done():
			}
			turnID := s.persistTurn(context.WithoutCancel(ctx), sessionID, RoleAssistant, msg, nil)
			result <- Reply{Answer: msg, Topic: verdict.Topic, Refused: refused, AssistantTurnID: turnID}
			return
		}

		matches := knowledge.RetrieveFrom(s.passagesFor(sessionID), query, s.opts.RetrievalTopK)
		contextBlock, citations := prompt.BuildContext(matches)
		instruction := prompt.BuildSystem(contextBlock, lang)

		gw, err := s.gateway(ctx, sessionID, instruction)
		if err != nil {
			errs <- err
			return
		}
		if session.Language != lang {
			gw.Reset(instruction)
			if err := s.repo.UpdateLanguage(ctx, sessionID, lang); err != nil {
				s.logger.Warn("failed to persist session language", "session_id", sessionID, "error", err)
			}
		} else if err := gw.SetInstruction(instruction); err != nil {
			gw.Start(instruction)
		}

		stream, err := gw.Stream(ctx, query)
		if err != nil {
			errs <- err
			return
		}

		// Forwarding is guarded by ctx: when the consumer disconnects the
		// remaining fragments are still drained and the partial answer is
		// persisted instead of stranding the pipeline on a full buffer.
		var answer []byte
		cancelled := false
		for c := range stream {
			answer = append(answer, c...)
			if cancelled {
				continue
			}
			select {
			case chunks <- c:
			case <-ctx.Done():
				cancelled = true
			}
		}

		ids := make(CitationList, 0, len(citations))
		for _, c := range citations {
			ids = append(ids, c.PassageID)
		}
		turnID := s.persistTurn(context.WithoutCancel(ctx), sessionID, RoleAssistant, string(answer), ids)
		result <- Reply{
			Answer:          string(answer),
			Citations:       citations,
			Topic:           verdict.Topic,
			AssistantTurnID: turnID,
		}
	}()

	return chunks, result, errs
}

// Transcript returns the ordered turn log of an owned session.
func (s *Service) Transcript(ctx context.Context, ownerID uint64, sessionID string) ([]Turn, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListTurns(ctx, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, ownerID uint64) ([]Session, error) {
	return s.repo.ListSessions(ctx, ownerID)
}

// DeleteSession removes a session and cascades to its turns and in-memory
// state.
func (s *Service) DeleteSession(ctx context.Context, ownerID uint64, sessionID string) error {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.gateways, sessionID)
	delete(s.stats, sessionID)
	delete(s.custom, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *Service) RenameSession(ctx context.Context, ownerID uint64, sessionID, title string) error {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}
	return s.repo.UpdateTitle(ctx, sessionID, title)
}

// Analytics returns the in-memory counters for a session.
func (s *Service) Analytics(ctx context.Context, ownerID uint64, sessionID string) (Summary, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return Summary{}, err
	}
	return s.analytics(sessionID).Summary(), nil
}

// AddSessionPassage attaches a caller-supplied passage to this session only.
// It is never written to the shared store, so other sessions cannot see it.
func (s *Service) AddSessionPassage(ctx context.Context, ownerID uint64, sessionID, content string) error {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.custom[sessionID]) + 1
	s.custom[sessionID] = append(s.custom[sessionID], knowledge.Passage{
		ID:       fmt.Sprintf("custom-%s-%d", sessionID[:8], n),
		Content:  content,
		Category: "custom",
		Source:   "session upload",
	})
	return nil
}

// KnowledgeSize reports the shared knowledge base size, for display.
func (s *Service) KnowledgeSize() int { return s.store.Size() }

// Job flow

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// ValidateSessionOwner checks ownership without loading turns.
func (s *Service) ValidateSessionOwner(ctx context.Context, ownerID uint64, sessionID string) error {
	_, err := s.ownedSession(ctx, ownerID, sessionID)
	return err
}

// ProcessJob runs the pipeline for a queued job. Called by the worker.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == JobSucceeded || job.Status == JobFailed {
		return nil
	}
	if err := s.repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}

	reply, err := s.Submit(ctx, job.UserID, job.SessionID, job.Query, job.Language)
	if err != nil {
		if markErr := s.repo.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.Error("failed to mark job failed", "job_id", jobID, "error", markErr)
		}
		return err
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, reply.AssistantTurnID)
}

// internals

func (s *Service) analytics(sessionID string) *SessionAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.stats[sessionID]; ok {
		return a
	}
	a := NewSessionAnalytics()
	s.stats[sessionID] = a
	return a
}

// gateway returns the session's gateway, creating and starting one with the
// given instruction on first use.
func (s *Service) gateway(ctx context.Context, sessionID, instruction string) (*ai.Gateway, error) {
	s.mu.Lock()
	if gw, ok := s.gateways[sessionID]; ok {
		s.mu.Unlock()
		return gw, nil
	}
	s.mu.Unlock()

	provider, err := s.registry.Get(ctx, s.opts.ProviderName, s.opts.ModelName)
	if err != nil {
		return nil, err
	}

	gw := ai.NewGateway(provider, s.opts.ModelTimeout, s.logger)
	gw.Start(instruction)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.gateways[sessionID]; ok {
		return existing, nil
	}
	s.gateways[sessionID] = gw
	return gw, nil
}

// passagesFor combines the shared store with the session's local additions.
func (s *Service) passagesFor(sessionID string) []knowledge.Passage {
	s.mu.Lock()
	extra := s.custom[sessionID]
	s.mu.Unlock()
	if len(extra) == 0 {
		return s.store.All()
	}
	combined := make([]knowledge.Passage, 0, s.store.Size()+len(extra))
	combined = append(combined, s.store.All()...)
	combined = append(combined, extra...)
	return combined
}

// persistTurn appends a turn to the durable log. Failures are logged and
// swallowed: the in-memory transcript remains the source of truth for the
// current interaction. Returns the turn id, or empty on failure.
func (s *Service) persistTurn(ctx context.Context, sessionID, role, content string, citations CitationList) string {
	turn := &Turn{
		TurnID:    common.NewUUID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Citations: citations,
	}
	if err := s.repo.InsertTurn(ctx, turn); err != nil {
		s.logger.Warn("failed to persist turn",
			"session_id", sessionID, "role", role, "error", err)
		return ""
	}
	return turn.TurnID
}

func (s *Service) maybeDeriveTitle(ctx context.Context, session *Session, query string) {
	if session.Title != DefaultTitle && session.Title != "" {
		return
	}
	title := DeriveTitle(query)
	if title == session.Title {
		return
	}
	if err := s.repo.UpdateTitle(ctx, session.ID, title); err != nil {
		s.logger.Warn("failed to derive session title", "session_id", session.ID, "error", err)
		return
	}
	session.Title = title
}

// IsNotFound reports whether err is the record-not-found sentinel, so
// handlers can translate it without importing gorm.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
