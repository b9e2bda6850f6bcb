package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/studysensei/exambot/internal/ai"
	"github.com/studysensei/exambot/internal/classify"
	"github.com/studysensei/exambot/internal/common"
	"github.com/studysensei/exambot/internal/knowledge"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls [][]ai.Message
	reply string
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []ai.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.reply, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) lastCall() []ai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func mustULID(t *testing.T) string {
	t.Helper()
	id, err := common.NewULID()
	if err != nil {
		t.Fatalf("new ulid: %v", err)
	}
	return id
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Turn{}, &Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type streamingFakeProvider struct {
	fakeProvider
	fragments []string
}

func (s *streamingFakeProvider) StreamChat(ctx context.Context, msgs []ai.Message) (<-chan string, <-chan error) {
	chunks := make(chan string, len(s.fragments))
	errs := make(chan error, 1)
	for _, f := range s.fragments {
		chunks <- f
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func testService(t *testing.T, fake ai.Provider) *Service {
	t.Helper()
	registry := ai.NewRegistry()
	registry.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return fake, nil
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := knowledge.NewStore(logger)
	store.Load("does-not-exist.json")
	return NewService(NewRepo(testDB(t)), registry, classify.NewKeyword(), store, Options{
		ProviderName: "fake",
		ModelName:    "test-model",
		ModelTimeout: 5 * time.Second,
	}, logger)
}

func TestRefusalShortCircuitsProvider(t *testing.T) {
	fake := &fakeProvider{reply: "should never be seen"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, 1, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	reply, err := svc.Submit(ctx, 1, session.ID, "will I pass this semester?", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !reply.Refused {
		t.Fatal("expected refusal")
	}
	if reply.Answer != DeclineMessage {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if fake.callCount() != 0 {
		t.Fatalf("provider called %d times for a refused query", fake.callCount())
	}

	summary, err := svc.Analytics(ctx, 1, session.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if summary.RefusedQueries != 1 {
		t.Fatalf("RefusedQueries = %d, want 1", summary.RefusedQueries)
	}
	if summary.QuestionsAsked != 1 {
		t.Fatalf("QuestionsAsked = %d, want 1", summary.QuestionsAsked)
	}
}

func TestOffTopicRedirectsWithoutProvider(t *testing.T) {
	fake := &fakeProvider{reply: "nope"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	reply, err := svc.Submit(ctx, 1, session.ID, "tell me a joke", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reply.Refused {
		t.Fatal("off-topic should not count as a refusal")
	}
	if reply.Answer != OffTopicMessage {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if fake.callCount() != 0 {
		t.Fatal("provider should not be called for off-topic queries")
	}
}

func TestSubmitReturnsAnswerWithGradingCitation(t *testing.T) {
	fake := &fakeProvider{reply: "CGPA is computed on a 10-point scale."}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	reply, err := svc.Submit(ctx, 1, session.ID, "how is CGPA calculated?", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reply.Answer != fake.reply {
		t.Fatalf("answer = %q, want provider reply", reply.Answer)
	}
	if reply.Topic != "Grading System" {
		t.Fatalf("topic = %q, want Grading System", reply.Topic)
	}
	if len(reply.Citations) == 0 {
		t.Fatal("expected citations for a grading query")
	}
	if reply.Citations[0].PassageID != "grading-system" {
		t.Fatalf("first citation = %q, want grading-system", reply.Citations[0].PassageID)
	}

	// The provider saw the guardrail instruction and the grounding context.
	msgs := fake.lastCall()
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1 on first turn", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "[Source 1]:") {
		t.Fatal("instruction missing grounding context")
	}
	if !strings.Contains(msgs[0].Content, "how is CGPA calculated?") {
		t.Fatal("instruction missing user question")
	}
}

func TestTurnLogRoundTrip(t *testing.T) {
	fake := &fakeProvider{reply: "Revaluation takes 15 working days."}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	if _, err := svc.Submit(ctx, 1, session.ID, "how do I apply for revaluation?", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	turns, err := svc.Transcript(ctx, 1, session.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Fatalf("turn order wrong: %s then %s", turns[0].Role, turns[1].Role)
	}
	if turns[1].Content != fake.reply {
		t.Fatalf("assistant turn = %q", turns[1].Content)
	}
	if len(turns[1].Citations) == 0 {
		t.Fatal("assistant turn missing citations")
	}
}

func TestTitleDerivedFromFirstQuery(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	if session.Title != DefaultTitle {
		t.Fatalf("new session title = %q", session.Title)
	}

	long := strings.Repeat("attendance ", 10)
	if _, err := svc.Submit(ctx, 1, session.ID, long, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sessions, err := svc.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if sessions[0].Title == DefaultTitle {
		t.Fatal("title not derived from first query")
	}
	if !strings.HasSuffix(sessions[0].Title, "...") {
		t.Fatalf("long title not truncated: %q", sessions[0].Title)
	}

	// A second query must not overwrite the derived title.
	if _, err := svc.Submit(ctx, 1, session.ID, "what about CGPA?", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sessions, _ = svc.ListSessions(ctx, 1)
	if sessions[0].Title != DeriveTitle(long) {
		t.Fatalf("title changed on second query: %q", sessions[0].Title)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	if _, err := svc.Submit(ctx, 1, session.ID, "explain supplementary exams", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := svc.DeleteSession(ctx, 1, session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Transcript(ctx, 1, session.ID); !IsNotFound(err) {
		t.Fatalf("transcript after delete: %v", err)
	}
	if err := svc.DeleteSession(ctx, 1, session.ID); !IsNotFound(err) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestOwnershipHidesForeignSessions(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")

	if _, err := svc.Submit(ctx, 2, session.ID, "how is CGPA calculated?", ""); !IsNotFound(err) {
		t.Fatalf("foreign submit: %v", err)
	}
	if _, err := svc.Transcript(ctx, 2, session.ID); !IsNotFound(err) {
		t.Fatalf("foreign transcript: %v", err)
	}
	if err := svc.DeleteSession(ctx, 2, session.ID); !IsNotFound(err) {
		t.Fatalf("foreign delete: %v", err)
	}
}

func TestLanguageSwitchResetsConversation(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "English")
	if _, err := svc.Submit(ctx, 1, session.ID, "how is CGPA calculated?", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, 1, session.ID, "what about revaluation?", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Two turns of history plus the new message.
	if got := len(fake.lastCall()); got != 3 {
		t.Fatalf("second call carried %d messages, want 3", got)
	}

	// Switching to Hindi resets history and persists the new language.
	if _, err := svc.Submit(ctx, 1, session.ID, "attendance rules?", "Hindi"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := len(fake.lastCall()); got != 1 {
		t.Fatalf("post-switch call carried %d messages, want 1", got)
	}
	if !strings.Contains(fake.lastCall()[0].Content, "Devanagari") {
		t.Fatal("instruction missing Hindi language directive")
	}
	sessions, _ := svc.ListSessions(ctx, 1)
	if sessions[0].Language != "Hindi" {
		t.Fatalf("session language = %q, want Hindi", sessions[0].Language)
	}
}

func TestSessionPassageStaysLocal(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, 1, "")
	b, _ := svc.CreateSession(ctx, 1, "")

	err := svc.AddSessionPassage(ctx, 1, a.ID, "The zorbletron fee is 500 rupees per attempt.")
	if err != nil {
		t.Fatalf("add passage: %v", err)
	}

	replyA, err := svc.Submit(ctx, 1, a.ID, "zorbletron fee details", "")
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	found := false
	for _, c := range replyA.Citations {
		if strings.HasPrefix(c.PassageID, "custom-") {
			found = true
		}
	}
	if !found {
		t.Fatal("session passage not retrieved in its own session")
	}

	replyB, err := svc.Submit(ctx, 1, b.ID, "zorbletron fee details", "")
	if err != nil {
		t.Fatalf("submit b: %v", err)
	}
	for _, c := range replyB.Citations {
		if strings.HasPrefix(c.PassageID, "custom-") {
			t.Fatal("session passage leaked into another session")
		}
	}
	if svc.KnowledgeSize() != 6 {
		t.Fatalf("shared store grew to %d passages", svc.KnowledgeSize())
	}
}

func TestSubmitStreamDeliversFragmentsAndResult(t *testing.T) {
	fake := &fakeProvider{reply: "Attendance must be at least 75%."}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	chunks, result, errs := svc.SubmitStream(ctx, 1, session.ID, "minimum attendance?", "")

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	default:
	}
	reply, ok := <-result
	if !ok {
		t.Fatal("no result delivered")
	}
	if b.String() != fake.reply || reply.Answer != fake.reply {
		t.Fatalf("stream = %q, reply = %q", b.String(), reply.Answer)
	}
	if reply.AssistantTurnID == "" {
		t.Fatal("streamed turn not persisted")
	}
}

func TestSubmitStreamConsumerDisconnect(t *testing.T) {
	frags := make([]string, 100)
	for i := range frags {
		frags[i] = "word "
	}
	fake := &streamingFakeProvider{fragments: frags}
	svc := testService(t, fake)

	session, _ := svc.CreateSession(context.Background(), 1, "")
	ctx, cancel := context.WithCancel(context.Background())
	chunks, result, _ := svc.SubmitStream(ctx, 1, session.ID, "how is CGPA calculated?", "")

	// Take one fragment, then disconnect without draining the rest.
	if _, ok := <-chunks; !ok {
		t.Fatal("no fragments delivered")
	}
	cancel()

	select {
	case reply, ok := <-result:
		if !ok {
			t.Fatal("result closed without a reply")
		}
		if reply.Answer == "" {
			t.Fatal("partial answer not captured")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish after consumer disconnect")
	}

	// The partial answer still reached the durable log.
	turns, err := svc.Transcript(context.Background(), 1, session.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(turns) != 2 || turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected turn log: %d turns", len(turns))
	}
	if turns[1].Content == "" {
		t.Fatal("assistant turn empty after disconnect")
	}
}

func TestProcessJobSuccess(t *testing.T) {
	fake := &fakeProvider{reply: "Revaluation takes 15 working days."}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	job := &Job{
		ID:        mustULID(t),
		UserID:    1,
		SessionID: session.ID,
		Query:     "revaluation timeline?",
		Status:    JobQueued,
	}
	if err := svc.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.ProcessJob(ctx, job.ID); err != nil {
		t.Fatalf("process job: %v", err)
	}

	got, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.ResultTurnID == nil || *got.ResultTurnID == "" {
		t.Fatal("succeeded job missing result turn id")
	}
}

func TestProcessJobFailureOnForeignSession(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	job := &Job{
		ID:        mustULID(t),
		UserID:    99,
		SessionID: session.ID,
		Query:     "anything",
		Status:    JobQueued,
	}
	if err := svc.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.ProcessJob(ctx, job.ID); err == nil {
		t.Fatal("expected error processing a foreign-session job")
	}

	got, _ := svc.GetJob(ctx, job.ID)
	if got.Status != JobFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil {
		t.Fatal("failed job missing error message")
	}
}

func TestJobIdempotencyKeyDeduplicates(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	key := "client-key-1"

	first := &Job{ID: mustULID(t), UserID: 1, SessionID: session.ID,
		Query: "q", Status: JobQueued, IdempotencyKey: &key}
	created, isNew, err := svc.CreateJobOrGetExisting(ctx, first)
	if err != nil || !isNew {
		t.Fatalf("first create: new=%v err=%v", isNew, err)
	}

	second := &Job{ID: mustULID(t), UserID: 1, SessionID: session.ID,
		Query: "q", Status: JobQueued, IdempotencyKey: &key}
	dup, isNew, err := svc.CreateJobOrGetExisting(ctx, second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if isNew {
		t.Fatal("duplicate key created a second job")
	}
	if dup.ID != created.ID {
		t.Fatalf("dedup returned %s, want %s", dup.ID, created.ID)
	}
}

func TestRecomputeSummaryMatchesLiveCounters(t *testing.T) {
	fake := &fakeProvider{reply: "ok"}
	svc := testService(t, fake)
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, 1, "")
	queries := []string{
		"how is CGPA calculated?",
		"will I pass this semester?",
		"how do I apply for revaluation?",
	}
	for _, q := range queries {
		if _, err := svc.Submit(ctx, 1, session.ID, q, ""); err != nil {
			t.Fatalf("submit %q: %v", q, err)
		}
	}

	live, _ := svc.Analytics(ctx, 1, session.ID)
	turns, _ := svc.Transcript(ctx, 1, session.ID)
	rebuilt := RecomputeSummary(turns, classify.NewKeyword())

	if rebuilt.QuestionsAsked != live.QuestionsAsked {
		t.Fatalf("questions: rebuilt %d, live %d", rebuilt.QuestionsAsked, live.QuestionsAsked)
	}
	if rebuilt.RefusedQueries != live.RefusedQueries {
		t.Fatalf("refusals: rebuilt %d, live %d", rebuilt.RefusedQueries, live.RefusedQueries)
	}
	if len(rebuilt.TopicsExplored) != len(live.TopicsExplored) {
		t.Fatalf("topics: rebuilt %v, live %v", rebuilt.TopicsExplored, live.TopicsExplored)
	}
}
