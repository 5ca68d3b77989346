package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos"
	"github.com/yungbote/huddle-backend/internal/data/repos/testutil"
	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/apierr"
	"github.com/yungbote/huddle-backend/internal/platform/kvstore"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/postcommit"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []realtime.SSEMessage
}

func (r *recordingEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingEmitter) events(event realtime.SSEEvent) []realtime.SSEMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []realtime.SSEMessage
	for _, m := range r.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	ctx     context.Context
	db      *gorm.DB
	log     *logger.Logger
	kv      kvstore.Store
	repo    repos.Set
	emitter *recordingEmitter
	notify  ChatNotifier
	unread  UnreadCounter
	chat    ChatService
	groups  GroupService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	kv := kvstore.NewMemoryStore()
	repo := repos.NewSet(db, log)
	coord := postcommit.NewCoordinator(db, postcommit.Inline{Log: log})
	em := &recordingEmitter{}
	notify := NewChatNotifier(em)
	idem := NewIdempotencyGate(kv, log, IdempotencyConfig{Wait: 2 * time.Second, PollInterval: 10 * time.Millisecond}, nil)
	unread := NewUnreadCounter(kv, log)
	presence := NewPresenceStore(kv, log)
	jobs := NewJobService(db, log, repo.JobRuns)
	files, err := storage.NewLocalStore(t.TempDir(), "http://files.test")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	return &testEnv{
		ctx:     context.Background(),
		db:      db,
		log:     log,
		kv:      kv,
		repo:    repo,
		emitter: em,
		notify:  notify,
		unread:  unread,
		chat:    NewChatService(db, log, coord, repo, idem, unread, presence, notify, jobs, files, nil),
		groups:  NewGroupService(db, log, coord, repo, idem, unread, notify),
	}
}

func (e *testEnv) user(t *testing.T, name string) *types.User {
	t.Helper()
	return testutil.SeedUser(t, e.ctx, e.db, name)
}

func (e *testEnv) direct(t *testing.T, a, b uuid.UUID) *types.Conversation {
	t.Helper()
	return testutil.SeedConversation(t, e.ctx, e.db, false, a, b)
}

func (e *testEnv) group(t *testing.T, admin uuid.UUID, members ...uuid.UUID) *types.Conversation {
	t.Helper()
	return testutil.SeedConversation(t, e.ctx, e.db, true, append([]uuid.UUID{admin}, members...)...)
}

func (e *testEnv) send(t *testing.T, convID, senderID uuid.UUID, content string) *types.Message {
	t.Helper()
	msg, err := e.chat.SendMessage(e.ctx, SendMessageInput{SenderID: senderID, ConversationID: convID, Content: content})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	return msg
}

func expectKind(t *testing.T, err error, want apierr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apierr.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}
