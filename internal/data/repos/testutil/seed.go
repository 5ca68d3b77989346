package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/huddle-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:    uuid.New(),
		Email: name + "-" + uuid.NewString()[:8] + "@example.com",
		Name:  name,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedConversation creates a conversation with the given members. The first
// member is the creator and, for groups, the only admin.
func SeedConversation(tb testing.TB, ctx context.Context, tx *gorm.DB, isGroup bool, members ...uuid.UUID) *types.Conversation {
	tb.Helper()
	if len(members) == 0 {
		tb.Fatalf("seed conversation: need at least one member")
	}
	c := &types.Conversation{ID: uuid.New(), IsGroup: isGroup, CreatedBy: members[0]}
	if isGroup {
		name := "group"
		c.Name = &name
	} else if len(members) == 2 {
		key := types.DirectKeyFor(members[0], members[1])
		c.DirectKey = &key
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed conversation: %v", err)
	}
	for i, uid := range members {
		p := &types.Participant{ConversationID: c.ID, UserID: uid, IsAdmin: isGroup && i == 0}
		if err := tx.WithContext(ctx).Create(p).Error; err != nil {
			tb.Fatalf("seed participant: %v", err)
		}
	}
	return c
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, convID, senderID uuid.UUID, seq int64, content string, at time.Time) *types.Message {
	tb.Helper()
	m := &types.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       senderID,
		Seq:            seq,
		Content:        &content,
		Type:           types.MessageTypeText,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func SeedAttachment(tb testing.TB, ctx context.Context, tx *gorm.DB, uploaderID uuid.UUID, messageID *uuid.UUID) *types.Attachment {
	tb.Helper()
	a := &types.Attachment{
		ID:           uuid.New(),
		MessageID:    messageID,
		UploaderID:   uploaderID,
		OriginalName: "file.txt",
		MimeType:     "text/plain",
		StoragePath:  "attachments/" + uploaderID.String() + "/" + uuid.NewString(),
		SizeBytes:    5,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed attachment: %v", err)
	}
	return a
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }

func PtrString(v string) *string { return &v }
