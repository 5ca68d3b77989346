package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/data/repos/chat"
	"github.com/yungbote/huddle-backend/internal/data/repos/jobs"
	"github.com/yungbote/huddle-backend/internal/data/repos/user"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo

type ConversationRepo = chat.ConversationRepo
type ParticipantRepo = chat.ParticipantRepo
type MessageRepo = chat.MessageRepo
type AttachmentRepo = chat.AttachmentRepo
type ReactionRepo = chat.ReactionRepo

type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return chat.NewConversationRepo(db, baseLog)
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	return chat.NewParticipantRepo(db, baseLog)
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return chat.NewMessageRepo(db, baseLog)
}

func NewAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) AttachmentRepo {
	return chat.NewAttachmentRepo(db, baseLog)
}

func NewReactionRepo(db *gorm.DB, baseLog *logger.Logger) ReactionRepo {
	return chat.NewReactionRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// Set bundles every repository the services need.
type Set struct {
	Users         UserRepo
	Conversations ConversationRepo
	Participants  ParticipantRepo
	Messages      MessageRepo
	Attachments   AttachmentRepo
	Reactions     ReactionRepo
	JobRuns       JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Users:         NewUserRepo(db, baseLog),
		Conversations: NewConversationRepo(db, baseLog),
		Participants:  NewParticipantRepo(db, baseLog),
		Messages:      NewMessageRepo(db, baseLog),
		Attachments:   NewAttachmentRepo(db, baseLog),
		Reactions:     NewReactionRepo(db, baseLog),
		JobRuns:       NewJobRunRepo(db, baseLog),
	}
}
