package domain

import (
	"github.com/yungbote/huddle-backend/internal/domain/chat"
	"github.com/yungbote/huddle-backend/internal/domain/jobs"
	"github.com/yungbote/huddle-backend/internal/domain/user"
)

type User = user.User

type Conversation = chat.Conversation
type Participant = chat.Participant
type Message = chat.Message
type MessageType = chat.MessageType
type Attachment = chat.Attachment
type Reaction = chat.Reaction

type JobRun = jobs.JobRun

const (
	MessageTypeText   = chat.MessageTypeText
	MessageTypeImage  = chat.MessageTypeImage
	MessageTypeFile   = chat.MessageTypeFile
	MessageTypeVideo  = chat.MessageTypeVideo
	MessageTypeVoice  = chat.MessageTypeVoice
	MessageTypeSystem = chat.MessageTypeSystem
)

const (
	JobStatusQueued    = jobs.JobStatusQueued
	JobStatusRunning   = jobs.JobStatusRunning
	JobStatusSucceeded = jobs.JobStatusSucceeded
	JobStatusFailed    = jobs.JobStatusFailed
)

const JobTypeMessageAttachmentsProcess = jobs.JobTypeMessageAttachmentsProcess

var DirectKeyFor = chat.DirectKeyFor

// AllModels lists every table in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Conversation{},
		&Participant{},
		&Message{},
		&Attachment{},
		&Reaction{},
		&JobRun{},
	}
}
