package model

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionUnban           ActionKind = "unban"
	ActionUnmute          ActionKind = "unmute"
	ActionCaptchaKick     ActionKind = "captcha_kick"
	ActionAntiraidDisable ActionKind = "antiraid_disable"
)

// ScheduledAction is one durable deferred instruction. Rows are an
// append-only log: completed flips false to true exactly once and never
// reverts, and rows are never deleted.
type ScheduledAction struct {
	ID        int64
	ChatID    int64
	UserID    int64 // 0 for chat-scoped actions
	Kind      ActionKind
	ExecuteAt time.Time
	Completed bool
	Metadata  map[string]string
}

// Action is the decoded form of a ScheduledAction row. Each variant carries
// exactly the fields its handler needs, so executor dispatch stays a
// compiler-checked type switch instead of a stringly one.
type Action interface {
	kind() ActionKind
}

type UnbanAction struct {
	ChatID int64
	UserID int64
}

type UnmuteAction struct {
	ChatID int64
	UserID int64
}

type CaptchaKickAction struct {
	ChatID int64
	UserID int64
}

type AntiraidDisableAction struct {
	ChatID int64
}

func (UnbanAction) kind() ActionKind           { return ActionUnban }
func (UnmuteAction) kind() ActionKind          { return ActionUnmute }
func (CaptchaKickAction) kind() ActionKind     { return ActionCaptchaKick }
func (AntiraidDisableAction) kind() ActionKind { return ActionAntiraidDisable }

// Decode maps a stored row onto its Action variant, validating that the
// fields the variant needs are present.
func (a ScheduledAction) Decode() (Action, error) {
	switch a.Kind {
	case ActionUnban:
		if a.UserID == 0 {
			return nil, fmt.Errorf("unban action %d has no user id", a.ID)
		}
		return UnbanAction{ChatID: a.ChatID, UserID: a.UserID}, nil
	case ActionUnmute:
		if a.UserID == 0 {
			return nil, fmt.Errorf("unmute action %d has no user id", a.ID)
		}
		return UnmuteAction{ChatID: a.ChatID, UserID: a.UserID}, nil
	case ActionCaptchaKick:
		if a.UserID == 0 {
			return nil, fmt.Errorf("captcha kick action %d has no user id", a.ID)
		}
		return CaptchaKickAction{ChatID: a.ChatID, UserID: a.UserID}, nil
	case ActionAntiraidDisable:
		return AntiraidDisableAction{ChatID: a.ChatID}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}
