package model

import "time"

type FloodMode string

const (
	FloodModeBan   FloodMode = "BAN"
	FloodModeMute  FloodMode = "MUTE"
	FloodModeKick  FloodMode = "KICK"
	FloodModeTBan  FloodMode = "TBAN"
	FloodModeTMute FloodMode = "TMUTE"
)

const (
	DefaultCaptchaKickTime = 120   // seconds
	DefaultRaidTime        = 21600 // seconds, 6 hours
)

// ChatSettings holds the per-chat moderation configuration. Chats without a
// stored row behave as DefaultChatSettings.
type ChatSettings struct {
	ChatID            int64
	FloodLimit        int // messages per window; <=0 disables antiflood
	FloodTimer        int // window seconds; 0 falls back to the 5s default
	FloodMode         FloodMode
	FloodClearAll     bool
	CaptchaEnabled    bool
	CaptchaMode       CaptchaMode
	CaptchaText       string // custom button label, empty for the default
	CaptchaKick       bool
	CaptchaKickTime   int // seconds
	RaidTime          int // seconds raid mode stays active once triggered
	AutoAntiraidLimit int // joins per minute; <=0 disables auto-antiraid
	AntiraidEnabled   bool
	AntiraidExpiresAt *time.Time
}

func DefaultChatSettings(chatID int64) ChatSettings {
	return ChatSettings{
		ChatID:          chatID,
		FloodMode:       FloodModeMute,
		CaptchaMode:     CaptchaModeButton,
		CaptchaKickTime: DefaultCaptchaKickTime,
		RaidTime:        DefaultRaidTime,
	}
}

// RaidActive reports whether raid mode is in effect: the flag is set and the
// expiry has not passed.
func (s ChatSettings) RaidActive(now time.Time) bool {
	return s.AntiraidEnabled && s.AntiraidExpiresAt != nil && s.AntiraidExpiresAt.After(now)
}
