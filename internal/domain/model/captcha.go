package model

import "time"

type CaptchaMode string

const (
	CaptchaModeButton CaptchaMode = "BUTTON"
	CaptchaModeText   CaptchaMode = "TEXT"
	CaptchaModeMath   CaptchaMode = "MATH"
)

// CaptchaChallenge is the one outstanding verification for a (chat, user)
// pair. An empty Answer means button-press mode. The row never expires on
// its own: it is removed either by a successful solve or by the scheduler's
// kick path.
type CaptchaChallenge struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Answer    string
	ExpiresAt time.Time
}
