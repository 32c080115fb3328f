package overview

import (
	"strings"

	"edulink/internal/core"
)

var keyEmoji = map[string]string{
	"good":   "😊",
	"ok":     "😐",
	"normal": "😐",
	"tired":  "😓",
	"great":  "🔥",
	"need":   "⚠️",
}

var emojiLabel = map[string]string{
	"😊":  "집중 잘함",
	"😐":  "평범",
	"😓":  "컨디션 저조",
	"🔥":  "최고",
	"⚠️": "지도 필요",
}

// StatusLabel is the badge shown next to a record.
func StatusLabel(s core.AttendanceStatus) string {
	switch s {
	case core.StatusPresent:
		return "출석"
	case core.StatusAbsent:
		return "결석"
	case core.StatusLate:
		return "지각"
	default:
		return "기록"
	}
}

// EmojiForKey maps a symbolic feedback key to its glyph, or "".
func EmojiForKey(key string) string { return keyEmoji[key] }

// LabelForEmoji maps a feedback glyph to a short label, or "".
func LabelForEmoji(emoji string) string { return emojiLabel[emoji] }

// FallbackEmoji is used when a record carries no feedback at all.
func FallbackEmoji(s core.AttendanceStatus) string {
	if s == core.StatusAbsent {
		return "❌"
	}
	return "😊"
}

// FallbackText is used when a record carries no feedback at all.
func FallbackText(s core.AttendanceStatus) string {
	switch s {
	case core.StatusAbsent:
		return "결석"
	case core.StatusPresent:
		return "출석"
	default:
		return "기록"
	}
}

// DisplayEmoji: stored emoji, then the key's glyph, then the status fallback.
func DisplayEmoji(r core.DailyRecord) string {
	if r.FeedbackEmoji != "" {
		return r.FeedbackEmoji
	}
	if e := EmojiForKey(r.FeedbackKey); e != "" {
		return e
	}
	return FallbackEmoji(r.AttendanceStatus)
}

// DisplayText: free text, then the label of the displayed glyph (stored emoji, or
// the key's glyph), then the status fallback. Keys are labelled only through their
// glyph, so "ok" and "normal" read as 평범. The status fallback glyph is never labelled.
func DisplayText(r core.DailyRecord) string {
	if t := strings.TrimSpace(r.FeedbackText); t != "" {
		return t
	}
	if l := LabelForEmoji(r.FeedbackEmoji); l != "" {
		return l
	}
	if l := LabelForEmoji(EmojiForKey(r.FeedbackKey)); l != "" {
		return l
	}
	return FallbackText(r.AttendanceStatus)
}
