package core

// FeedbackEmojis are the glyphs offered to staff when recording feedback.
var FeedbackEmojis = []string{"😊", "😐", "😓", "🌀", "💬"}

// FeedbackPresets are the one-tap feedback phrases offered to staff.
var FeedbackPresets = []string{"집중 좋음", "보통", "컨디션 저조", "산만했음", "상담 필요"}

// FeedbackCode is the symbolic feedback key stored by older backend versions.
type FeedbackCode string

const (
	FeedbackGood      FeedbackCode = "good"
	FeedbackNormal    FeedbackCode = "normal"
	FeedbackTired     FeedbackCode = "tired"
	FeedbackNeedFocus FeedbackCode = "need_focus"
	FeedbackAbsent    FeedbackCode = "absent"
)

// FeedbackPreset pairs a code with the emoji and sentence staff see for it.
type FeedbackPreset struct {
	Code  FeedbackCode `json:"code"`
	Emoji string       `json:"emoji"`
	Text  string       `json:"text"`
}

// FeedbackCodes lists the symbolic presets in display order.
var FeedbackCodes = []FeedbackPreset{
	{Code: FeedbackGood, Emoji: "😊", Text: "집중 잘했어요"},
	{Code: FeedbackNormal, Emoji: "😐", Text: "보통이에요"},
	{Code: FeedbackTired, Emoji: "😓", Text: "컨디션이 조금 저조해요"},
	{Code: FeedbackNeedFocus, Emoji: "⚠️", Text: "집중이 필요해요"},
	{Code: FeedbackAbsent, Emoji: "🚫", Text: "결석"},
}

// extra glyphs that backends write through symbolic keys
var keyEmojis = []string{"🔥", "⚠️"}

// IsFeedbackEmoji reports whether e may be stored as feedback.
func IsFeedbackEmoji(e string) bool {
	for _, v := range FeedbackEmojis {
		if v == e {
			return true
		}
	}
	for _, v := range keyEmojis {
		if v == e {
			return true
		}
	}
	return false
}
