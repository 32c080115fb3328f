package overview

import "edulink/internal/core"

// DefaultRecentLimit is how many recent records the parent page shows.
const DefaultRecentLimit = 5

// RecordView is a record resolved for rendering.
type RecordView struct {
	ID     string
	Date   string
	Status core.AttendanceStatus
	Badge  string
	Emoji  string
	Text   string
}

// PageView is what the overview template renders.
type PageView struct {
	StudentName string
	ClassName   string
	Today       *RecordView
	Recent      []RecordView
	HiddenCount int
	// Empty is set when the backend returned nothing usable for the token.
	Empty bool
}

// NewRecordView resolves the display fields of r.
func NewRecordView(r core.DailyRecord) RecordView {
	return RecordView{
		ID:     r.ID,
		Date:   r.Date,
		Status: r.AttendanceStatus,
		Badge:  StatusLabel(r.AttendanceStatus),
		Emoji:  DisplayEmoji(r),
		Text:   DisplayText(r),
	}
}

// BuildPage prepares vm for display, keeping at most limit recent records.
func BuildPage(vm core.OverviewViewModel, limit int) PageView {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	p := PageView{Empty: vm.IsEmpty()}
	if vm.Student != nil {
		p.StudentName = vm.Student.Name
		p.ClassName = vm.Student.ClassName
	}
	if vm.Today != nil {
		tv := NewRecordView(*vm.Today)
		p.Today = &tv
	}
	shown := vm.Recent
	if len(shown) > limit {
		p.HiddenCount = len(shown) - limit
		shown = shown[:limit]
	}
	p.Recent = make([]RecordView, 0, len(shown))
	for _, r := range shown {
		p.Recent = append(p.Recent, NewRecordView(r))
	}
	return p
}
