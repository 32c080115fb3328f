package core

type (
	// StudentRef identifies the student a parent overview belongs to.
	StudentRef struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		ClassName string `json:"className,omitempty"`
	}

	// DailyRecord is one day's attendance plus optional feedback. The three feedback
	// fields encode the same concept at different stages; empty means absent.
	DailyRecord struct {
		ID               string           `json:"id"`
		Date             string           `json:"date"`
		AttendanceStatus AttendanceStatus `json:"attendanceStatus"`
		FeedbackKey      string           `json:"feedbackKey,omitempty"`
		FeedbackEmoji    string           `json:"feedbackEmoji,omitempty"`
		FeedbackText     string           `json:"feedbackText,omitempty"`
	}

	// OverviewViewModel is the canonical parent overview. Recent is most recent first
	// and never contains Today.
	OverviewViewModel struct {
		Student *StudentRef   `json:"student"`
		Today   *DailyRecord  `json:"today"`
		Recent  []DailyRecord `json:"recent"`
	}
)

// IsEmpty reports whether the overview carries nothing to show.
func (vm OverviewViewModel) IsEmpty() bool {
	return vm.Student == nil && vm.Today == nil && len(vm.Recent) == 0
}
