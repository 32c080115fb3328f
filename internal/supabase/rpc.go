package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"edulink/internal/core"
)

// GetParentOverview returns the decoded overview payload for a parent token. The shape
// is whatever the backend produced; callers normalize it. A legacy envelope carrying
// "ok": false is reported as a RemoteError.
func (c *Client) GetParentOverview(ctx context.Context, token string) (any, error) {
	var raw any
	if err := c.Call(ctx, RPCParentOverview, map[string]any{"p_token": token}, &raw); err != nil {
		return nil, err
	}
	if err := legacyFailure(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func legacyFailure(raw any) error {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	okv, present := obj["ok"].(bool)
	if !present || okv {
		return nil
	}
	msg, _ := obj["error"].(string)
	if strings.TrimSpace(msg) == "" {
		msg = "overview unavailable"
	}
	return &RemoteError{RPC: RPCParentOverview, Status: 200, Message: msg}
}

// SetAttendanceWithFeedback upserts a student's attendance for a class day.
func (c *Client) SetAttendanceWithFeedback(ctx context.Context, e core.AttendanceEntry) error {
	params := map[string]any{
		"p_class_id":   e.ClassID,
		"p_student_id": e.StudentID,
		"p_date":       e.Date.String(),
		"p_status":     string(e.Status),
		"p_emoji":      nullable(e.Emoji),
		"p_text":       nullable(e.Text),
	}
	return c.Call(ctx, RPCSetAttendance, params, nil)
}

// CreateOrGetParentLink returns the student's parent token, issuing one if needed.
func (c *Client) CreateOrGetParentLink(ctx context.Context, studentID string) (string, error) {
	var raw any
	if err := c.Call(ctx, RPCCreateOrGetParentLink, map[string]any{"p_student_id": studentID}, &raw); err != nil {
		return "", err
	}
	switch v := raw.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case map[string]any:
		if s, ok := v["token"].(string); ok && s != "" {
			return s, nil
		}
	case []any:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				if s, ok := m["token"].(string); ok && s != "" {
					return s, nil
				}
			}
		}
	}
	return "", fmt.Errorf("%s: response carries no token", RPCCreateOrGetParentLink)
}

type rollRowWire struct {
	StudentID         string          `json:"student_id"`
	StudentName       string          `json:"student_name"`
	Status            *string         `json:"status"`
	FeedbackEmoji     *string         `json:"feedback_emoji"`
	FeedbackText      *string         `json:"feedback_text"`
	RemainingSessions json.RawMessage `json:"remaining_sessions"`
}

// GetClassRoll lists the students of a class with their attendance for date.
func (c *Client) GetClassRoll(ctx context.Context, classID string, date core.Date) ([]core.RollRow, error) {
	var wire []rollRowWire
	params := map[string]any{"p_class_id": classID, "p_date": date.String()}
	if err := c.Call(ctx, RPCGetClassRoll, params, &wire); err != nil {
		return nil, err
	}
	rows := make([]core.RollRow, 0, len(wire))
	for _, w := range wire {
		row := core.RollRow{
			StudentID:         w.StudentID,
			StudentName:       w.StudentName,
			FeedbackEmoji:     deref(w.FeedbackEmoji),
			FeedbackText:      deref(w.FeedbackText),
			RemainingSessions: rawScalar(w.RemainingSessions),
		}
		if w.Status != nil && *w.Status != "" {
			row.Status = core.ParseAttendanceStatus(*w.Status)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetTodayClasses lists an academy's classes scheduled on date.
func (c *Client) GetTodayClasses(ctx context.Context, academyID string, date core.Date) ([]core.TodayClass, error) {
	out := []core.TodayClass{}
	params := map[string]any{"p_academy_id": academyID, "p_date": date.String()}
	if err := c.Call(ctx, RPCGetTodayClasses, params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.TodayClass{}
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// rawScalar renders a JSON number or string without quotes; null becomes "".
func rawScalar(b json.RawMessage) string {
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}
