package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edulink/internal/core"
)

type captured struct {
	path   string
	apikey string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, status int, resp string, got *captured) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.path = r.URL.Path
			got.apikey = r.Header.Get("apikey")
			got.auth = r.Header.Get("Authorization")
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", AnonKey: "anon", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(Config{URL: "not a url", AnonKey: "k"}); err == nil {
		t.Fatalf("expected invalid url error")
	}
}

func TestGetParentOverviewSendsTokenAndReturnsRaw(t *testing.T) {
	var got captured
	c := newTestClient(t, 200, `[{"id":"r1","record_date":"2025-03-10","is_today":true}]`, &got)

	raw, err := c.GetParentOverview(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.path != "/rest/v1/rpc/parent_overview" {
		t.Fatalf("path: %s", got.path)
	}
	if got.apikey != "anon" || got.auth != "Bearer anon" {
		t.Fatalf("headers: apikey=%q auth=%q", got.apikey, got.auth)
	}
	if got.body["p_token"] != "tok" {
		t.Fatalf("body: %v", got.body)
	}
	rows, ok := raw.([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("raw: %#v", raw)
	}
}

func TestGetParentOverviewRemoteError(t *testing.T) {
	c := newTestClient(t, 400, `{"code":"P0001","message":"invalid token","details":null,"hint":null}`, nil)
	_, err := c.GetParentOverview(context.Background(), "bad")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Message != "invalid token" || re.Code != "P0001" || re.Status != 400 || re.RPC != RPCParentOverview {
		t.Fatalf("unexpected remote error: %+v", re)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Fatalf("message: %s", err)
	}
}

func TestGetParentOverviewLegacyOKFalse(t *testing.T) {
	c := newTestClient(t, 200, `{"ok":false,"error":"토큰이 만료되었습니다"}`, nil)
	_, err := c.GetParentOverview(context.Background(), "old")
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "토큰이 만료되었습니다" {
		t.Fatalf("expected legacy failure, got %v", err)
	}

	c = newTestClient(t, 200, `{"ok":true,"student":{"id":"s"}}`, nil)
	if _, err := c.GetParentOverview(context.Background(), "t"); err != nil {
		t.Fatalf("ok:true must pass through: %v", err)
	}
}

func TestRemoteErrorPlainBody(t *testing.T) {
	c := newTestClient(t, 502, `bad gateway`, nil)
	err := c.Call(context.Background(), "x", nil, nil)
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "bad gateway" || re.Status != 502 {
		t.Fatalf("unexpected: %v", err)
	}
	if re.Unauthorized() {
		t.Fatalf("502 is not an auth failure")
	}
}

func TestAccessTokenOverridesBearer(t *testing.T) {
	var got captured
	c := newTestClient(t, 204, ``, &got)
	ctx := WithAccessToken(context.Background(), "staff-jwt")
	entry := core.AttendanceEntry{ClassID: "c1", StudentID: "s1", Date: core.NewDate(2025, 3, 10), Status: core.StatusAbsent}
	if err := c.SetAttendanceWithFeedback(ctx, entry); err != nil {
		t.Fatalf("set attendance: %v", err)
	}
	if got.auth != "Bearer staff-jwt" || got.apikey != "anon" {
		t.Fatalf("headers: %+v", got)
	}
	if got.path != "/rest/v1/rpc/set_attendance_with_feedback" {
		t.Fatalf("path: %s", got.path)
	}
	if got.body["p_date"] != "2025-03-10" || got.body["p_status"] != "absent" {
		t.Fatalf("body: %v", got.body)
	}
	if v, ok := got.body["p_emoji"]; !ok || v != nil {
		t.Fatalf("p_emoji should be an explicit null: %v", got.body)
	}
}

func TestCreateOrGetParentLinkShapes(t *testing.T) {
	for _, resp := range []string{`"tok1"`, `{"token":"tok1"}`, `[{"token":"tok1"}]`} {
		c := newTestClient(t, 200, resp, nil)
		tok, err := c.CreateOrGetParentLink(context.Background(), "s1")
		if err != nil || tok != "tok1" {
			t.Fatalf("resp %s: tok=%q err=%v", resp, tok, err)
		}
	}
	c := newTestClient(t, 200, `null`, nil)
	if _, err := c.CreateOrGetParentLink(context.Background(), "s1"); err == nil {
		t.Fatalf("expected error for empty response")
	}
}

func TestGetClassRoll(t *testing.T) {
	var got captured
	c := newTestClient(t, 200, `[
		{"student_id":"s1","student_name":"A","status":"present","feedback_emoji":"😊","feedback_text":null,"remaining_sessions":7},
		{"student_id":"s2","student_name":"B","status":null,"feedback_emoji":null,"feedback_text":null,"remaining_sessions":"3/8"}
	]`, &got)
	rows, err := c.GetClassRoll(context.Background(), "c1", core.NewDate(2025, 3, 10))
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if got.body["p_class_id"] != "c1" || got.body["p_date"] != "2025-03-10" {
		t.Fatalf("body: %v", got.body)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: %+v", rows)
	}
	if rows[0].Status != core.StatusPresent || rows[0].RemainingSessions != "7" || rows[0].FeedbackEmoji != "😊" {
		t.Fatalf("row0: %+v", rows[0])
	}
	if rows[1].Status != "" || rows[1].RemainingSessions != "3/8" {
		t.Fatalf("row1: %+v", rows[1])
	}
}

func TestGetTodayClasses(t *testing.T) {
	c := newTestClient(t, 200, `[{"class_id":"c1","class_name":"중2 수학"}]`, nil)
	classes, err := c.GetTodayClasses(context.Background(), "a1", core.NewDate(2025, 3, 10))
	if err != nil || len(classes) != 1 || classes[0].ClassName != "중2 수학" {
		t.Fatalf("classes=%+v err=%v", classes, err)
	}

	c = newTestClient(t, 200, `null`, nil)
	classes, err = c.GetTodayClasses(context.Background(), "a1", core.NewDate(2025, 3, 10))
	if err != nil || classes == nil || len(classes) != 0 {
		t.Fatalf("null should yield empty list: %+v %v", classes, err)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, 401, `{}`, nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("401 still means reachable: %v", err)
	}
	c = newTestClient(t, 503, `{}`, nil)
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected error for 503")
	}
}
