package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"myhelper/internal/failure"
	"myhelper/internal/metrics"
	"myhelper/internal/mission"
)

func TestWebhookPostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	e := Event{MissionID: "m1", TaskID: "daily", Status: mission.StatusFailed, Error: &failure.Details{Kind: failure.KindTimeout, Message: "slow"}}
	if err := Send(context.Background(), NewWebhook(srv.URL, srv.Client()), e); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got.MissionID != "m1" || got.Error == nil || got.Error.Kind != failure.KindTimeout {
		t.Errorf("received %+v", got)
	}
}

func TestWebhookReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, nil).NotifySuccess(context.Background(), Event{MissionID: "m1"}); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestSlackPostsBlocks(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
	}))
	defer srv.Close()

	summary := "All 3 steps succeeded."
	m := &mission.Mission{ID: "m2", TaskID: "daily", Status: mission.StatusCompleted, FinalSummary: &summary}
	if err := Send(context.Background(), NewSlack(srv.URL), EventOf(m)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	for _, want := range []string{"Mission m2 (daily) completed", "All 3 steps succeeded.", `"blocks"`} {
		if !strings.Contains(raw, want) {
			t.Errorf("slack payload missing %q: %s", want, raw)
		}
	}
}

func TestNewDiscordValidatesWebhook(t *testing.T) {
	testCases := []struct {
		name    string
		webhook string
		wantErr bool
	}{
		{name: "id and token", webhook: "1234/abcd"},
		{name: "trailing slash", webhook: "1234/abcd/"},
		{name: "missing token", webhook: "1234", wantErr: true},
		{name: "empty id", webhook: "/abcd", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDiscord(tc.webhook)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewDiscord(%q) err = %v, wantErr %v", tc.webhook, err, tc.wantErr)
			}
		})
	}
}

type recorder struct {
	name      string
	err       error
	successes int
	failures  int
}

func (r *recorder) Name() string { return r.name }
func (r *recorder) NotifySuccess(context.Context, Event) error {
	r.successes++
	return r.err
}
func (r *recorder) NotifyFailure(context.Context, Event) error {
	r.failures++
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	ok := &recorder{name: "ok"}
	broken := &recorder{name: "broken_test", err: errors.New("unreachable")}
	last := &recorder{name: "last"}
	multi := NewMulti(nil, ok, broken, last)

	before := testutil.ToFloat64(metrics.NotifyErrors.WithLabelValues("broken_test"))
	err := Send(context.Background(), multi, Event{MissionID: "m3", Status: mission.StatusFailed})
	if err == nil || !strings.Contains(err.Error(), "broken_test") {
		t.Errorf("err = %v, want the failing notifier named", err)
	}
	if ok.failures != 1 || broken.failures != 1 || last.failures != 1 {
		t.Errorf("failures = %d/%d/%d, want each notified once", ok.failures, broken.failures, last.failures)
	}
	if ok.successes != 0 {
		t.Error("failure event routed to NotifySuccess")
	}
	if got := testutil.ToFloat64(metrics.NotifyErrors.WithLabelValues("broken_test")) - before; got != 1 {
		t.Errorf("notify error metric grew by %v, want 1", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "hello", n: 10, want: "hello"},
		{name: "ascii", in: "hello world", n: 5, want: "hello…"},
		{name: "cut inside a rune", in: "任务报告", n: 4, want: "任…"},
		{name: "cut on a boundary", in: "任务报告", n: 6, want: "任务…"},
		{name: "first rune too wide", in: "任务", n: 2, want: "…"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			if got != tc.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.n)
			}
		})
	}
}
