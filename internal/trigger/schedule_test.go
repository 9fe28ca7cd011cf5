package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"myhelper/internal/config"
)

type recordingCreator struct {
	mu       sync.Mutex
	tasks    []string
	triggers []map[string]any
	err      error
}

func (c *recordingCreator) Create(_ context.Context, taskID string, trigger map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, taskID)
	c.triggers = append(c.triggers, trigger)
	return "m-1", c.err
}

func (c *recordingCreator) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func TestNewSchedulerRejectsBadSpecs(t *testing.T) {
	testCases := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "five fields", spec: "0 9 * * 1-5"},
		{name: "with seconds", spec: "*/30 * * * * *"},
		{name: "descriptor", spec: "@hourly"},
		{name: "every", spec: "@every 10m"},
		{name: "garbage", spec: "whenever", wantErr: true},
		{name: "too many fields", spec: "* * * * * * *", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewScheduler(&recordingCreator{}, []config.Schedule{{TaskID: "daily", Spec: tc.spec}}, nil)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewScheduler(%q) err = %v, wantErr %v", tc.spec, err, tc.wantErr)
			}
		})
	}
}

func TestSchedulerFiresMissions(t *testing.T) {
	creator := &recordingCreator{}
	base := map[string]any{"region": "eu"}
	s, err := NewScheduler(creator, []config.Schedule{{TaskID: "daily", Spec: "@every 1s", TriggerContext: base}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for creator.calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("schedule never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	creator.mu.Lock()
	defer creator.mu.Unlock()
	got := creator.triggers[0]
	if creator.tasks[0] != "daily" || got["region"] != "eu" || got["trigger"] != "schedule" || got["schedule"] != "@every 1s" {
		t.Errorf("fired %s with %v", creator.tasks[0], got)
	}
	if _, ok := base["trigger"]; ok {
		t.Error("schedule's trigger context was modified")
	}
}

func TestSchedulerSurvivesCreateErrors(t *testing.T) {
	creator := &recordingCreator{err: errors.New("store down")}
	s, err := NewScheduler(creator, []config.Schedule{{TaskID: "daily", Spec: "@every 1s"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.job(config.Schedule{TaskID: "daily", Spec: "@every 1s"})()
	s.job(config.Schedule{TaskID: "daily", Spec: "@every 1s"})()
	if creator.calls() != 2 {
		t.Errorf("calls = %d, want 2", creator.calls())
	}
}
