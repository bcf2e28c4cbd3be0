package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-myq/internal/myq"
)

// fakeSession provides canned session status for health tests.
type fakeSession struct {
	status myq.SessionStatus
	msg    string
	stats  myq.Stats
}

func (f *fakeSession) Status() (myq.SessionStatus, string) { return f.status, f.msg }
func (f *fakeSession) Stats() myq.Stats                    { return f.stats }

func newTestReporter(publisher *mockMQTT, session SessionSource) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		BridgeID:  "myq-test",
		Version:   "test",
		Topic:     "graylogic/health/myq",
		Interval:  time.Hour,
		Publisher: publisher,
		Session:   session,
	})
}

func TestDetermineStatus(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		session   myq.SessionStatus
		want      HealthStatus
	}{
		{"all healthy", true, myq.StatusOK, HealthHealthy},
		{"mqtt down", false, myq.StatusOK, HealthDegraded},
		{"unauthorized session", true, myq.StatusUnauthorized, HealthUnhealthy},
		{"cloud down", true, myq.StatusServiceDown, HealthDegraded},
		{"throttled", true, myq.StatusThrottled, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := newMockMQTT()
			publisher.connected = tt.connected

			h := newTestReporter(publisher, &fakeSession{status: tt.session})
			got, _ := h.determineStatus()
			if got != tt.want {
				t.Errorf("determineStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublishNow_Payload(t *testing.T) {
	publisher := newMockMQTT()
	session := &fakeSession{
		status: myq.StatusOK,
		stats: myq.Stats{
			LoginsTotal:  3,
			FetchesTotal: 42,
			MovesTotal:   7,
		},
	}

	h := newTestReporter(publisher, session)
	h.SetDeviceCount(2)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msgs := publisher.messagesOn("graylogic/health/myq")
	if len(msgs) != 1 {
		t.Fatalf("health publishes = %d, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("health message should be retained")
	}

	var msg HealthMessage
	if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if msg.Status != HealthHealthy {
		t.Errorf("Status = %v, want healthy", msg.Status)
	}
	if msg.Session != "ok" {
		t.Errorf("Session = %q, want ok", msg.Session)
	}
	if msg.DevicesManaged != 2 {
		t.Errorf("DevicesManaged = %d, want 2", msg.DevicesManaged)
	}
	if msg.Statistics == nil || msg.Statistics.Fetches != 42 {
		t.Errorf("Statistics = %+v, want fetches 42", msg.Statistics)
	}
}

func TestStop_PublishesStopping(t *testing.T) {
	publisher := newMockMQTT()
	h := newTestReporter(publisher, &fakeSession{status: myq.StatusOK})

	h.Stop()

	msgs := publisher.messagesOn("graylogic/health/myq")
	if len(msgs) == 0 {
		t.Fatal("expected a final health publish on Stop")
	}

	var msg HealthMessage
	json.Unmarshal(msgs[len(msgs)-1].payload, &msg)
	if msg.Status != HealthStopping {
		t.Errorf("final status = %v, want stopping", msg.Status)
	}
}

func TestStop_SafeToCallTwice(t *testing.T) {
	h := newTestReporter(newMockMQTT(), &fakeSession{status: myq.StatusOK})
	h.Stop()
	h.Stop() // Must not panic
}
