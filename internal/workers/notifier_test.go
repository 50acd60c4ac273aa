package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/queue"
)

type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

type mockNotifier struct {
	mu    sync.Mutex
	err   error
	calls []models.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, n)
	return m.err
}

type mockPublisher struct {
	jobs []*queue.Job
	err  error
}

func (m *mockPublisher) Enqueue(_ context.Context, job *queue.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func notificationJob() *queue.Job {
	return queue.NewNotificationJob(models.Notification{
		Filename: "voicenote_1704067200_a1b2c3d4.webm",
		URL:      "https://example.com/voicenotes/voicenote_1704067200_a1b2c3d4.webm",
	})
}

func TestProcessJob_Delivered(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{}
	s := NewNotificationSender(n, &mockPublisher{}, time.Minute, time.Second, nil)
	msg := &mockMessage{job: notificationJob()}

	if err := s.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected message to be acked")
	}
	if len(n.calls) != 1 || n.calls[0].Filename != "voicenote_1704067200_a1b2c3d4.webm" {
		t.Errorf("Unexpected notifier calls %+v", n.calls)
	}
}

func TestProcessJob_FailureIsRescheduled(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{err: errors.New("smtp timeout")}
	p := &mockPublisher{}
	s := NewNotificationSender(n, p, time.Minute, time.Second, nil)
	job := notificationJob()
	msg := &mockMessage{job: job}

	if err := s.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error for failed delivery")
	}
	if !msg.acked {
		t.Error("Expected original message to be acked after re-enqueue")
	}
	if len(p.jobs) != 1 {
		t.Fatalf("Expected one re-enqueued job, got %d", len(p.jobs))
	}
	retry := p.jobs[0]
	if retry.ID != job.ID {
		t.Errorf("Expected retry to keep job ID %s, got %s", job.ID, retry.ID)
	}
	if retry.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", retry.RetryCount)
	}
	if retry.NotBefore == nil || time.Until(*retry.NotBefore) < 50*time.Second {
		t.Errorf("Expected retry to be delayed by about a minute, got %v", retry.NotBefore)
	}
	if job.RetryCount != 0 {
		t.Error("Original job must not be mutated")
	}
}

func TestProcessJob_ExhaustedRetriesDeadLetter(t *testing.T) {
	t.Parallel()

	n := &mockNotifier{err: errors.New("smtp timeout")}
	p := &mockPublisher{}
	s := NewNotificationSender(n, p, time.Minute, time.Second, nil)
	job := notificationJob()
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}

	if err := s.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected error")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("Expected nack without requeue, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
	}
	if len(p.jobs) != 0 {
		t.Error("Expected no re-enqueue after retries are exhausted")
	}
}

func TestProcessJob_ReenqueueFailureRequeues(t *testing.T) {
	t.Parallel()

	s := NewNotificationSender(&mockNotifier{err: errors.New("down")}, &mockPublisher{err: errors.New("channel closed")}, time.Minute, time.Second, nil)
	msg := &mockMessage{job: notificationJob()}

	_ = s.ProcessJob(context.Background(), msg)
	if !msg.nacked || !msg.requeue {
		t.Errorf("Expected nack with requeue, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
	}
}

func TestProcessJob_InvalidJobs(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name        string
		job         *queue.Job
		wantErr     bool
		wantRequeue bool
	}{
		{"unknown type", &queue.Job{Type: "reprocess_user"}, true, false},
		{"missing payload", &queue.Job{Type: queue.JobTypeSubmissionNotification}, true, false},
		{"expired", &queue.Job{Type: queue.JobTypeSubmissionNotification, NotAfter: &past}, false, false},
		{"not yet due", &queue.Job{Type: queue.JobTypeSubmissionNotification, NotBefore: &future}, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := &mockNotifier{}
			s := NewNotificationSender(n, nil, time.Minute, time.Second, nil)
			msg := &mockMessage{job: tt.job}
			err := s.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !msg.nacked || msg.requeue != tt.wantRequeue {
				t.Errorf("Expected nack requeue=%v, got nacked=%v requeue=%v", tt.wantRequeue, msg.nacked, msg.requeue)
			}
			if len(n.calls) != 0 {
				t.Error("Notifier must not be called")
			}
		})
	}
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	t.Parallel()

	s := NewNotificationSender(&mockNotifier{}, nil, time.Minute, time.Second, nil)
	msgs := make(chan *queue.Message)
	errs := make(chan error)
	close(msgs)
	close(errs)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), msgs, errs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the message channel closed")
	}
}
