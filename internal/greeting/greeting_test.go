package greeting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chatline/chatline/internal/settings"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []Outbound
}

func (f *fakeSender) Send(_ context.Context, out Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, out)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeLines struct{ hasQueues bool }

func (f fakeLines) LineHasQueues(context.Context, int64, string) (bool, error) {
	return f.hasQueues, nil
}

type fakeHistory struct{ replied bool }

func (f fakeHistory) HasRecentOutbound(context.Context, int64, int64, time.Duration) (bool, error) {
	return f.replied, nil
}

type windowHistory struct {
	mu     sync.Mutex
	window time.Duration
}

func (h *windowHistory) HasRecentOutbound(_ context.Context, _, _ int64, window time.Duration) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.window = window
	return false, nil
}

func (h *windowHistory) seen() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window
}

type fakeAudit struct {
	mu    sync.Mutex
	sends []int64
}

func (f *fakeAudit) LogGreetingSent(_ context.Context, _ int64, ticketID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, ticketID)
	return nil
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func baseRequest() Request {
	return Request{
		TenantID:      1,
		LineID:        "line1",
		TicketID:      10,
		ContactNumber: "5511999990000",
		Settings:      &settings.TenantSettings{TenantID: 1, GreetingMessage: "Welcome!"},
	}
}

func TestConsiderDebouncesBurst(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, fakeLines{}, fakeHistory{}, WithDebounce(20*time.Millisecond))

	for i := 0; i < 5; i++ {
		svc.Consider(baseRequest())
	}

	time.Sleep(150 * time.Millisecond)
	if got := sender.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	if sender.sends[0].Body != "Welcome!" {
		t.Fatalf("body = %q", sender.sends[0].Body)
	}
}

func TestConsiderRecencySuppressesRepeat(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, fakeLines{}, fakeHistory{}, WithDebounce(10*time.Millisecond))

	svc.Consider(baseRequest())
	time.Sleep(80 * time.Millisecond)
	svc.Consider(baseRequest())
	time.Sleep(80 * time.Millisecond)

	if got := sender.count(); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestConsiderGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"outbound", func(r *Request) { r.FromMe = true }},
		{"group", func(r *Request) { r.IsGroup = true }},
		{"assigned agent", func(r *Request) { uid := int64(3); r.TicketUserID = &uid }},
		{"no greeting configured", func(r *Request) { r.Settings.GreetingMessage = "" }},
		{"nil settings", func(r *Request) { r.Settings = nil }},
		{"not in allow list", func(r *Request) {
			r.Settings.GreetingAllowList = []string{"555000"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			svc := NewService(sender, fakeLines{}, fakeHistory{}, WithDebounce(5*time.Millisecond))
			req := baseRequest()
			tt.mutate(&req)
			svc.Consider(req)
			time.Sleep(60 * time.Millisecond)
			if got := sender.count(); got != 0 {
				t.Fatalf("sends = %d, want 0", got)
			}
		})
	}
}

func TestConsiderGreetsWhitelistedGroup(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, fakeLines{}, fakeHistory{}, WithDebounce(5*time.Millisecond))

	req := baseRequest()
	req.IsGroup = true
	req.Settings.GreetingAllowList = []string{req.ContactNumber}
	svc.Consider(req)
	time.Sleep(60 * time.Millisecond)

	if got := sender.count(); got != 1 {
		t.Fatalf("sends = %d, want 1 (group is on the allow-list)", got)
	}
}

func TestOutboundSuppressionWindowIsFiveMinutes(t *testing.T) {
	sender := &fakeSender{}
	hist := &windowHistory{}
	svc := NewService(sender, fakeLines{}, hist, WithDebounce(5*time.Millisecond))

	svc.Consider(baseRequest())
	time.Sleep(60 * time.Millisecond)

	if got := hist.seen(); got != 5*time.Minute {
		t.Fatalf("suppression window = %v, want 5m", got)
	}
}

func TestGreetingSendIsAudited(t *testing.T) {
	sender := &fakeSender{}
	audits := &fakeAudit{}
	svc := NewService(sender, fakeLines{}, fakeHistory{},
		WithDebounce(5*time.Millisecond), WithAudit(audits))

	svc.Consider(baseRequest())
	time.Sleep(60 * time.Millisecond)

	if got := audits.count(); got != 1 {
		t.Fatalf("audit events = %d, want 1", got)
	}
}

func TestConsiderSkipsLineWithQueues(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, fakeLines{hasQueues: true}, fakeHistory{}, WithDebounce(5*time.Millisecond))
	svc.Consider(baseRequest())
	time.Sleep(60 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
}

func TestConsiderSkipsWhenAgentReplied(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, fakeLines{}, fakeHistory{replied: true}, WithDebounce(5*time.Millisecond))
	svc.Consider(baseRequest())
	time.Sleep(60 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
}

func TestRecencyMapExpiry(t *testing.T) {
	m := newRecencyMap(50*time.Millisecond, 8)
	if m.Touch("a") {
		t.Fatal("first touch should not report recent")
	}
	if !m.Touch("a") {
		t.Fatal("second touch should report recent")
	}
	base := time.Now()
	m.now = func() time.Time { return base.Add(time.Minute) }
	if m.Touch("a") {
		t.Fatal("expired entry should not report recent")
	}
}

func TestRecencyMapEviction(t *testing.T) {
	m := newRecencyMap(time.Hour, 2)
	m.Touch("a")
	m.Touch("b")
	m.Touch("c") // evicts a
	if m.Touch("a") {
		t.Fatal("evicted entry should not report recent")
	}
}
