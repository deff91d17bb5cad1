package channels

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestResolveRouteDeterministic(t *testing.T) {
	peer := Peer{Kind: PeerDM, ID: "0xAbCdEf"}
	first := ResolveRoute("acct", "main", peer)
	second := ResolveRoute("acct", "main", peer)
	if first != second {
		t.Fatalf("identical inputs produced different routes: %+v vs %+v", first, second)
	}
	if first.SessionKey != "xmtp:acct:dm:0xabcdef" {
		t.Errorf("SessionKey = %q", first.SessionKey)
	}
	if first.AgentID != "main" {
		t.Errorf("AgentID = %q", first.AgentID)
	}
}

func TestResolveRouteSeparatesPeerKinds(t *testing.T) {
	dm := ResolveRoute("acct", "main", Peer{Kind: PeerDM, ID: "shared-id"})
	grp := ResolveRoute("acct", "main", Peer{Kind: PeerGroup, ID: "shared-id"})
	if dm.SessionKey == grp.SessionKey {
		t.Fatalf("dm and group peers with the same id must map to distinct sessions, both got %q", dm.SessionKey)
	}
}

func TestPeerFromEvent(t *testing.T) {
	dm := PeerFromEvent(InboundEvent{Sender: "0xabc", ConversationID: "convo-1", IsDirect: true})
	if dm.Kind != PeerDM || dm.ID != "0xabc" {
		t.Errorf("direct peer = %+v", dm)
	}
	grp := PeerFromEvent(InboundEvent{Sender: "0xabc", ConversationID: "convo-1", IsDirect: false})
	if grp.Kind != PeerGroup || grp.ID != "convo-1" {
		t.Errorf("group peer = %+v", grp)
	}
}

type stubActivity struct {
	ts  time.Time
	ok  bool
	err error
}

func (s stubActivity) LastActivity(string) (time.Time, bool, error) { return s.ts, s.ok, s.err }

func TestPreviousActivityDegradesOnError(t *testing.T) {
	_, ok := PreviousActivity(stubActivity{err: errors.New("db gone")}, "k")
	if ok {
		t.Fatal("store error must read as absent activity")
	}
	_, ok = PreviousActivity(nil, "k")
	if ok {
		t.Fatal("nil reader must read as absent activity")
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts, ok := PreviousActivity(stubActivity{ts: want, ok: true}, "k")
	if !ok || !ts.Equal(want) {
		t.Fatalf("got (%v, %v), want (%v, true)", ts, ok, want)
	}
}

func TestFormatEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := InboundEvent{
		AccountID:      "acct",
		Sender:         "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		ConversationID: "convo-1",
		Content:        "hello there",
		MessageID:      "msg-1",
		IsDirect:       true,
		ReceivedAt:     now,
	}
	route := ResolveRoute("acct", "main", PeerFromEvent(evt))
	prev := now.Add(-2 * time.Hour)

	ic := FormatEnvelope(evt, route, prev, true, now)
	if ic.ChatType != "direct" {
		t.Errorf("ChatType = %q", ic.ChatType)
	}
	if ic.RawBody != "hello there" {
		t.Errorf("RawBody = %q", ic.RawBody)
	}
	if !strings.HasPrefix(ic.Body, "[xmtp direct] 0x2c7536E360…") {
		t.Errorf("header truncation wrong: %q", ic.Body)
	}
	if !strings.Contains(ic.Body, "(last activity 2h ago)") {
		t.Errorf("missing activity hint: %q", ic.Body)
	}
	if !strings.HasSuffix(ic.Body, "\nhello there") {
		t.Errorf("body must end with the raw content: %q", ic.Body)
	}
	if ic.SessionKey != route.SessionKey {
		t.Errorf("SessionKey = %q, want %q", ic.SessionKey, route.SessionKey)
	}
	if ic.From != "xmtp:"+evt.Sender {
		t.Errorf("From = %q", ic.From)
	}
	if ic.TraceID != "xmtp-msg-1" {
		t.Errorf("TraceID = %q", ic.TraceID)
	}

	fresh := FormatEnvelope(evt, route, time.Time{}, false, now)
	if strings.Contains(fresh.Body, "last activity") {
		t.Errorf("fresh session must not carry an activity hint: %q", fresh.Body)
	}
}

func TestFormatEnvelopeGroup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := InboundEvent{AccountID: "acct", Sender: "0xabc", ConversationID: "grp-1", Content: "hi", IsDirect: false}
	route := ResolveRoute("acct", "main", PeerFromEvent(evt))
	ic := FormatEnvelope(evt, route, time.Time{}, false, now)
	if ic.ChatType != "group" {
		t.Errorf("ChatType = %q", ic.ChatType)
	}
	if !strings.HasPrefix(ic.Body, "[xmtp group]") {
		t.Errorf("Body = %q", ic.Body)
	}
	if ic.ReceivedAt != now {
		t.Errorf("zero ReceivedAt must fall back to now, got %v", ic.ReceivedAt)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("short"); got != "short" {
		t.Errorf("shortID(short) = %q", got)
	}
	long := "0123456789abcdef"
	if got := shortID(long); got != "0123456789ab…" {
		t.Errorf("shortID(long) = %q", got)
	}
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := elapsed(tt.d); got != tt.want {
			t.Errorf("elapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
