package ingest

import (
	"strings"
	"testing"

	"github.com/chatline/chatline/internal/protocol"
)

func TestExtractBodyText(t *testing.T) {
	body, ok := ExtractBody(&protocol.Content{Conversation: strptr("hello")}, KindText)
	if !ok || body != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", body, ok)
	}

	body, ok = ExtractBody(&protocol.Content{ExtendedText: &protocol.ExtendedText{Text: "quoted reply"}}, KindText)
	if !ok || body != "quoted reply" {
		t.Fatalf("expected extended text, got %q ok=%v", body, ok)
	}
}

func TestExtractBodyMediaCaption(t *testing.T) {
	body, ok := ExtractBody(&protocol.Content{Image: &protocol.Media{Caption: "look"}}, KindImage)
	if !ok || body != "look" {
		t.Fatalf("expected caption, got %q ok=%v", body, ok)
	}

	// Audio has no caption; the body is resolved later from the stored file.
	body, ok = ExtractBody(&protocol.Content{Audio: &protocol.Media{PTT: true}}, KindAudio)
	if !ok || body != "" {
		t.Fatalf("expected empty audio body, got %q ok=%v", body, ok)
	}
}

func TestExtractBodyPlaceholders(t *testing.T) {
	cases := []struct {
		content *protocol.Content
		kind    Kind
		want    string
	}{
		{&protocol.Content{Sticker: &protocol.Media{}}, KindSticker, placeholderSticker},
		{&protocol.Content{PaymentRequest: &protocol.PaymentRequest{}}, KindPaymentRequest, placeholderPayment},
		{&protocol.Content{Product: &protocol.Product{}}, KindProduct, placeholderProduct},
		{&protocol.Content{Order: &protocol.Order{}}, KindOrder, placeholderOrder},
		{&protocol.Content{}, KindUnknown, placeholderUnsupported},
		{&protocol.Content{Call: &protocol.Call{Missed: true}}, KindCall, placeholderMissedCall},
		{&protocol.Content{Call: &protocol.Call{IsVideo: true}}, KindCall, placeholderVideoCall},
	}
	for _, tc := range cases {
		body, ok := ExtractBody(tc.content, tc.kind)
		if !ok {
			t.Fatalf("kind %s: expected renderable body", tc.kind)
		}
		if body != tc.want {
			t.Fatalf("kind %s: expected %q, got %q", tc.kind, tc.want, body)
		}
	}
}

func TestExtractBodyInertProtocolYieldsNull(t *testing.T) {
	c := &protocol.Content{Protocol: &protocol.Protocol{Type: protocol.ProtocolHistorySyncNote}}
	if _, ok := ExtractBody(c, KindProtocol); ok {
		t.Fatalf("expected inert protocol notice to yield no body")
	}
}

func TestExtractBodyUnwrapsEditOneLevel(t *testing.T) {
	c := &protocol.Content{
		Edited: &protocol.Wrapper{Message: &protocol.Content{Conversation: strptr("fixed typo")}},
	}
	body, ok := ExtractBody(c, KindEdited)
	if !ok || body != "fixed typo" {
		t.Fatalf("expected unwrapped edit body, got %q ok=%v", body, ok)
	}
}

func TestExtractBodyProtocolEditDelegates(t *testing.T) {
	c := &protocol.Content{
		Protocol: &protocol.Protocol{
			Type:          protocol.ProtocolMessageEdit,
			EditedMessage: &protocol.Content{ExtendedText: &protocol.ExtendedText{Text: "v2"}},
		},
	}
	body, ok := ExtractBody(c, KindProtocol)
	if !ok || body != "v2" {
		t.Fatalf("expected edit replacement body, got %q ok=%v", body, ok)
	}
}

func TestExtractBodyViewOnceUnwraps(t *testing.T) {
	c := &protocol.Content{
		ViewOnce: &protocol.Wrapper{Message: &protocol.Content{Image: &protocol.Media{Caption: "secret"}}},
	}
	body, ok := ExtractBody(c, KindViewOnce)
	if !ok || body != "secret" {
		t.Fatalf("expected view-once caption, got %q ok=%v", body, ok)
	}

	// Empty wrapper degrades to null rather than panicking.
	if _, ok := ExtractBody(&protocol.Content{ViewOnce: &protocol.Wrapper{}}, KindViewOnce); ok {
		t.Fatalf("expected empty wrapper to yield no body")
	}
}

func TestExtractBodyPollAndLocation(t *testing.T) {
	body, ok := ExtractBody(&protocol.Content{Poll: &protocol.Poll{
		Name:    "Lunch?",
		Options: []protocol.PollOption{{Name: "Yes"}, {Name: "No"}},
	}}, KindPoll)
	if !ok || !strings.Contains(body, "Lunch?") || !strings.Contains(body, "- Yes") {
		t.Fatalf("unexpected poll body %q", body)
	}

	body, ok = ExtractBody(&protocol.Content{Location: &protocol.Location{
		Latitude: -23.55052, Longitude: -46.633308, Name: "HQ",
	}}, KindLocation)
	if !ok || !strings.Contains(body, "HQ") || !strings.Contains(body, "-23.550520") {
		t.Fatalf("unexpected location body %q", body)
	}
}

func TestExtractBodyMalformedEnvelopeDegrades(t *testing.T) {
	// Kind says image but the payload lacks the field: empty body, no panic.
	body, ok := ExtractBody(&protocol.Content{}, KindImage)
	if !ok || body != "" {
		t.Fatalf("expected empty body for malformed image, got %q ok=%v", body, ok)
	}
}
