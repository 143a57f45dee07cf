package ingest

import "github.com/chatline/chatline/internal/protocol"

// Kind is the closed set of content-kind tags the pipeline understands.
type Kind string

const (
	KindText            Kind = "chat"
	KindImage           Kind = "image"
	KindVideo           Kind = "video"
	KindAudio           Kind = "audio"
	KindDocument        Kind = "document"
	KindSticker         Kind = "sticker"
	KindLocation        Kind = "location"
	KindLiveLocation    Kind = "live_location"
	KindContact         Kind = "contact"
	KindContactsArray   Kind = "contacts_array"
	KindReaction        Kind = "reaction"
	KindPoll            Kind = "poll"
	KindButtonsResponse Kind = "buttons_response"
	KindListResponse    Kind = "list_response"
	KindTemplateReply   Kind = "template_reply"
	KindPaymentRequest  Kind = "payment_request"
	KindProduct         Kind = "product"
	KindOrder           Kind = "order"
	KindCall            Kind = "call"
	KindEdited          Kind = "edited"
	KindViewOnce        Kind = "view_once"
	KindEphemeral       Kind = "ephemeral"
	KindProtocol        Kind = "protocol"
	KindUnknown         Kind = "unknown"
)

// IsMedia reports whether the kind carries binary content that must be
// downloaded before the message can be persisted.
func (k Kind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindAudio, KindDocument, KindSticker:
		return true
	default:
		return false
	}
}

// Classify maps a content envelope to its kind tag. It is a pure function
// of the envelope; unknown shapes classify as KindUnknown rather than
// failing. The pointer checks run in a fixed order so envelopes that
// illegally carry more than one kind still classify deterministically.
func Classify(c *protocol.Content) Kind {
	if c == nil {
		return KindUnknown
	}
	switch {
	case c.Edited != nil:
		return KindEdited
	case c.ViewOnce != nil:
		return KindViewOnce
	case c.Ephemeral != nil:
		return KindEphemeral
	case c.Protocol != nil:
		return KindProtocol
	case c.Conversation != nil:
		return KindText
	case c.ExtendedText != nil:
		return KindText
	case c.Image != nil:
		return KindImage
	case c.Video != nil:
		return KindVideo
	case c.Audio != nil:
		return KindAudio
	case c.Document != nil:
		return KindDocument
	case c.Sticker != nil:
		return KindSticker
	case c.Location != nil:
		return KindLocation
	case c.LiveLocation != nil:
		return KindLiveLocation
	case c.Contact != nil:
		return KindContact
	case c.ContactsList != nil:
		return KindContactsArray
	case c.Reaction != nil:
		return KindReaction
	case c.Poll != nil:
		return KindPoll
	case c.ButtonsResponse != nil:
		return KindButtonsResponse
	case c.ListResponse != nil:
		return KindListResponse
	case c.TemplateReply != nil:
		return KindTemplateReply
	case c.PaymentRequest != nil:
		return KindPaymentRequest
	case c.Product != nil:
		return KindProduct
	case c.Order != nil:
		return KindOrder
	case c.Call != nil:
		return KindCall
	default:
		return KindUnknown
	}
}
