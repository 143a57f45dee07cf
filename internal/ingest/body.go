package ingest

import (
	"fmt"
	"strings"

	"github.com/chatline/chatline/internal/protocol"
)

// Fixed placeholder bodies for kinds without natural text. These surface
// unsupported-but-meaningful content to the agent; truly inert protocol
// notices yield no body at all and are dropped by persistence.
const (
	placeholderSticker     = "Sticker received"
	placeholderPayment     = "Payment request received"
	placeholderProduct     = "Product shared"
	placeholderOrder       = "Order received"
	placeholderUnsupported = "Unsupported message - open it on your device"
	placeholderVoiceCall   = "Voice call"
	placeholderVideoCall   = "Video call"
	placeholderMissedCall  = "Missed call"
)

// ExtractBody resolves the display body for a classified envelope. The
// second return is false when the kind has nothing renderable at all (inert
// protocol noise), in which case no record is created downstream. Wrapper
// kinds unwrap one level and delegate to the inner kind's extractor.
func ExtractBody(c *protocol.Content, kind Kind) (string, bool) {
	if c == nil {
		return "", false
	}
	switch kind {
	case KindText:
		if c.Conversation != nil {
			return *c.Conversation, true
		}
		if c.ExtendedText != nil {
			return c.ExtendedText.Text, true
		}
		return "", true
	case KindImage:
		return mediaCaption(c.Image), true
	case KindVideo:
		return mediaCaption(c.Video), true
	case KindDocument:
		return mediaCaption(c.Document), true
	case KindAudio:
		// Filled in later with the stored filename or a transcript.
		return "", true
	case KindSticker:
		return placeholderSticker, true
	case KindLocation:
		return locationBody(c.Location), true
	case KindLiveLocation:
		return locationBody(c.LiveLocation), true
	case KindContact:
		if c.Contact == nil {
			return "", true
		}
		if c.Contact.DisplayName != "" {
			return c.Contact.DisplayName, true
		}
		return c.Contact.VCard, true
	case KindContactsArray:
		if c.ContactsList == nil || c.ContactsList.DisplayName == "" {
			return "Shared contacts", true
		}
		return c.ContactsList.DisplayName, true
	case KindReaction:
		if c.Reaction == nil {
			return "", true
		}
		return c.Reaction.Text, true
	case KindPoll:
		return pollBody(c.Poll), true
	case KindButtonsResponse:
		if c.ButtonsResponse == nil {
			return "", true
		}
		if c.ButtonsResponse.SelectedDisplayTxt != "" {
			return c.ButtonsResponse.SelectedDisplayTxt, true
		}
		return c.ButtonsResponse.SelectedButtonID, true
	case KindListResponse:
		if c.ListResponse == nil {
			return "", true
		}
		if c.ListResponse.Title != "" {
			return c.ListResponse.Title, true
		}
		return c.ListResponse.RowID, true
	case KindTemplateReply:
		if c.TemplateReply == nil {
			return "", true
		}
		if c.TemplateReply.SelectedDisplayTxt != "" {
			return c.TemplateReply.SelectedDisplayTxt, true
		}
		return c.TemplateReply.SelectedID, true
	case KindPaymentRequest:
		return placeholderPayment, true
	case KindProduct:
		return placeholderProduct, true
	case KindOrder:
		return placeholderOrder, true
	case KindCall:
		return callBody(c.Call), true
	case KindEdited:
		return unwrapBody(c.Edited)
	case KindViewOnce:
		return unwrapBody(c.ViewOnce)
	case KindEphemeral:
		return unwrapBody(c.Ephemeral)
	case KindProtocol:
		// Edits arrive as protocol messages carrying the replacement body;
		// everything else here is inert.
		if c.Protocol != nil && c.Protocol.Type == protocol.ProtocolMessageEdit && c.Protocol.EditedMessage != nil {
			inner := c.Protocol.EditedMessage
			return ExtractBody(inner, Classify(inner))
		}
		return "", false
	case KindUnknown:
		return placeholderUnsupported, true
	default:
		return "", false
	}
}

func unwrapBody(w *protocol.Wrapper) (string, bool) {
	if w == nil || w.Message == nil {
		return "", false
	}
	return ExtractBody(w.Message, Classify(w.Message))
}

func mediaCaption(m *protocol.Media) string {
	if m == nil {
		return ""
	}
	return m.Caption
}

func locationBody(l *protocol.Location) string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if l.Name != "" {
		parts = append(parts, l.Name)
	}
	if l.Address != "" {
		parts = append(parts, l.Address)
	}
	coords := fmt.Sprintf("%.6f, %.6f", l.Latitude, l.Longitude)
	if len(parts) == 0 {
		return coords
	}
	return strings.Join(parts, " - ") + " (" + coords + ")"
}

func pollBody(p *protocol.Poll) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Poll: ")
	b.WriteString(p.Name)
	for _, opt := range p.Options {
		b.WriteString("\n- ")
		b.WriteString(opt.Name)
	}
	return b.String()
}

func callBody(c *protocol.Call) string {
	if c == nil {
		return ""
	}
	if c.Missed {
		return placeholderMissedCall
	}
	if c.IsVideo {
		return placeholderVideoCall
	}
	return placeholderVoiceCall
}
