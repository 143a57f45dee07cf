package ingest

import "github.com/chatline/chatline/internal/protocol"

// QuotedRef is the resolved reference to the message an event replies to.
type QuotedRef struct {
	MessageID   string
	Participant string
	Content     *protocol.Content
}

// quotedSources is the fixed precedence order for quoted-context lookup.
// The order is business-significant and must not be rearranged.
var quotedSources = []func(*protocol.Content) *protocol.ContextInfo{
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.ExtendedText == nil {
			return nil
		}
		return c.ExtendedText.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.Image == nil {
			return nil
		}
		return c.Image.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.Video == nil {
			return nil
		}
		return c.Video.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.Document == nil {
			return nil
		}
		return c.Document.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.Sticker == nil {
			return nil
		}
		return c.Sticker.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.Audio == nil {
			return nil
		}
		return c.Audio.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.ButtonsResponse == nil {
			return nil
		}
		return c.ButtonsResponse.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.ListResponse == nil {
			return nil
		}
		return c.ListResponse.ContextInfo
	},
	func(c *protocol.Content) *protocol.ContextInfo {
		if c.TemplateReply == nil {
			return nil
		}
		return c.TemplateReply.ContextInfo
	},
}

// ResolveQuoted walks the candidate context fields in their fixed order and
// returns the first non-empty reference. A missing or malformed context
// resolves to nil; quoted context is optional and must never block
// persistence.
func ResolveQuoted(c *protocol.Content) *QuotedRef {
	if c == nil {
		return nil
	}
	for _, source := range quotedSources {
		info := source(c)
		if info == nil || info.StanzaID == "" {
			continue
		}
		return &QuotedRef{
			MessageID:   info.StanzaID,
			Participant: info.Participant,
			Content:     info.QuotedMessage,
		}
	}
	return nil
}
