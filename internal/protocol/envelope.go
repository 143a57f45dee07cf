package protocol

import "strings"

// GroupSuffix terminates remote conversation identifiers that belong to
// group chats.
const GroupSuffix = "@g.us"

// Transport delivery statuses as emitted by the session sidecar.
const (
	StatusPending     = "pending"
	StatusServerAck   = "server_ack"
	StatusDeliveryAck = "delivery_ack"
	StatusRead        = "read"
	StatusPlayed      = "played"
)

// Event is the raw envelope the session sidecar hands to the core for every
// protocol event on a tenant line. It is deliberately loose: the content
// envelope carries one pointer per known kind and unknown kinds simply
// arrive with none of them set.
type Event struct {
	TenantID int64  `json:"tenantId"`
	LineID   string `json:"lineId"`

	Info    MessageInfo `json:"info"`
	Status  string      `json:"status,omitempty"`
	Message *Content    `json:"message,omitempty"`

	// Raw mirrors the sidecar's original JSON for replay and debugging.
	Raw []byte `json:"-"`
}

// MessageInfo carries the transport metadata of an event.
type MessageInfo struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	Participant string `json:"participant,omitempty"`
	FromMe      bool   `json:"fromMe"`
	PushName    string `json:"pushName,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// IsGroup reports whether the event originates from a group conversation.
func (i MessageInfo) IsGroup() bool {
	return strings.HasSuffix(i.RemoteJID, GroupSuffix)
}

// Content is the content envelope. Exactly one kind pointer is expected to
// be set; wrappers (edited, view-once, ephemeral) nest another Content one
// level down.
type Content struct {
	Conversation *string       `json:"conversation,omitempty"`
	ExtendedText *ExtendedText `json:"extendedTextMessage,omitempty"`

	Image    *Media `json:"imageMessage,omitempty"`
	Video    *Media `json:"videoMessage,omitempty"`
	Audio    *Media `json:"audioMessage,omitempty"`
	Document *Media `json:"documentMessage,omitempty"`
	Sticker  *Media `json:"stickerMessage,omitempty"`

	Location     *Location    `json:"locationMessage,omitempty"`
	LiveLocation *Location    `json:"liveLocationMessage,omitempty"`
	Contact      *ContactCard `json:"contactMessage,omitempty"`
	ContactsList *ContactsArr `json:"contactsArrayMessage,omitempty"`

	Reaction *Reaction `json:"reactionMessage,omitempty"`
	Poll     *Poll     `json:"pollCreationMessage,omitempty"`

	ButtonsResponse *ButtonsResponse `json:"buttonsResponseMessage,omitempty"`
	ListResponse    *ListResponse    `json:"listResponseMessage,omitempty"`
	TemplateReply   *TemplateReply   `json:"templateButtonReplyMessage,omitempty"`

	PaymentRequest *PaymentRequest `json:"requestPaymentMessage,omitempty"`
	Product        *Product        `json:"productMessage,omitempty"`
	Order          *Order          `json:"orderMessage,omitempty"`

	Call *Call `json:"call,omitempty"`

	Edited    *Wrapper  `json:"editedMessage,omitempty"`
	ViewOnce  *Wrapper  `json:"viewOnceMessage,omitempty"`
	Ephemeral *Wrapper  `json:"ephemeralMessage,omitempty"`
	Protocol  *Protocol `json:"protocolMessage,omitempty"`
}

// ExtendedText is a text message that may quote another message.
type ExtendedText struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// Media is shared by image, video, audio, document and sticker kinds.
type Media struct {
	Caption     string       `json:"caption,omitempty"`
	MimeType    string       `json:"mimetype,omitempty"`
	FileName    string       `json:"fileName,omitempty"`
	FileLength  int64        `json:"fileLength,omitempty"`
	Seconds     int          `json:"seconds,omitempty"`
	PTT         bool         `json:"ptt,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// Location carries a pinned or live position.
type Location struct {
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactCard is a shared contact.
type ContactCard struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard"`
}

// ContactsArr is a batch of shared contacts.
type ContactsArr struct {
	DisplayName string        `json:"displayName"`
	Contacts    []ContactCard `json:"contacts"`
}

// Reaction references the reacted-to message.
type Reaction struct {
	Key  ReactionKey `json:"key"`
	Text string      `json:"text"`
}

// ReactionKey identifies the target of a reaction.
type ReactionKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// Poll is a poll creation message.
type Poll struct {
	Name    string       `json:"name"`
	Options []PollOption `json:"options"`
}

// PollOption is one selectable poll answer.
type PollOption struct {
	Name string `json:"optionName"`
}

// ButtonsResponse is a tap on a button template.
type ButtonsResponse struct {
	SelectedButtonID   string       `json:"selectedButtonId"`
	SelectedDisplayTxt string       `json:"selectedDisplayText"`
	ContextInfo        *ContextInfo `json:"contextInfo,omitempty"`
}

// ListResponse is a selection from a list template.
type ListResponse struct {
	Title       string       `json:"title"`
	RowID       string       `json:"singleSelectReply,omitempty"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// TemplateReply is a tap on a hydrated template button.
type TemplateReply struct {
	SelectedID         string       `json:"selectedId"`
	SelectedDisplayTxt string       `json:"selectedDisplayText"`
	ContextInfo        *ContextInfo `json:"contextInfo,omitempty"`
}

// PaymentRequest asks the recipient for money; the core only needs to know
// it happened.
type PaymentRequest struct {
	CurrencyCode string `json:"currencyCodeIso4217,omitempty"`
	Amount1000   int64  `json:"amount1000,omitempty"`
}

// Product is a catalog product share.
type Product struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Order is a shopping-cart order share.
type Order struct {
	ItemCount int    `json:"itemCount,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Call reports an incoming call on the line.
type Call struct {
	IsVideo bool `json:"isVideo"`
	Missed  bool `json:"missed"`
}

// Wrapper nests another content envelope one level down (edits, view-once,
// ephemeral).
type Wrapper struct {
	Message *Content `json:"message,omitempty"`
}

// Protocol message types.
const (
	ProtocolRevoke          = "REVOKE"
	ProtocolEphemeralSet    = "EPHEMERAL_SETTING"
	ProtocolHistorySyncNote = "HISTORY_SYNC_NOTIFICATION"
	ProtocolMessageEdit     = "MESSAGE_EDIT"
)

// Protocol is a transport-level protocol notice. Revokes and edits are
// meaningful to the pipeline; everything else is noise.
type Protocol struct {
	Type          string   `json:"type"`
	Key           *Key     `json:"key,omitempty"`
	EditedMessage *Content `json:"editedMessage,omitempty"`
}

// Key identifies a message on the wire.
type Key struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// ContextInfo carries quoted-message context.
type ContextInfo struct {
	StanzaID      string   `json:"stanzaId,omitempty"`
	Participant   string   `json:"participant,omitempty"`
	QuotedMessage *Content `json:"quotedMessage,omitempty"`
}
