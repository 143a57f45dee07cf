package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatline/chatline/internal/greeting"
	"github.com/chatline/chatline/internal/media"
	"github.com/chatline/chatline/internal/observability/metrics"
	"github.com/chatline/chatline/internal/protocol"
	"github.com/chatline/chatline/internal/realtime"
	"github.com/chatline/chatline/internal/settings"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/internal/ticket"
	"github.com/chatline/chatline/internal/transcribe"
	"github.com/chatline/chatline/pkg/logging"
)

var pipelineTracer trace.Tracer = otel.Tracer("chatline.internal.ingest")

// ErrMediaUnavailable marks a failed media acquisition. The event cannot be
// persisted without its payload and does not improve on redelivery, so the
// consumer drops it instead of retrying.
var ErrMediaUnavailable = errors.New("ingest: media unavailable")

// Outcome labels recorded per processed event.
const (
	outcomePersisted    = "persisted"
	outcomeUpdated      = "updated"
	outcomeEdited       = "edited"
	outcomeRevoked      = "revoked"
	outcomeGroupBlocked = "group_blocked"
	outcomeInert        = "inert"
	outcomeMediaFailed  = "media_failed"
)

type settingsProvider interface {
	Get(ctx context.Context, tenantID int64) (*settings.TenantSettings, error)
}

type contactStore interface {
	GetOrCreateByJID(ctx context.Context, tenantID int64, jid, pushName string, isGroup bool) (*store.ContactRecord, error)
}

type ticketStore interface {
	FindOrCreate(ctx context.Context, tenantID int64, lineID string, contactID int64, isGroup bool) (*store.TicketRecord, error)
	Reopen(ctx context.Context, q store.Querier, tenantID, id int64, clearUser bool) error
	SetLastMessage(ctx context.Context, q store.Querier, tenantID, id int64, lastMessage string) error
	LoadEnriched(ctx context.Context, tenantID, id int64) (*store.EnrichedTicket, error)
}

type messageStore interface {
	GetByID(ctx context.Context, tenantID int64, id string) (*store.MessageRecord, error)
	Insert(ctx context.Context, q store.Querier, rec store.MessageRecord) error
	UpdateDelivery(ctx context.Context, q store.Querier, tenantID int64, id string, ack int, participant string, raw []byte) error
	ApplyEdit(ctx context.Context, q store.Querier, tenantID int64, id string, body string) error
	MarkRevoked(ctx context.Context, q store.Querier, tenantID int64, id string) error
	UpsertOldMessage(ctx context.Context, q store.Querier, tenantID int64, messageID string, ticketID int64, previousBody *string) error
}

type campaignDetector interface {
	HandleSelfSent(ctx context.Context, tenantID int64, messageID, body string) error
	HandleInboundReply(ctx context.Context, tenantID int64, number string) error
}

type greeter interface {
	Consider(req greeting.Request)
}

// Broadcaster fans realtime events out to connected agents.
type Broadcaster interface {
	Broadcast(tenantID int64, event string, payload any)
}

type mediaWriter interface {
	Save(ctx context.Context, tenantID int64, filename string, data []byte) (string, error)
}

type auditLogger interface {
	LogTicketReopened(ctx context.Context, tenantID, ticketID int64, messageID string) error
	LogMessageEdited(ctx context.Context, tenantID, ticketID int64, messageID, previousBody string) error
	LogMessageRevoked(ctx context.Context, tenantID, ticketID int64, messageID string) error
	LogGroupBlocked(ctx context.Context, tenantID int64, remoteJID string) error
}

// Pipeline turns one raw protocol event into durable state plus side
// effects. Process is safe to invoke twice for the same event identifier;
// the second pass degrades to the delivery-update branch.
type Pipeline struct {
	settings    settingsProvider
	contacts    contactStore
	tickets     ticketStore
	messages    messageStore
	campaigns   campaignDetector
	greetings   greeter
	broadcaster Broadcaster

	downloader  media.Downloader
	writer      mediaWriter
	transcriber transcribe.Transcriber

	locks   *ticket.Locks
	audits  auditLogger
	metrics *metrics.IngestMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// PipelineOption customizes optional collaborators.
type PipelineOption func(*Pipeline)

// WithTranscriber enables voice-note transcription.
func WithTranscriber(t transcribe.Transcriber) PipelineOption {
	return func(p *Pipeline) { p.transcriber = t }
}

// WithAudit attaches the audit trail. Audit failures never fail the event.
func WithAudit(a auditLogger) PipelineOption {
	return func(p *Pipeline) { p.audits = a }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.IngestMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates the event pipeline.
func NewPipeline(
	settingsStore settingsProvider,
	contacts contactStore,
	tickets ticketStore,
	messages messageStore,
	campaigns campaignDetector,
	greetings greeter,
	broadcaster Broadcaster,
	downloader media.Downloader,
	writer mediaWriter,
	opts ...PipelineOption,
) *Pipeline {
	if settingsStore == nil {
		panic("ingest: settings store cannot be nil")
	}
	if contacts == nil {
		panic("ingest: contact store cannot be nil")
	}
	if tickets == nil {
		panic("ingest: ticket store cannot be nil")
	}
	if messages == nil {
		panic("ingest: message store cannot be nil")
	}
	if broadcaster == nil {
		panic("ingest: broadcaster cannot be nil")
	}
	p := &Pipeline{
		settings:    settingsStore,
		contacts:    contacts,
		tickets:     tickets,
		messages:    messages,
		campaigns:   campaigns,
		greetings:   greetings,
		broadcaster: broadcaster,
		downloader:  downloader,
		writer:      writer,
		locks:       ticket.NewLocks(),
		logger:      logging.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one event end to end.
func (p *Pipeline) Process(ctx context.Context, ev protocol.Event) error {
	started := p.now()
	ctx, span := pipelineTracer.Start(ctx, "ingest.process")
	defer span.End()

	kind := Classify(ev.Message)
	span.SetAttributes(
		attribute.Int64("tenant.id", ev.TenantID),
		attribute.String("message.id", ev.Info.ID),
		attribute.String("message.kind", string(kind)),
		attribute.Bool("message.from_me", ev.Info.FromMe),
	)

	st, err := p.settings.Get(ctx, ev.TenantID)
	if err != nil {
		return fmt.Errorf("ingest: load tenant settings: %w", err)
	}

	if RejectGroup(ev.Info, st.BlockGroupMessages) {
		if p.audits != nil {
			if err := p.audits.LogGroupBlocked(ctx, ev.TenantID, ev.Info.RemoteJID); err != nil {
				p.logger.Warn("audit write failed for group block", "error", err, "tenant_id", ev.TenantID)
			}
		}
		p.metrics.ObserveEvent(string(kind), outcomeGroupBlocked)
		return nil
	}

	outcome, err := p.dispatch(ctx, ev, kind, st)
	if err != nil {
		return err
	}

	p.metrics.ObserveEvent(string(kind), outcome)
	p.metrics.ObserveEventLatency(string(kind), p.now().Sub(started).Seconds())
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, ev protocol.Event, kind Kind, st *settings.TenantSettings) (string, error) {
	if targetID, ok := revokeTarget(ev.Message); ok {
		return p.processRevoke(ctx, ev, targetID)
	}
	if targetID, newBody, ok := editTarget(ev.Message); ok {
		return p.processEdit(ctx, ev, targetID, newBody)
	}

	body, renderable := ExtractBody(ev.Message, kind)

	// The identifier lookup runs before the body gate: status corrections
	// for an already-stored message carry no content envelope, yet they
	// must still reach the update branch.
	existing, err := p.messages.GetByID(ctx, ev.TenantID, ev.Info.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	ack := MapAck(ev.Status, kind, ev.Info.FromMe)
	if existing != nil {
		return p.processUpdate(ctx, ev, existing, ack)
	}
	if !renderable {
		// Inert protocol noise: no record, no ticket update.
		return outcomeInert, nil
	}
	return p.processCreate(ctx, ev, kind, st, body, ack)
}

// processUpdate is the replay/ack branch: only delivery metadata changes.
// The ack never regresses, so out-of-order receipts cannot downgrade read
// state.
func (p *Pipeline) processUpdate(ctx context.Context, ev protocol.Event, existing *store.MessageRecord, ack int) (string, error) {
	if err := p.messages.UpdateDelivery(ctx, nil, ev.TenantID, ev.Info.ID, ack, ev.Info.Participant, ev.Raw); err != nil {
		return "", err
	}
	if ack > existing.Ack {
		existing.Ack = ack
	}
	if ev.Info.Participant != "" {
		existing.Participant = ev.Info.Participant
	}

	lastMessage := ""
	if existing.Body != nil {
		lastMessage = *existing.Body
	}
	if lastMessage == "" && existing.MediaPath != nil {
		lastMessage = *existing.MediaPath
	}
	if err := p.tickets.SetLastMessage(ctx, nil, ev.TenantID, existing.TicketID, lastMessage); err != nil {
		p.logger.Warn("failed to update ticket lastMessage", "error", err, "tenant_id", ev.TenantID, "ticket_id", existing.TicketID)
	}

	p.broadcaster.Broadcast(ev.TenantID, realtime.EventAppMessage, realtime.MessageEvent{
		Action:  realtime.ActionUpdate,
		Message: existing,
	})
	return outcomeUpdated, nil
}

func (p *Pipeline) processCreate(ctx context.Context, ev protocol.Event, kind Kind, st *settings.TenantSettings, body string, ack int) (string, error) {
	contact, err := p.contacts.GetOrCreateByJID(ctx, ev.TenantID, ev.Info.RemoteJID, ev.Info.PushName, ev.Info.IsGroup())
	if err != nil {
		return "", err
	}
	tkt, err := p.tickets.FindOrCreate(ctx, ev.TenantID, ev.LineID, contact.ID, ev.Info.IsGroup())
	if err != nil {
		return "", err
	}

	unlock := p.locks.Lock(tkt.ID)
	defer unlock()

	effKind, effContent := unwrapContent(ev.Message, kind)

	var mediaPath, mediaKind *string
	if effKind.IsMedia() {
		filename, downloadErr := p.acquireMedia(ctx, ev, effKind, effContent, st, &body)
		if downloadErr != nil {
			p.metrics.ObserveMediaDownload(string(effKind), "failed")
			// Media messages cannot be persisted without their payload.
			return outcomeMediaFailed, fmt.Errorf("%w: %v", ErrMediaUnavailable, downloadErr)
		}
		p.metrics.ObserveMediaDownload(string(effKind), "ok")
		mk := string(effKind)
		mediaPath = &filename
		mediaKind = &mk
	}

	var quotedID *string
	if ref := ResolveQuoted(effContent); ref != nil {
		quotedID = &ref.MessageID
	}

	rec := store.MessageRecord{
		ID:          ev.Info.ID,
		TenantID:    ev.TenantID,
		TicketID:    tkt.ID,
		ContactID:   &contact.ID,
		Body:        &body,
		Kind:        string(kind),
		FromMe:      ev.Info.FromMe,
		Read:        ev.Info.FromMe,
		Ack:         ack,
		MediaPath:   mediaPath,
		MediaKind:   mediaKind,
		QuotedMsgID: quotedID,
		RemoteJID:   ev.Info.RemoteJID,
		Participant: ev.Info.Participant,
		Raw:         ev.Raw,
	}
	if err := p.messages.Insert(ctx, nil, rec); err != nil {
		return "", err
	}

	p.applyTicketChange(ctx, ev, tkt, effKind)

	lastMessage := body
	if lastMessage == "" && mediaPath != nil {
		lastMessage = *mediaPath
	}
	if err := p.tickets.SetLastMessage(ctx, nil, ev.TenantID, tkt.ID, lastMessage); err != nil {
		p.logger.Warn("failed to update ticket lastMessage", "error", err, "tenant_id", ev.TenantID, "ticket_id", tkt.ID)
	}

	p.broadcaster.Broadcast(ev.TenantID, realtime.EventAppMessage, realtime.MessageEvent{
		Action:  realtime.ActionUpdate,
		Message: &rec,
		Ticket:  tkt,
		Contact: contact,
	})

	p.runSideEffects(ctx, ev, kind, st, tkt, contact, body)
	return outcomePersisted, nil
}

// applyTicketChange runs the state machine and announces a reopen as a
// delete/update pair so agent ticket lists re-bucket the thread.
func (p *Pipeline) applyTicketChange(ctx context.Context, ev protocol.Event, tkt *store.TicketRecord, effKind Kind) {
	change := ticket.Transition(tkt.Status, ticket.Facts{
		FromMe:  ev.Info.FromMe,
		IsMedia: effKind.IsMedia(),
	})
	if !change.Reopen {
		return
	}

	if err := p.tickets.Reopen(ctx, nil, ev.TenantID, tkt.ID, change.ClearUser); err != nil {
		p.logger.Error("failed to reopen ticket", "error", err, "tenant_id", ev.TenantID, "ticket_id", tkt.ID)
		return
	}
	tkt.Status = store.TicketPending
	if change.ClearUser {
		tkt.UserID = nil
	}
	if p.audits != nil {
		if err := p.audits.LogTicketReopened(ctx, ev.TenantID, tkt.ID, ev.Info.ID); err != nil {
			p.logger.Warn("audit write failed for ticket reopen", "error", err, "ticket_id", tkt.ID)
		}
	}

	p.broadcaster.Broadcast(ev.TenantID, realtime.EventTicket, realtime.TicketEvent{
		Action:   realtime.ActionDelete,
		TicketID: tkt.ID,
	})

	var payload any = tkt
	if change.ReloadAssociations {
		if enriched, err := p.tickets.LoadEnriched(ctx, ev.TenantID, tkt.ID); err == nil {
			payload = enriched
		} else {
			p.logger.Warn("failed to reload ticket associations", "error", err, "tenant_id", ev.TenantID, "ticket_id", tkt.ID)
		}
	}
	p.broadcaster.Broadcast(ev.TenantID, realtime.EventTicket, realtime.TicketEvent{
		Action:   realtime.ActionUpdate,
		Ticket:   payload,
		TicketID: tkt.ID,
	})
}

// acquireMedia downloads, names and stores the attachment, mutating the
// body in place for audio (filename placeholder or transcript).
func (p *Pipeline) acquireMedia(ctx context.Context, ev protocol.Event, effKind Kind, effContent *protocol.Content, st *settings.TenantSettings, body *string) (string, error) {
	if p.downloader == nil || p.writer == nil {
		return "", fmt.Errorf("ingest: media acquisition not configured")
	}
	ctx, span := pipelineTracer.Start(ctx, "ingest.acquire_media")
	defer span.End()
	span.SetAttributes(attribute.String("media.kind", string(effKind)))

	att, err := p.downloader.Download(ctx, ev.LineID, ev.Info.ID)
	if err != nil {
		return "", fmt.Errorf("ingest: download media for %s: %w", ev.Info.ID, err)
	}
	if len(att.Data) == 0 {
		return "", fmt.Errorf("ingest: empty media payload for %s", ev.Info.ID)
	}

	mimeType := att.MimeType
	original := ""
	if m := mediaEnvelope(effContent, effKind); m != nil {
		if m.MimeType != "" {
			mimeType = m.MimeType
		}
		original = m.FileName
	}

	filename := media.Filename(original, mimeType, p.now())
	if _, err := p.writer.Save(ctx, ev.TenantID, filename, att.Data); err != nil {
		return "", err
	}

	if effKind == KindAudio {
		*body = filename
		if st.TranscribeAudio && st.AIProviderKey != "" && p.transcriber != nil {
			if text, err := p.transcriber.Transcribe(ctx, att.Data, mimeType); err != nil {
				p.logger.Warn("audio transcription failed", "error", err, "tenant_id", ev.TenantID, "message_id", ev.Info.ID)
			} else if text != "" {
				*body = text
			}
		}
	}
	return filename, nil
}

// runSideEffects fires the post-persistence hooks. None of them may fail
// the already-committed message.
func (p *Pipeline) runSideEffects(ctx context.Context, ev protocol.Event, kind Kind, st *settings.TenantSettings, tkt *store.TicketRecord, contact *store.ContactRecord, body string) {
	if p.campaigns != nil {
		if ev.Info.FromMe && body != "" {
			if err := p.campaigns.HandleSelfSent(ctx, ev.TenantID, ev.Info.ID, body); err != nil {
				p.logger.Error("campaign self-sent handling failed", "error", err, "tenant_id", ev.TenantID, "message_id", ev.Info.ID)
			}
		}
		if !ev.Info.FromMe && !ev.Info.IsGroup() {
			if err := p.campaigns.HandleInboundReply(ctx, ev.TenantID, contact.Number); err != nil {
				p.logger.Error("campaign reply handling failed", "error", err, "tenant_id", ev.TenantID, "number", contact.Number)
			}
		}
	}

	if p.greetings != nil {
		p.greetings.Consider(greeting.Request{
			TenantID:      ev.TenantID,
			LineID:        ev.LineID,
			TicketID:      tkt.ID,
			TicketUserID:  tkt.UserID,
			ContactNumber: contact.Number,
			FromMe:        ev.Info.FromMe,
			IsGroup:       ev.Info.IsGroup(),
			Settings:      st,
		})
	}
}

// processEdit rewrites an existing message's body, capturing the previous
// body in the edit-history shadow first.
func (p *Pipeline) processEdit(ctx context.Context, ev protocol.Event, targetID, newBody string) (string, error) {
	existing, err := p.messages.GetByID(ctx, ev.TenantID, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("edit for unknown message dropped", "tenant_id", ev.TenantID, "message_id", targetID)
			return outcomeInert, nil
		}
		return "", err
	}

	unlock := p.locks.Lock(existing.TicketID)
	defer unlock()

	if err := p.messages.UpsertOldMessage(ctx, nil, ev.TenantID, targetID, existing.TicketID, existing.Body); err != nil {
		return "", err
	}
	if err := p.messages.ApplyEdit(ctx, nil, ev.TenantID, targetID, newBody); err != nil {
		return "", err
	}
	if p.audits != nil {
		previous := ""
		if existing.Body != nil {
			previous = *existing.Body
		}
		if err := p.audits.LogMessageEdited(ctx, ev.TenantID, existing.TicketID, targetID, previous); err != nil {
			p.logger.Warn("audit write failed for message edit", "error", err, "message_id", targetID)
		}
	}
	if err := p.tickets.SetLastMessage(ctx, nil, ev.TenantID, existing.TicketID, newBody); err != nil {
		p.logger.Warn("failed to update ticket lastMessage after edit", "error", err, "tenant_id", ev.TenantID, "ticket_id", existing.TicketID)
	}

	existing.Body = &newBody
	existing.IsEdited = true
	p.broadcaster.Broadcast(ev.TenantID, realtime.EventAppMessage, realtime.MessageEvent{
		Action:  realtime.ActionUpdate,
		Message: existing,
	})
	return outcomeEdited, nil
}

// processRevoke flags the target message deleted without removing the row.
func (p *Pipeline) processRevoke(ctx context.Context, ev protocol.Event, targetID string) (string, error) {
	existing, err := p.messages.GetByID(ctx, ev.TenantID, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcomeInert, nil
		}
		return "", err
	}

	unlock := p.locks.Lock(existing.TicketID)
	defer unlock()

	if err := p.messages.MarkRevoked(ctx, nil, ev.TenantID, targetID); err != nil {
		return "", err
	}
	if p.audits != nil {
		if err := p.audits.LogMessageRevoked(ctx, ev.TenantID, existing.TicketID, targetID); err != nil {
			p.logger.Warn("audit write failed for message revoke", "error", err, "message_id", targetID)
		}
	}
	existing.IsDeleted = true
	p.broadcaster.Broadcast(ev.TenantID, realtime.EventAppMessage, realtime.MessageEvent{
		Action:  realtime.ActionUpdate,
		Message: existing,
	})
	return outcomeRevoked, nil
}

// revokeTarget extracts the revoked message identifier, unwrapping one
// wrapper level if needed.
func revokeTarget(c *protocol.Content) (string, bool) {
	proto := protocolNotice(c)
	if proto == nil || proto.Type != protocol.ProtocolRevoke || proto.Key == nil || proto.Key.ID == "" {
		return "", false
	}
	return proto.Key.ID, true
}

// editTarget extracts the edited message identifier and replacement body.
func editTarget(c *protocol.Content) (string, string, bool) {
	proto := protocolNotice(c)
	if proto == nil || proto.Type != protocol.ProtocolMessageEdit || proto.Key == nil || proto.Key.ID == "" {
		return "", "", false
	}
	if proto.EditedMessage == nil {
		return "", "", false
	}
	body, ok := ExtractBody(proto.EditedMessage, Classify(proto.EditedMessage))
	if !ok {
		return "", "", false
	}
	return proto.Key.ID, body, true
}

func protocolNotice(c *protocol.Content) *protocol.Protocol {
	if c == nil {
		return nil
	}
	if c.Protocol != nil {
		return c.Protocol
	}
	if c.Edited != nil && c.Edited.Message != nil {
		return c.Edited.Message.Protocol
	}
	return nil
}

// unwrapContent peels wrapper kinds (view-once, ephemeral, edit) down to
// the effective content the media and quoted-context steps operate on.
func unwrapContent(c *protocol.Content, kind Kind) (Kind, *protocol.Content) {
	for {
		var inner *protocol.Content
		switch kind {
		case KindViewOnce:
			if c.ViewOnce != nil {
				inner = c.ViewOnce.Message
			}
		case KindEphemeral:
			if c.Ephemeral != nil {
				inner = c.Ephemeral.Message
			}
		case KindEdited:
			if c.Edited != nil {
				inner = c.Edited.Message
			}
		default:
			return kind, c
		}
		if inner == nil {
			return kind, c
		}
		c = inner
		kind = Classify(c)
	}
}

// mediaEnvelope returns the media sub-envelope for a media kind.
func mediaEnvelope(c *protocol.Content, kind Kind) *protocol.Media {
	if c == nil {
		return nil
	}
	switch kind {
	case KindImage:
		return c.Image
	case KindVideo:
		return c.Video
	case KindAudio:
		return c.Audio
	case KindDocument:
		return c.Document
	case KindSticker:
		return c.Sticker
	default:
		return nil
	}
}
