package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"tempchat/internal/app/user"
	"tempchat/internal/pkg/errs"
	"tempchat/internal/pkg/logx"
)

// DefaultHistoryLimit bounds the history replayed to a new connection.
const DefaultHistoryLimit = 100

// allowedImageTypes lists the MIME types accepted for image payloads.
var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	// MinSendInterval is the per-identity flood-control window. Negative disables it.
	MinSendInterval time.Duration

	// HistoryLimit is the number of recent messages replayed on connect.
	HistoryLimit int

	// Images offloads image bytes when set. Without it images are stored inline.
	Images ImageStore
}

// Draft is an inbound create-message request.
type Draft struct {
	Content string
	Image   []byte
	TTL     TTLSpec

	// Token is the caller's idempotency token, echoed verbatim in the broadcast.
	Token string

	// ImageUndecodable marks an image payload the transport could not decode. It is
	// rejected as an invalid image once flood control has admitted the draft.
	ImageUndecodable bool
}

// Validation tags for profile fields.
const (
	nameRules  = "min=1,max=20"
	colorRules = "hexcolor"
)

// Service coordinates presence, typing, flood control and message lifecycles for the room.
type Service struct {
	store  Store
	users  user.Directory
	hub    Hub
	images ImageStore

	presence *Registry
	typing   *TypingSet
	limiter  *RateLimiter

	// roomMu orders content events against history replay: every message_created and
	// message_expired broadcast, and the admission plus history of a new connection, happen
	// under it. A newcomer therefore never sees an expiry before the history that still
	// lists the message, nor a creation the history repeats.
	roomMu sync.Mutex

	// retry holds identities whose disconnect-scoped messages could not be expired.
	retryMu sync.Mutex
	retry   map[string]struct{}

	validate     *validator.Validate
	historyLimit int
	log          zerolog.Logger
}

// NewService wires the core to its collaborators.
func NewService(store Store, users user.Directory, hub Hub, opts Options) *Service {
	interval := opts.MinSendInterval
	if interval == 0 {
		interval = DefaultMinSendInterval
	}

	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s := &Service{
		store:        store,
		users:        users,
		hub:          hub,
		images:       opts.Images,
		limiter:      NewRateLimiter(interval),
		retry:        make(map[string]struct{}),
		validate:     validator.New(),
		historyLimit: limit,
		log:          logx.Component("chat"),
	}

	s.presence = NewRegistry(func(n int) {
		hub.SendToAll(EventPresenceCount, CountPayload{N: n})
	})
	s.presence.onAdmit = hub.Admit
	s.typing = NewTypingSet(func(n int) {
		hub.SendToAll(EventTypingCount, CountPayload{N: n})
	})

	return s
}

// Connect admits handle as the live connection for identity.
//
// On rejection the connection receives connection_rejected and is closed; no registry or
// typing state is created. On success everybody receives the new presence count and the
// connection receives welcome, history and the current typing count.
//
// Admission and replay happen under roomMu, so no message_created or message_expired can
// slip between the history snapshot and the first broadcast the connection receives.
func (s *Service) Connect(ctx context.Context, identity string, handle Handle, now time.Time) (*Session, *errs.CustomError) {
	profile, err := s.users.Ensure(ctx, identity)
	if err != nil {
		s.log.Error().Err(err).Str("identity", identity).Msg("Failed to load user profile")
		return nil, s.reject(handle, errs.NewError(errs.ErrStoreUnavailable))
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	if customErr := s.presence.TryAdmit(identity, handle); customErr != nil {
		s.log.Info().Str("identity", identity).Str("handle", string(handle)).Msg("Rejected duplicate connection")
		return nil, s.reject(handle, customErr)
	}

	// The new session cannot have created anything yet, so every disconnect-scoped
	// message of identity still in the store belongs to a previous connection.
	if s.retryPending(identity) {
		s.expireDisconnected(ctx, identity)
	}

	s.hub.SendTo(handle, EventWelcome, WelcomePayload{
		Identity: profile.ID,
		Name:     profile.Name,
		Color:    profile.Color,
	})
	s.hub.SendTo(handle, EventHistory, HistoryPayload{Messages: s.history(ctx, now)})
	s.typing.Observe(func(n int) {
		s.hub.SendTo(handle, EventTypingCount, CountPayload{N: n})
	})

	s.log.Debug().Str("identity", identity).Str("handle", string(handle)).Msg("Connection admitted")
	return newSession(identity, handle), nil
}

func (s *Service) reject(handle Handle, customErr *errs.CustomError) *errs.CustomError {
	s.hub.SendTo(handle, EventConnectionRejected, RejectedPayload{Reason: customErr.Message})
	s.hub.Close(handle, customErr.Message)
	return customErr
}

func (s *Service) history(ctx context.Context, now time.Time) []MessagePayload {
	msgs, err := s.store.QueryRecentLive(ctx, now, s.historyLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load message history")
		return []MessagePayload{}
	}

	authors := s.authors(ctx, lo.Uniq(lo.Map(msgs, func(m Message, _ int) string { return m.AuthorID })))

	return lo.Map(msgs, func(m Message, _ int) MessagePayload {
		payload := newMessagePayload(m, authors[m.AuthorID], "")
		// History never inlines image bytes; clients fetch them by URL.
		payload.Image = nil
		return payload
	})
}

// authors resolves display profiles. Unknown ids fall back to a bare author block.
func (s *Service) authors(ctx context.Context, ids []string) map[string]user.User {
	out := make(map[string]user.User, len(ids))
	for _, id := range ids {
		u, err := s.users.Get(ctx, id)
		if err != nil {
			u = user.User{ID: id, Name: id}
		}
		out[id] = u
	}

	return out
}

// Disconnect ends sess. The presence entry is released (only if it still belongs to this
// handle), the typing entry cleared, and then every on-disconnect message of the identity
// is deleted and announced. Calling it twice is a no-op.
func (s *Service) Disconnect(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	sess.mu.Unlock()

	log := s.log.With().Str("identity", sess.Identity).Str("handle", string(sess.Handle)).Logger()

	// Collected while the handle is still registered: no other connection of this
	// identity can add on-disconnect messages until Release below.
	var pending []Message
	holds := s.presence.Holds(sess.Identity, sess.Handle)
	if holds {
		msgs, err := s.store.QueryByAuthorAndMode(ctx, sess.Identity, ExpireOnDisconnect)
		if err != nil {
			log.Error().Err(err).Msg("Failed to query disconnect-scoped messages, retrying on sweep")
			s.markRetry(sess.Identity)
			holds = false
		}
		pending = msgs
	}

	released := s.presence.Release(sess.Identity, sess.Handle)
	s.typing.ClearOnDisconnect(sess.Handle)

	if !released || !holds {
		return
	}

	n, err := s.purge(ctx, pending)
	if err != nil {
		log.Error().Err(err).Int("pending", len(pending)).Msg("Failed to expire disconnect-scoped messages, retrying on sweep")
		s.markRetry(sess.Identity)
		return
	}
	s.clearRetry(sess.Identity)

	log.Debug().Int("expired", n).Msg("Connection released")
}

// CreateMessage validates, persists and broadcasts a message from sess.
//
// Checks run in order: session open, flood control, size limits, non-empty content, image
// type. A rejected draft never reaches the store. A store failure is reported to the
// caller and nothing is broadcast.
func (s *Service) CreateMessage(ctx context.Context, sess *Session, draft Draft, now time.Time) (Message, *errs.CustomError) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return Message{}, errs.NewError(errs.ErrSessionClosed)
	}

	if !s.limiter.Allow(sess.Identity, now) {
		return Message{}, errs.NewError(errs.ErrRateLimitExceeded)
	}

	if utf8.RuneCountInString(draft.Content) > MaxContentChars {
		return Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}
	if len(draft.Image) > MaxImageBytes {
		return Message{}, errs.NewError(errs.ErrImageTooLarge)
	}
	if draft.ImageUndecodable {
		return Message{}, errs.NewError(errs.ErrImageTypeInvalid)
	}

	if strings.TrimSpace(draft.Content) == "" && len(draft.Image) == 0 {
		return Message{}, errs.NewError(errs.ErrMessageEmpty)
	}

	msg := Message{
		AuthorID:  sess.Identity,
		Content:   draft.Content,
		CreatedAt: now,
	}
	msg.ExpiresAt, msg.ExpireOnDisconnect = draft.TTL.Resolve(now)

	if len(draft.Image) > 0 {
		mtype := mimetype.Detect(draft.Image)
		if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
			return Message{}, errs.NewError(errs.ErrImageTypeInvalid)
		}
		msg.ImageType = mtype.String()

		if s.images != nil {
			key := "images/" + uuid.NewString() + mtype.Extension()
			if err := s.images.Put(ctx, key, msg.ImageType, draft.Image); err != nil {
				s.log.Error().Err(err).Str("key", key).Msg("Failed to upload image")
				return Message{}, errs.NewError(errs.ErrImageStorageFailed)
			}
			msg.ImageKey = key
		} else {
			msg.Image = draft.Image
		}
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	saved, err := s.store.Insert(ctx, msg)
	if err != nil {
		s.log.Error().Err(err).Str("identity", sess.Identity).Msg("Failed to persist message")
		if msg.ImageKey != "" {
			s.deleteImage(ctx, msg.ImageKey)
		}
		return Message{}, errs.NewError(errs.ErrStoreUnavailable)
	}

	author, err := s.users.Get(ctx, sess.Identity)
	if err != nil {
		author = user.User{ID: sess.Identity, Name: sess.Identity}
	}

	payload := newMessagePayload(saved, author, draft.Token)
	if saved.ImageKey != "" {
		// Offloaded bytes are served through the image URL only.
		payload.Image = nil
	}
	s.hub.SendToAll(EventMessageCreated, payload)

	return saved, nil
}

// DeleteMessage removes a live message on behalf of its author and announces the removal.
func (s *Service) DeleteMessage(ctx context.Context, identity string, id int64, now time.Time) *errs.CustomError {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.NewError(errs.ErrMessageNotFound)
		}
		s.log.Error().Err(err).Int64("message_id", id).Msg("Failed to load message")
		return errs.NewError(errs.ErrStoreUnavailable)
	}

	if !msg.IsLive(now) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if msg.AuthorID != identity {
		return errs.NewError(errs.ErrDeleteForbidden)
	}

	n, err := s.purge(ctx, []Message{msg})
	if err != nil {
		s.log.Error().Err(err).Int64("message_id", id).Msg("Failed to delete message")
		return errs.NewError(errs.ErrStoreUnavailable)
	}
	if n == 0 {
		// Lost the race against the sweeper or a disconnect.
		return errs.NewError(errs.ErrMessageNotFound)
	}

	return nil
}

// SetTyping records whether sess is typing. It is ignored once the session is closed.
func (s *Service) SetTyping(sess *Session, typing bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return
	}

	if typing {
		s.typing.SetTyping(sess.Handle)
	} else {
		s.typing.ClearTyping(sess.Handle)
	}
}

// UpdateProfile changes the display name and/or color of identity and broadcasts the result.
// Names are trimmed; both fields nil is rejected.
func (s *Service) UpdateProfile(ctx context.Context, identity string, name, color *string) (user.User, *errs.CustomError) {
	if name == nil && color == nil {
		return user.User{}, errs.NewError(errs.ErrInvalidProfile)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if err := s.validate.Var(trimmed, nameRules); err != nil {
			return user.User{}, errs.NewError(errs.ErrInvalidProfile)
		}
		name = &trimmed
	}

	if color != nil {
		if err := s.validate.Var(*color, colorRules); err != nil {
			return user.User{}, errs.NewError(errs.ErrInvalidProfile)
		}
	}

	if _, err := s.users.Ensure(ctx, identity); err != nil {
		s.log.Error().Err(err).Str("identity", identity).Msg("Failed to load user profile")
		return user.User{}, errs.NewError(errs.ErrStoreUnavailable)
	}

	updated, err := s.users.UpdateProfile(ctx, identity, name, color)
	if err != nil {
		s.log.Error().Err(err).Str("identity", identity).Msg("Failed to update user profile")
		return user.User{}, errs.NewError(errs.ErrStoreUnavailable)
	}

	s.hub.SendToAll(EventProfileUpdated, ProfilePayload{
		Identity: updated.ID,
		Name:     updated.Name,
		Color:    updated.Color,
	})

	return updated, nil
}

// Profile returns the directory entry of identity, creating it on first sight.
func (s *Service) Profile(ctx context.Context, identity string) (user.User, *errs.CustomError) {
	u, err := s.users.Ensure(ctx, identity)
	if err != nil {
		s.log.Error().Err(err).Str("identity", identity).Msg("Failed to load user profile")
		return user.User{}, errs.NewError(errs.ErrStoreUnavailable)
	}

	return u, nil
}

// LiveImage returns the message carrying image id while it is live.
func (s *Service) LiveImage(ctx context.Context, id int64, now time.Time) (Message, *errs.CustomError) {
	msg, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, errs.NewError(errs.ErrMessageNotFound)
		}
		return Message{}, errs.NewError(errs.ErrStoreUnavailable)
	}

	if !msg.IsLive(now) || !msg.HasImage() {
		return Message{}, errs.NewError(errs.ErrMessageNotFound)
	}

	return msg, nil
}

// Sweep deletes every message whose absolute expiry is due at now and announces each
// deleted id once. It returns the number of messages removed.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.QueryDueExpirations(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("query due expirations: %w", err)
	}

	return s.purge(ctx, due)
}

// PurgeOrphaned removes on-disconnect messages left behind by connections that never got
// to disconnect, such as those alive when the process last stopped. Call it before
// accepting connections.
func (s *Service) PurgeOrphaned(ctx context.Context) (int, error) {
	orphans, err := s.store.QueryByMode(ctx, ExpireOnDisconnect)
	if err != nil {
		return 0, fmt.Errorf("query orphaned messages: %w", err)
	}

	return s.purge(ctx, orphans)
}

// RetryDisconnects expires the disconnect-scoped messages of identities whose earlier
// disconnect hit a store failure. Identities that have reconnected are skipped; their
// next disconnect or admission takes care of them. It returns the number of messages removed.
func (s *Service) RetryDisconnects(ctx context.Context) int {
	s.retryMu.Lock()
	identities := lo.Keys(s.retry)
	s.retryMu.Unlock()

	if len(identities) == 0 {
		return 0
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	total := 0
	for _, identity := range identities {
		// Admission takes roomMu, so the identity cannot reconnect and create
		// messages while it is being cleaned up.
		if s.presence.Contains(identity) {
			continue
		}
		total += s.expireDisconnected(ctx, identity)
	}

	return total
}

// expireDisconnected purges every disconnect-scoped message of identity and clears its
// retry mark on success. roomMu must be held.
func (s *Service) expireDisconnected(ctx context.Context, identity string) int {
	log := s.log.With().Str("identity", identity).Logger()

	msgs, err := s.store.QueryByAuthorAndMode(ctx, identity, ExpireOnDisconnect)
	if err != nil {
		log.Error().Err(err).Msg("Retry of disconnect-scoped expiry failed")
		return 0
	}

	n, err := s.purgeLocked(ctx, msgs)
	if err != nil {
		log.Error().Err(err).Msg("Retry of disconnect-scoped expiry failed")
		return 0
	}

	s.clearRetry(identity)
	log.Info().Int("expired", n).Msg("Expired disconnect-scoped messages after retry")
	return n
}

func (s *Service) markRetry(identity string) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	s.retry[identity] = struct{}{}
}

func (s *Service) clearRetry(identity string) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	delete(s.retry, identity)
}

func (s *Service) retryPending(identity string) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	_, ok := s.retry[identity]
	return ok
}

// purge is the single delete-then-broadcast path. The store reports which ids this call
// actually removed, and only those are announced.
func (s *Service) purge(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	s.roomMu.Lock()
	defer s.roomMu.Unlock()

	return s.purgeLocked(ctx, msgs)
}

func (s *Service) purgeLocked(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	ids := lo.Map(msgs, func(m Message, _ int) int64 { return m.ID })
	deleted, err := s.store.DeleteBatch(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}

	for _, id := range deleted {
		s.hub.SendToAll(EventMessageExpired, ExpiredPayload{ID: id})
	}

	byID := lo.KeyBy(msgs, func(m Message) int64 { return m.ID })
	for _, id := range deleted {
		if key := byID[id].ImageKey; key != "" {
			s.deleteImage(ctx, key)
		}
	}

	return len(deleted), nil
}

func (s *Service) deleteImage(ctx context.Context, key string) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to delete image object")
	}
}

// PresenceCount returns the number of admitted connections.
func (s *Service) PresenceCount() int {
	return s.presence.Len()
}

// TypingCount returns the number of typing connections.
func (s *Service) TypingCount() int {
	return s.typing.Len()
}

// pruneLimiter drops flood-control state that no longer constrains anybody.
func (s *Service) pruneLimiter(now time.Time) int {
	return s.limiter.Prune(now)
}
