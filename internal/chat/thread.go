package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/recording"
)

// Option configures a Thread.
type Option func(*Thread)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Thread) { t.logger = l }
}

// WithClock sets the clock used for SentAt.
func WithClock(c clockwork.Clock) Option {
	return func(t *Thread) { t.clock = c }
}

// WithPublisher adds a publisher. A failing publisher fails the send.
func WithPublisher(p Publisher) Option {
	return func(t *Thread) { t.publishers = append(t.publishers, p) }
}

// WithTranscriber enables transcripts. Failures are logged and the message
// is sent without one.
func WithTranscriber(tr Transcriber) Option {
	return func(t *Thread) { t.transcriber = tr }
}

// WithTranslator translates transcripts into lang.
func WithTranslator(tr Translator, lang string) Option {
	return func(t *Thread) {
		t.translator = tr
		t.translateTo = lang
	}
}

// OnMessage registers a callback for every stored message.
func OnMessage(fn func(*Message)) Option {
	return func(t *Thread) { t.onMessage = fn }
}

// Thread is a conversation's message list. It implements recording.Sink.
type Thread struct {
	id          string
	blobs       Blobs
	store       Store
	clock       clockwork.Clock
	logger      *zap.Logger
	publishers  []Publisher
	transcriber Transcriber
	translator  Translator
	translateTo string
	onMessage   func(*Message)
}

var _ recording.Sink = (*Thread)(nil)

// NewThread returns the thread id backed by store. Audio of incoming
// assets is read from blobs and the blob released once the message is
// stored; stored audio is served from the store afterwards.
func NewThread(id string, blobs Blobs, store Store, opts ...Option) *Thread {
	t := &Thread{id: id, blobs: blobs, store: store}
	for _, opt := range opts {
		opt(t)
	}
	if t.clock == nil {
		t.clock = clockwork.NewRealClock()
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	t.logger = t.logger.With(zap.String("thread", id))
	return t
}

// ID returns the thread ID.
func (t *Thread) ID() string { return t.id }

// Send appends the asset to the thread. The message is only stored once
// every publisher accepted it, so a failed send can be retried; the asset
// stays live until then.
func (t *Thread) Send(ctx context.Context, asset recording.Asset) error {
	_, err := t.Post(ctx, asset)
	return err
}

// Post is Send returning the stored message.
func (t *Thread) Post(ctx context.Context, asset recording.Asset) (*Message, error) {
	b, err := t.blobs.Get(asset.Ref)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", asset.Ref, err)
	}
	m := &Message{
		ID:              uuid.NewString(),
		Thread:          t.id,
		Ref:             asset.Ref,
		DurationSeconds: asset.DurationSeconds,
		MIMEType:        b.MIMEType,
		Size:            len(b.Data),
		Audio:           b.Data,
		SentAt:          t.clock.Now(),
	}

	t.transcribe(ctx, m)

	for _, p := range t.publishers {
		postID, err := p.Publish(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("publish: %w", err)
		}
		m.PostID = postID
	}

	if err := t.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	t.blobs.Revoke(asset.Ref)
	t.logger.Info("message stored",
		zap.String("id", m.ID),
		zap.Int("duration_seconds", m.DurationSeconds),
		zap.Int("bytes", m.Size))
	if t.onMessage != nil {
		t.onMessage(m)
	}
	return m, nil
}

func (t *Thread) transcribe(ctx context.Context, m *Message) {
	if t.transcriber == nil {
		return
	}
	text, err := t.transcriber.Transcribe(ctx, m.Audio, m.MIMEType)
	if err != nil {
		t.logger.Warn("transcription failed", zap.String("id", m.ID), zap.Error(err))
		return
	}
	m.Transcript = text
	if t.translator == nil || t.translateTo == "" || text == "" {
		return
	}
	translated, err := t.translator.Translate(ctx, text, t.translateTo)
	if err != nil {
		t.logger.Warn("translation failed", zap.String("id", m.ID), zap.Error(err))
		return
	}
	m.Translation = translated
}

// Messages returns the newest limit messages, oldest first.
func (t *Thread) Messages(ctx context.Context, limit int) ([]*Message, error) {
	msgs, err := t.store.List(ctx, t.id, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Message returns a stored message by ID.
func (t *Thread) Message(ctx context.Context, id string) (*Message, error) {
	m, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	if m.Thread != t.id {
		return nil, fmt.Errorf("get message %s: %w", id, ErrNotFound)
	}
	return m, nil
}
