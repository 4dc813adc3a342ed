// Package publish mirrors voice messages to external chat services.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/chat"
)

// PostType is the Mattermost post type rendered as a voice message player.
const PostType = "custom_voice_message"

// Props carried by voice message posts.
const (
	PropDuration = "voice_duration"
	PropMIMEType = "voice_mime_type"
)

// mattermostAPI is the part of model.Client4 Mattermost uses.
type mattermostAPI interface {
	UploadFile(ctx context.Context, data []byte, channelID, filename string) (*model.FileUploadResponse, *model.Response, error)
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, *model.Response, error)
}

// Mattermost uploads voice messages to a channel: the audio file first, then
// a post referencing it.
type Mattermost struct {
	api       mattermostAPI
	channelID string
	rootID    string
	logger    *zap.Logger
}

// MattermostOption configures Mattermost.
type MattermostOption func(*Mattermost)

// WithRootID posts every message as a reply in the thread rootID.
func WithRootID(rootID string) MattermostOption {
	return func(m *Mattermost) { m.rootID = rootID }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) MattermostOption {
	return func(m *Mattermost) { m.logger = l }
}

// NewMattermost returns a publisher posting to channelID on serverURL with
// a personal access token.
func NewMattermost(serverURL, token, channelID string, opts ...MattermostOption) *Mattermost {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return newMattermost(client, channelID, opts...)
}

func newMattermost(api mattermostAPI, channelID string, opts ...MattermostOption) *Mattermost {
	m := &Mattermost{api: api, channelID: channelID}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

var _ chat.Publisher = (*Mattermost)(nil)

// Publish implements chat.Publisher.
func (m *Mattermost) Publish(ctx context.Context, msg *chat.Message) (string, error) {
	filename := fmt.Sprintf("voice_%s%s", msg.SentAt.UTC().Format("20060102_150405"), extForContentType(msg.MIMEType))
	upload, _, err := m.api.UploadFile(ctx, msg.Audio, m.channelID, filename)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	if upload == nil || len(upload.FileInfos) == 0 {
		return "", fmt.Errorf("upload %s: no file info returned", filename)
	}

	message := msg.Transcript
	if msg.Translation != "" {
		message = msg.Translation
	}
	post := &model.Post{
		ChannelId: m.channelID,
		RootId:    m.rootID,
		Message:   message,
		FileIds:   []string{upload.FileInfos[0].Id},
		Type:      PostType,
		Props: model.StringInterface{
			PropDuration: strconv.Itoa(msg.DurationSeconds),
			PropMIMEType: msg.MIMEType,
		},
	}
	created, _, err := m.api.CreatePost(ctx, post)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	m.logger.Info("posted voice message",
		zap.String("post_id", created.Id),
		zap.String("channel_id", m.channelID),
		zap.String("file_id", upload.FileInfos[0].Id))
	return created.Id, nil
}

func extForContentType(ct string) string {
	switch {
	case strings.HasPrefix(ct, "audio/wav"), strings.HasPrefix(ct, "audio/x-wav"):
		return ".wav"
	case strings.HasPrefix(ct, "audio/webm"):
		return ".webm"
	default:
		return ".ogg"
	}
}
