package cli

import (
	"fmt"

	"github.com/rubiojr/lunarvox/config"
	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/capture"
	"github.com/rubiojr/lunarvox/internal/capture/malgomic"
	"github.com/rubiojr/lunarvox/internal/capture/portaudiomic"
	"github.com/rubiojr/lunarvox/internal/capture/synthetic"
	"github.com/rubiojr/lunarvox/internal/chat"
	"github.com/rubiojr/lunarvox/internal/publish"
	"github.com/rubiojr/lunarvox/internal/recording"
	"github.com/rubiojr/lunarvox/internal/store"
	"github.com/rubiojr/lunarvox/internal/transcribe"
)

func newMicrophone(cfg *config.Config) (capture.Microphone, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return portaudiomic.New(cfg.SampleRate, cfg.ChunkSize), nil
	case config.BackendMalgo:
		return malgomic.New(cfg.SampleRate, cfg.ChunkSize), nil
	case config.BackendSynthetic:
		mic := synthetic.New()
		mic.SampleRate = cfg.SampleRate
		mic.ChunkSize = cfg.ChunkSize
		mic.Period = 0
		return mic, nil
	}
	return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
}

func encoder(cfg *config.Config) (audio.Encoder, error) {
	format, err := audio.ParseFormat(cfg.Format)
	if err != nil {
		return audio.Encoder{}, err
	}
	return audio.Encoder{Format: format, Bitrate: cfg.Bitrate, Normalize: cfg.Normalize}, nil
}

func controllerOptions(deps *Dependencies) ([]recording.Option, error) {
	cfg := deps.Config
	enc, err := encoder(cfg)
	if err != nil {
		return nil, err
	}
	return []recording.Option{
		recording.WithLogger(deps.Logger),
		recording.WithEncoder(enc),
		recording.WithBars(cfg.Bars),
		recording.WithSampleInterval(cfg.SampleInterval),
		recording.WithTickInterval(cfg.TickInterval),
	}, nil
}

// openStore opens the SQLite database, or an in-memory store when no
// database is configured.
func openStore(cfg *config.Config) (chat.Store, error) {
	if cfg.DatabasePath == "" {
		return store.NewMemory(), nil
	}
	db, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newThread wires the configured thread with its optional transcriber,
// translator and Mattermost mirror.
func newThread(deps *Dependencies, st chat.Store, opts ...chat.Option) *chat.Thread {
	cfg := deps.Config
	all := []chat.Option{chat.WithLogger(deps.Logger)}

	if cfg.Transcribe.Enabled() {
		tr := transcribe.New(cfg.Transcribe.URL,
			transcribe.WithToken(cfg.Transcribe.Token),
			transcribe.WithLang(cfg.Transcribe.Lang),
			transcribe.WithLogger(deps.Logger))
		all = append(all, chat.WithTranscriber(tr))

		if cfg.Translate.Enabled() {
			ollama := transcribe.NewOllama(cfg.Translate.Model, transcribe.WithOllamaHost(cfg.Translate.OllamaHost))
			all = append(all, chat.WithTranslator(ollama, cfg.Translate.Lang))
		}
	}

	if cfg.Mattermost.Enabled() {
		mm := publish.NewMattermost(cfg.Mattermost.URL, cfg.Mattermost.Token, cfg.Mattermost.ChannelID,
			publish.WithRootID(cfg.Mattermost.RootID),
			publish.WithLogger(deps.Logger))
		all = append(all, chat.WithPublisher(mm))
	}

	return chat.NewThread(cfg.Thread, deps.Blobs, st, append(all, opts...)...)
}
