package config

import (
	"log/slog"

	"github.com/jpalmerr/watchboard"
)

// BuildOptions converts parsed configuration into SDK options.
//
// logger, if non-nil, is passed through with [watchboard.WithLogger].
func BuildOptions(cfg *Config, logger *slog.Logger) []watchboard.Option {
	opts := []watchboard.Option{
		watchboard.WithServiceURL(cfg.ServiceURL),
		watchboard.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		watchboard.WithMaxConcurrency(cfg.MaxConcurrency),
	}

	if cfg.Title != "" {
		opts = append(opts, watchboard.WithTitle(cfg.Title))
	}

	switch cfg.Push.Transport {
	case TransportWebSocket:
		opts = append(opts, watchboard.WithPushWebSocket(cfg.Push.URL))
	case TransportNATS:
		opts = append(opts, watchboard.WithPushNATS(cfg.Push.URL, cfg.Push.Subject))
	}
	if cfg.Push.Transport != TransportNone {
		opts = append(opts, watchboard.WithReconnectDelay(cfg.Push.ReconnectDelay.Duration()))
	}

	if cfg.Mirror.Enabled {
		opts = append(opts, watchboard.WithMirror(cfg.Mirror.Port))
	}

	if logger != nil {
		opts = append(opts, watchboard.WithLogger(logger))
	}

	return opts
}
