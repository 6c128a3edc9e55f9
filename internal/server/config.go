package server

import (
	"github.com/raysh454/stagecheck/internal/app"
	"github.com/raysh454/stagecheck/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	AppConfig *app.Config
	Logger    logging.Logger

	// Components replaces the ones NewServer would build from AppConfig.
	// The server does not close injected components.
	Components *app.Components

	// MaxUploadBytes caps a sheet upload (default 32 MiB).
	MaxUploadBytes int64
}
