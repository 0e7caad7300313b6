package middleware

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/pkg/approval"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

type AppUser struct {
	UserID int64
	Role   string
}

// ChatGate handles one chat message, either a turn or an approve command.
type ChatGate interface {
	HandleMessage(ctx context.Context, chat common.Chat, userID int64, content string) (approval.Reply, error)
}

// Ingester creates documents and runs them through extraction.
type Ingester interface {
	IngestText(ctx context.Context, in ingest.TextInput) (ingest.Outcome, error)
	IngestWeb(ctx context.Context, in ingest.WebInput) (ingest.Outcome, error)
	IngestPDF(ctx context.Context, in ingest.PDFInput) (ingest.Outcome, error)
	FoldWebResults(ctx context.Context, projectID int64, userID int64, results []common.WebSearchOutput) (common.Graph, error)
}

// DownloadLinker signs download links for stored files.
type DownloadLinker interface {
	DownloadLink(ctx context.Context, key string) (string, error)
}

type App struct {
	Store    store.Storage
	Gate     ChatGate
	Ingest   Ingester
	Files    DownloadLinker
	Keyfunc  jwt.Keyfunc
	MaxPDFMB int64

	MasterAPIKey string
	MasterUserID int64
}

type AppContext struct {
	echo.Context
	App     *App
	User    *AppUser
	Project *common.Project
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{Context: c, App: app}
			return next(cc)
		}
	}
}
