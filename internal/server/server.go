package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/internal/events"
	"github.com/OFFIS-RIT/kiwi-research/internal/metrics"
	mid "github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/internal/storage"
	"github.com/OFFIS-RIT/kiwi-research/internal/util"
	"github.com/OFFIS-RIT/kiwi-research/pkg/agent"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	gai "github.com/OFFIS-RIT/kiwi-research/pkg/ai/openai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/approval"
	"github.com/OFFIS-RIT/kiwi-research/pkg/ingest"
	"github.com/OFFIS-RIT/kiwi-research/pkg/loader"
	"github.com/OFFIS-RIT/kiwi-research/pkg/loader/pdf"
	webloader "github.com/OFFIS-RIT/kiwi-research/pkg/loader/web"
	"github.com/OFFIS-RIT/kiwi-research/pkg/leaselock"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/search"
	pgxstore "github.com/OFFIS-RIT/kiwi-research/pkg/store/pgx"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEcho builds the HTTP server around app without starting it.
func NewEcho(app *mid.App, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.FormatInt(max(app.MaxPDFMB, 1)+1, 10) + "M"))

	RegisterRoutes(e, gatherer)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &mid.App{
		MaxPDFMB:     int64(util.GetEnvNumeric("MAX_PDF_MB", 50)),
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}
	app.MasterUserID, _ = strconv.ParseInt(util.GetEnv("MASTER_USER_ID"), 10, 64)

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	} else {
		logger.Warn("[Server] AUTH_URL not set, only the master API key is accepted")
	}

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()
	db := pgxstore.NewDBStorageWithConnection(conn)
	app.Store = db

	var publisher agent.EventPublisher
	if util.GetEnv("RABBITMQ_HOST") != "" {
		que, err := events.Dial()
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer que.Close()
		p, err := events.NewPublisher(que)
		if err != nil {
			logger.Fatal("Failed to set up event publisher", "err", err)
		}
		defer p.Close()
		publisher = p
	}

	var files ingest.FileStore
	if bucket := util.GetEnv("AWS_BUCKET"); bucket != "" {
		s3, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		fs := storage.NewFileStore(s3, bucket, util.GetEnv("AWS_PUBLIC_ENDPOINT"))
		files = fs
		app.Files = fs
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	aiClient := gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
		ChatModel:   util.GetEnvString("AI_CHAT_MODEL", "gpt-4o"),
		ChatURL:     util.GetEnv("AI_CHAT_URL"),
		ChatKey:     util.GetEnv("AI_CHAT_KEY"),
		Temperature: util.GetEnvNumeric("AI_TEMPERATURE", 0),
		Thinking:    util.GetEnv("AI_THINKING"),
	})

	var searcher search.WebSearcher
	if key := util.GetEnv("TAVILY_API_KEY"); key != "" {
		searcher = search.NewTavilySearcher(search.NewTavilySearcherParams{
			APIKey:  key,
			BaseURL: util.GetEnv("TAVILY_URL"),
		})
	} else {
		logger.Warn("[Server] TAVILY_API_KEY not set, web search is disabled")
	}

	pdfExtractor := pdf.NewExtractor(util.GetEnvDuration("PDF_TIMEOUT_SECONDS", time.Minute))
	scraper := webloader.NewScraper(webloader.NewScraperParams{
		Timeout: util.GetEnvDuration("SCRAPE_TIMEOUT_SECONDS", 20*time.Second),
		Fallbacks: map[string]loader.TextExtractor{
			"application/pdf": pdfExtractor,
		},
	})

	orchestrator := agent.NewOrchestrator(agent.NewOrchestratorParams{
		Client:            aiClient,
		Searcher:          searcher,
		Graphs:            db,
		Events:            publisher,
		Metrics:           m,
		MaxDocumentTokens: int(util.GetEnvNumeric("AI_MAX_DOCUMENT_TOKENS", 12000)),
		Options: []ai.GenerateOption{
			ai.WithMaxToolRounds(int(util.GetEnvNumeric("AI_MAX_TOOL_ROUNDS", agent.DefaultMaxToolRounds))),
		},
	})
	ingestService := ingest.NewService(ingest.NewServiceParams{
		Documents: db,
		Graphs:    db,
		Runner:    orchestrator,
		Scraper:   scraper,
		PDF:       pdfExtractor,
		Files:     files,
		Events:    publisher,
		Metrics:   m,
	})
	app.Ingest = ingestService
	app.Gate = approval.NewGate(approval.NewGateParams{
		Runner:    orchestrator,
		Links:     ingestService,
		Chats:     db,
		Approvals: db,
		Metrics:   m,
		Locker:    leaselock.New(conn),
	})

	e := NewEcho(app, prometheus.DefaultGatherer)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
