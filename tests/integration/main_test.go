//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bissquit/message-garden/internal/app"
	"github.com/bissquit/message-garden/internal/config"
	"github.com/bissquit/message-garden/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	testServer *httptest.Server
	testApp    *app.App
	testDB     *pgxpool.Pool

	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	redisContainer, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("terminate redis: %v", err)
		}
	}()

	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()

	mailpitClient = NewMailpitClient(mailpitContainer.APIHost, mailpitContainer.APIPort)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.MigrationsPath = "../../migrations"
	cfg.Redis.URL = redisContainer.ConnectionString
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	// Cycles are driven manually through testApp.Processor() so tests
	// never race the background ticker.
	cfg.Queue.ProcessInterval = time.Hour
	// The runner is off for the same reason; reminder tests hit the
	// schedule/process endpoints directly.
	cfg.Reminders.Enabled = false
	cfg.Senders.Email.Enabled = true
	cfg.Senders.Email.SMTPHost = mailpitContainer.SMTPHost
	cfg.Senders.Email.SMTPPort = mailpitContainer.SMTPPort
	cfg.Senders.Email.FromAddress = "Message Garden <noreply@test.local>"

	testApp, err = app.New(cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Direct DB access for seeding directory and form-access rows the
	// service itself only reads.
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
