package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/neighbor-group/internal/api"
	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository"
	"github.com/dom/neighbor-group/internal/repository/gormrepo"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/dom/neighbor-group/internal/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated database for one test.
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	Driver    string
	DSN       string
}

// NewTestDB opens a private in-memory sqlite database.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gormrepo.Open(config.DriverSQLite, dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := gormrepo.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{DB: db, Driver: config.DriverSQLite, DSN: dsn}
	t.Cleanup(func() {
		testDB.Cleanup()
	})
	return testDB
}

// NewPostgresTestDB starts a PostgreSQL testcontainer. It is skipped in
// -short mode.
func NewPostgresTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_neighbor_group"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gormrepo.Open(config.DriverPostgres, dsn, logger.Default.LogMode(logger.Silent))
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := gormrepo.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		Driver:    config.DriverPostgres,
		DSN:       dsn,
	}
	t.Cleanup(func() {
		testDB.Cleanup()
	})
	return testDB
}

// Cleanup closes the connection and terminates any container.
func (tdb *TestDB) Cleanup() {
	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"messages",
		"group_members",
		"groups",
		"password_resets",
		"auth_logs",
		"user_sessions",
		"options",
		"users",
	}

	for _, table := range tables {
		stmt := "DELETE FROM ?"
		if tdb.Driver == config.DriverPostgres {
			stmt = "TRUNCATE TABLE ? CASCADE"
		}
		if err := tdb.DB.Exec(stmt, clause.Table{Name: table}).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// NewRepositories wraps db in the gorm repositories.
func (tdb *TestDB) NewRepositories() *repository.Repositories {
	return gormrepo.NewRepositories(tdb.DB)
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Host:             "127.0.0.1",
		Port:             "0",
		Environment:      "test",
		SiteTitle:        "neighbor.group",
		Database:         ":memory:",
		SessionKey:       "test-session-key-for-testing-only-0123456789",
		SessionTTL:       time.Hour,
		SessionPruneSpec: "@hourly",
		LogLevel:         "error",
		LogFormat:        "text",
		MetricsEnabled:   true,
	}
}

// SentMail is one message captured by MailRecorder.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// MailRecorder is a mailer that keeps what it sends.
type MailRecorder struct {
	mu   sync.Mutex
	sent []SentMail
	err  error
}

// Fail makes every later send return err; nil restores delivery.
func (m *MailRecorder) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MailRecorder) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *MailRecorder) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// LastCode returns the reset code from the most recent message.
func (m *MailRecorder) LastCode(t *testing.T) string {
	t.Helper()

	sent := m.Sent()
	if len(sent) == 0 {
		t.Fatal("no mail sent")
	}
	body := sent[len(sent)-1].Body
	i := strings.LastIndex(body, ": ")
	if i < 0 {
		t.Fatalf("no code in mail body %q", body)
	}
	return strings.TrimSpace(body[i+2:])
}

// NewTestServices wires the service layer against db.
func NewTestServices(t *testing.T, db *TestDB, mailer *MailRecorder) (*service.Services, *repository.Repositories) {
	t.Helper()

	cfg := TestConfig()
	repos := db.NewRepositories()
	services := service.NewServices(repos, cfg, []byte(cfg.SessionKey), mailer, nil, observability.NewDiscardLogger())
	return services, repos
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Metrics  *observability.Metrics
	Mail     *MailRecorder
	Config   *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewTestServerWithConfig(t, TestConfig())
}

// NewTestServerWithConfig is NewTestServer with a caller-supplied config.
func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	log := observability.NewDiscardLogger()
	mailer := &MailRecorder{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	repos := testDB.NewRepositories()
	hub := websocket.NewHub(log)
	go hub.Run()

	services := service.NewServices(repos, cfg, []byte(cfg.SessionKey), mailer, metrics, log)
	router := api.NewRouter(services, hub, metrics, cfg, log)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Metrics:  metrics,
		Mail:     mailer,
		Config:   cfg,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns a group's live feed URL
func (ts *TestServer) WebSocketURL(slug string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/api/v1/groups/%s/ws", wsURL, slug)
}

// SessionHeader carries token on a websocket handshake.
func SessionHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

// Client returns an HTTP client that does not follow redirects.
func (ts *TestServer) Client() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
