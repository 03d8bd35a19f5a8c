package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-bot/internal/app"
	"quiz-bot/internal/infra/postgres"
	pgmigrations "quiz-bot/internal/infra/postgres/migrations"
	infraredis "quiz-bot/internal/infra/redis"
)

var codePattern = regexp.MustCompile(`/join ([A-Z0-9]{6})`)

func TestQuizFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	store, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer store.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	quizzes := infraredis.NewQuizCache(redisClient, store, 5*time.Minute)
	drafts := infraredis.NewSessionStore[app.AuthoringSession](redisClient, "authoring", 5*time.Minute)
	runs := infraredis.NewSessionStore[app.AttemptSession](redisClient, "taking", 5*time.Minute)
	bot := app.NewBot(
		app.NewPanel(store, quizzes, app.RegistrationPolicy{Open: true}, logger),
		app.NewAuthoring(quizzes, drafts, logger),
		app.NewTaking(quizzes, store, runs, logger),
		logger,
	)

	teacher := app.User{ID: 1001, Username: "ann", FullName: "Ann Smith"}
	student := app.User{ID: 2002, Username: "bo", FullName: "Bo Lee"}
	send := func(ev app.Event) []app.Reply {
		replies := bot.Handle(ctx, ev)
		if len(replies) == 0 {
			t.Fatalf("no replies for %+v", ev)
		}
		return replies
	}

	send(app.CommandEvent(teacher, "create", ""))
	send(app.TextEvent(teacher, "Geography"))
	send(app.TextEvent(teacher, "Capitals of Europe"))
	send(app.TextEvent(teacher, "Paris is in France."))
	send(app.ActionEvent(teacher, app.Action{Kind: app.ActionQuestionType, Label: "tf"}))
	send(app.ActionEvent(teacher, app.Action{Kind: app.ActionCorrectAnswer, Label: "t"}))
	send(app.ActionEvent(teacher, app.Action{Kind: app.ActionAddAnother}))
	send(app.TextEvent(teacher, "Capital of Italy?"))
	send(app.ActionEvent(teacher, app.Action{Kind: app.ActionQuestionType, Label: "mcq"}))
	send(app.TextEvent(teacher, "Milan\nRome\nNaples"))
	send(app.ActionEvent(teacher, app.Action{Kind: app.ActionCorrectAnswer, Label: "b"}))
	published := send(app.ActionEvent(teacher, app.Action{Kind: app.ActionFinish}))

	match := codePattern.FindStringSubmatch(published[0].Text)
	if match == nil {
		t.Fatalf("expected a join code in %q", published[0].Text)
	}
	code := match[1]

	joined := send(app.CommandEvent(student, "join", strings.ToLower(code)))
	if len(joined) != 2 || !strings.Contains(joined[1].Text, "Question 1/2") {
		t.Fatalf("unexpected join replies %+v", joined)
	}
	send(app.ActionEvent(student, app.Action{Kind: app.ActionAnswer, Label: "t", Index: 0}))
	done := send(app.ActionEvent(student, app.Action{Kind: app.ActionAnswer, Label: "c", Index: 1}))
	if !strings.Contains(done[1].Text, "Score: 1/2") {
		t.Fatalf("unexpected summary %q", done[1].Text)
	}

	history := send(app.CommandEvent(student, "history", ""))
	if !strings.Contains(history[0].Text, "Geography: 1/2 (50%") {
		t.Fatalf("unexpected history %q", history[0].Text)
	}

	listed := send(app.ActionEvent(teacher, app.Action{Kind: app.ActionListQuizzes}))
	if !strings.Contains(listed[0].Text, "1 students") || !strings.Contains(listed[0].Text, "50.0%") {
		t.Fatalf("unexpected quiz list %q", listed[0].Text)
	}

	var closeAction app.Action
	for _, row := range listed[0].Keyboard {
		for _, b := range row {
			if b.Action.Kind == app.ActionCloseQuiz {
				closeAction = b.Action
			}
		}
	}
	send(app.ActionEvent(teacher, closeAction))
	rejected := send(app.CommandEvent(student, "join", code))
	if !strings.Contains(rejected[0].Text, "No active quiz") {
		t.Fatalf("expected closed quiz rejected, got %q", rejected[0].Text)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
