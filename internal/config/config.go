package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mind-engage/mindengage-training/internal/quiz"
)

// LocalUser is a bcrypt credential accepted by the local login endpoint.
type LocalUser struct {
	Username string
	Role     string
	PassHash string
}

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool
	LocalUsers      []LocalUser

	CORSOrigins []string

	MaxAttempts       int
	MaxAttemptsPerDay int
	Timezone          string
	LatePolicy        quiz.LatePolicy
	PartialMulti      bool
	SweepInterval     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL      string
	AMQPExchange string

	SeedFile string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	c := Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		AuthHMACSecret:  envOr("AUTH_HMAC_SECRET", "dev-secret-change-me"),
		EnableLocalAuth: envBool("ENABLE_LOCAL_AUTH", true),
		CORSOrigins:     csvOr("CORS_ORIGINS", "http://localhost:3000"),
		Timezone:        envOr("QUIZ_TIMEZONE", "Local"),
		LatePolicy:      quiz.LatePolicy(envOr("QUIZ_LATE_POLICY", string(quiz.LateScoreZero))),
		PartialMulti:    envBool("QUIZ_PARTIAL_MULTI", false),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		AMQPExchange:    envOr("AMQP_EXCHANGE", "training.attempts"),
		SeedFile:        os.Getenv("SEED_FILE"),
	}
	var err error
	if c.MaxAttempts, err = envInt("QUIZ_MAX_ATTEMPTS", 0); err != nil {
		return Config{}, err
	}
	if c.MaxAttemptsPerDay, err = envInt("QUIZ_MAX_ATTEMPTS_PER_DAY", 0); err != nil {
		return Config{}, err
	}
	if c.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if c.SweepInterval, err = time.ParseDuration(envOr("QUIZ_SWEEP_INTERVAL", "1m")); err != nil {
		return Config{}, fmt.Errorf("QUIZ_SWEEP_INTERVAL: %w", err)
	}
	switch c.LatePolicy {
	case quiz.LateScoreZero, quiz.LateScorePartial:
	default:
		return Config{}, fmt.Errorf("QUIZ_LATE_POLICY: unknown policy %q", c.LatePolicy)
	}
	if c.LocalUsers, err = parseLocalUsers(csvOr("LOCAL_USERS", "")); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Quiz builds the engine configuration.
func (c Config) Quiz() (quiz.Config, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return quiz.Config{}, fmt.Errorf("QUIZ_TIMEZONE: %w", err)
	}
	return quiz.Config{
		Limits:       quiz.Limits{MaxAttempts: c.MaxAttempts, MaxAttemptsPerDay: c.MaxAttemptsPerDay},
		Location:     loc,
		LatePolicy:   c.LatePolicy,
		PartialMulti: c.PartialMulti,
	}, nil
}

// parseLocalUsers reads "username:role:bcrypthash" entries.
func parseLocalUsers(entries []string) ([]LocalUser, error) {
	var out []LocalUser
	for _, e := range entries {
		parts := strings.SplitN(e, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("LOCAL_USERS: bad entry %q, want username:role:hash", e)
		}
		out = append(out, LocalUser{Username: parts[0], Role: parts[1], PassHash: parts[2]})
	}
	return out, nil
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
