package config

import (
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Server configures the reference board service.
type Server struct {
	ListenAddr string
	RedisConn  string
	DeduperTTL time.Duration

	AuthTestMode  bool
	TestJWTSecret string
	Auth0Domain   string
	Auth0Audience string

	JobWorkers int
	JobBuffer  int
	JobStep    time.Duration
}

// LoadServer reads the service settings from the environment.
func LoadServer() (Server, error) {
	s := Server{
		ListenAddr:    EnvString("LISTEN_ADDR", ":8080"),
		RedisConn:     EnvString("REDIS_CONNECTION_STRING", ""),
		DeduperTTL:    EnvDur("DEDUPER_TTL", 24*time.Hour),
		AuthTestMode:  EnvString("AUTH0_TEST_MODE", "") == "1",
		TestJWTSecret: EnvString("TEST_JWT_SECRET", ""),
		Auth0Domain:   EnvString("AUTH0_DOMAIN", ""),
		Auth0Audience: EnvString("AUTH0_AUDIENCE", ""),
		JobWorkers:    EnvInt("JOB_WORKERS", 4),
		JobBuffer:     EnvInt("JOB_BUFFER", 256),
		JobStep:       EnvDur("JOB_STEP", 2*time.Second),
	}
	if s.RedisConn == "" {
		return Server{}, errors.New("missing redis config")
	}
	if !s.AuthTestMode && (s.Auth0Domain == "" || s.Auth0Audience == "") {
		return Server{}, errors.New("missing Auth0 config")
	}
	return s, nil
}

// RedisOptions accepts either a redis:// URL or the Azure-style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
