package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/migrate"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig carries the Postgres and Redis settings used at startup.
// Each Connect function reads only its own section.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the pgx-backed pool, applies the pool limits and pings.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	pg := cfg.DBConfig
	db, err := sql.Open("pgx", postgresDSN(pg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxIdleConns)
	db.SetConnMaxLifetime(pg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		return nil, closeAfter(fmt.Errorf("ping database: %w", err), db.Close, "close database")
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("postgres connected",
			"host", pg.Host,
			"port", pg.Port,
			"database", pg.Name,
			"max_open_conns", pg.MaxOpenConns,
		)
	}
	return db, nil
}

// postgresDSN renders the URL form so credentials with reserved characters survive.
func postgresDSN(pg config.DBConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.User, pg.Password),
		Host:     net.JoinHostPort(pg.Host, strconv.Itoa(pg.Port)),
		Path:     "/" + pg.Name,
		RawQuery: url.Values{"sslmode": {pg.SSLMode}}.Encode(),
	}
	return u.String()
}

// ConnectRedis builds a single, sentinel or cluster client from the Redis
// section and pings it.
//
//nolint:ireturn // the concrete client type depends on configuration.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, desc, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, closeAfter(fmt.Errorf("ping redis: %w", err), client.Close, "close redis client")
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "addr", desc)
	}
	return client, nil
}

// redisOptions maps config onto UniversalOptions. The returned description is
// safe to log.
func redisOptions(rc config.RedisConfig) (*redis.UniversalOptions, string, error) {
	switch {
	case rc.UseCluster:
		opts := &redis.UniversalOptions{
			Addrs:         compactAddrs(rc.ClusterNodes),
			Password:      rc.Password,
			IsClusterMode: true,
		}
		if len(opts.Addrs) == 0 {
			// A single configuration endpoint may be given as the URI instead.
			if err := applyRedisURI(opts, rc.URI); err != nil {
				return nil, "", fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster configuration requires at least one address")
		}
		return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil

	case rc.UseSentinel:
		nodes := compactAddrs(rc.SentinelNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return &redis.UniversalOptions{
			Addrs:            nodes,
			MasterName:       rc.SentinelMasterName,
			Password:         rc.Password,
			SentinelPassword: rc.SentinelPassword,
		}, "sentinel:" + rc.SentinelMasterName, nil

	default:
		opts := &redis.UniversalOptions{Password: rc.Password}
		if err := applyRedisURI(opts, rc.URI); err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis direct configuration requires a URI")
		}
		return opts, opts.Addrs[0], nil
	}
}

// applyRedisURI accepts either host:port or a redis:// / rediss:// URL.
// URL credentials, database and TLS settings override the plain fields.
func applyRedisURI(opts *redis.UniversalOptions, raw string) error {
	uri := strings.TrimSpace(raw)
	if uri == "" {
		return nil
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return nil
	}
	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return err
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return nil
}

func compactAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func closeAfter(err error, closeFn func() error, what string) error {
	if closeErr := closeFn(); closeErr != nil {
		return errors.Join(err, fmt.Errorf("%s: %w", what, closeErr))
	}
	return err
}

// RunMigrations applies pending embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
