package store

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RedisConfig captures the minimal connection parameters required by the Redis client.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	TLS       bool
	Timeout   time.Duration
	KeyPrefix string
}

const (
	defaultRedisTimeout   = 5 * time.Second
	defaultRedisKeyPrefix = "waitlist:"
)

// RedisClient implements the subset of the Redis protocol the store needs: AUTH,
// SELECT, PING, WATCH, UNWATCH, GET, MULTI, SET (with PX), DEL, EXEC and DISCARD.
// It maintains a single connection guarded by a mutex; a store session owns the
// connection from its first WATCH until EXEC or UNWATCH.
type RedisClient struct {
	cfg    RedisConfig
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	gen    uint64
}

var errRedisReconnected = errors.New("redis: connection reset during transaction")

// NewRedisClient creates a new Redis client. It eagerly establishes the connection so that
// misconfiguration is surfaced during application startup.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultRedisKeyPrefix
	}

	client := &RedisClient{cfg: cfg}
	client.mu.Lock()
	err := client.ensureConnectionLocked(context.Background())
	client.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewRedis returns a Store backed by Redis.
func NewRedis(cfg RedisConfig, opts ...Option) (*Store, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(&redisBackend{client: client}, opts...), nil
}

// Ping checks the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.doLocked(ctx, "PING")
	if err != nil {
		return err
	}
	if s, ok := resp.(string); !ok || !strings.EqualFold(s, "PONG") {
		return fmt.Errorf("redis: unexpected PING reply %v", resp)
	}
	return nil
}

// Close closes the underlying network connection.
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.reader = nil
		return err
	}
	return nil
}

func (c *RedisClient) prefixed(key string) string {
	return c.cfg.KeyPrefix + key
}

type redisBackend struct {
	client *RedisClient
}

func (b *redisBackend) name() string { return "redis" }

func (b *redisBackend) begin(context.Context) (session, error) {
	b.client.mu.Lock()
	return &redisSession{client: b.client}, nil
}

func (b *redisBackend) close() error {
	return b.client.Close()
}

type redisSession struct {
	client   *RedisClient
	gen      uint64
	watching bool
	done     bool
}

func (s *redisSession) load(ctx context.Context, key string) ([]byte, error) {
	c := s.client
	prefixed := c.prefixed(key)
	if _, err := c.doLocked(ctx, "WATCH", prefixed); err != nil {
		return nil, err
	}
	if !s.watching {
		s.watching = true
		s.gen = c.gen
	} else if s.gen != c.gen {
		return nil, errRedisReconnected
	}

	resp, err := c.doLocked(ctx, "GET", prefixed)
	if err != nil {
		return nil, err
	}
	switch v := resp.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: unexpected response type %T", v)
	}
}

func (s *redisSession) commit(ctx context.Context, writes []write) error {
	defer s.finish()
	c := s.client

	if len(writes) == 0 {
		if s.watching {
			_, err := c.doLocked(ctx, "UNWATCH")
			return err
		}
		return nil
	}

	if _, err := c.doLocked(ctx, "MULTI"); err != nil {
		return err
	}
	if s.watching && s.gen != c.gen {
		_, _ = c.doLocked(ctx, "DISCARD")
		return errRedisReconnected
	}
	now := time.Now()
	for _, w := range writes {
		args := redisWriteArgs(c.prefixed(w.key), w, now)
		if _, err := c.doLocked(ctx, args...); err != nil {
			_, _ = c.doLocked(ctx, "DISCARD")
			return err
		}
	}

	resp, err := c.doLocked(ctx, "EXEC")
	if err != nil {
		return err
	}
	if resp == nil {
		return ErrConflict
	}
	replies, ok := resp.([]interface{})
	if !ok {
		return fmt.Errorf("redis: unexpected EXEC reply %T", resp)
	}
	for _, reply := range replies {
		if replyErr, ok := reply.(redisError); ok {
			return replyErr
		}
	}
	return nil
}

func (s *redisSession) rollback(ctx context.Context) {
	defer s.finish()
	if s.watching {
		_, _ = s.client.doLocked(ctx, "UNWATCH")
	}
}

func (s *redisSession) finish() {
	if s.done {
		return
	}
	s.done = true
	s.client.mu.Unlock()
}

func redisWriteArgs(key string, w write, now time.Time) []string {
	if w.delete {
		return []string{"DEL", key}
	}
	if w.expiresAt.IsZero() {
		return []string{"SET", key, string(w.value)}
	}
	remaining := w.expiresAt.Sub(now)
	if remaining < time.Millisecond {
		return []string{"DEL", key}
	}
	return []string{"SET", key, string(w.value), "PX", formatMillis(remaining)}
}

// doLocked sends one command and reads its reply. The caller holds c.mu.
func (c *RedisClient) doLocked(ctx context.Context, args ...string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.ensureConnectionLocked(ctx); err != nil {
		return nil, err
	}

	deadline := deadlineFromContext(ctx, c.cfg.Timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.resetLocked()
		return nil, err
	}

	if err := writeCommand(c.conn, args); err != nil {
		c.resetLocked()
		return nil, err
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		var replyErr redisError
		if !errors.As(err, &replyErr) {
			c.resetLocked()
		}
		return nil, err
	}

	return resp, nil
}

func (c *RedisClient) ensureConnectionLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)

	if c.cfg.TLS {
		dialer := &tls.Dialer{NetDialer: &net.Dialer{}}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	} else {
		dialer := &net.Dialer{}
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	if err := conn.SetDeadline(deadlineFromContext(ctx, c.cfg.Timeout)); err != nil {
		conn.Close()
		return err
	}

	if c.cfg.Password != "" || c.cfg.Username != "" {
		authArgs := []string{"AUTH"}
		if c.cfg.Username != "" {
			authArgs = append(authArgs, c.cfg.Username, c.cfg.Password)
		} else {
			authArgs = append(authArgs, c.cfg.Password)
		}
		if err := expectOK(conn, reader, authArgs); err != nil {
			conn.Close()
			return fmt.Errorf("redis: AUTH failed: %w", err)
		}
	}

	if c.cfg.DB > 0 {
		if err := expectOK(conn, reader, []string{"SELECT", strconv.Itoa(c.cfg.DB)}); err != nil {
			conn.Close()
			return fmt.Errorf("redis: SELECT failed: %w", err)
		}
	}

	// Clear deadlines; runtime commands will set per-call deadlines
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.reader = reader
	c.gen++
	return nil
}

func (c *RedisClient) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

func expectOK(conn net.Conn, reader *bufio.Reader, args []string) error {
	if err := writeCommand(conn, args); err != nil {
		return err
	}
	resp, err := readResponse(reader)
	if err != nil {
		return err
	}
	if str, ok := resp.(string); !ok || !strings.EqualFold(str, "OK") {
		return fmt.Errorf("unexpected reply %v", resp)
	}
	return nil
}

func deadlineFromContext(ctx context.Context, fallback time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(fallback)
}

// redisError is an error reply sent by the server. The connection stays usable.
type redisError string

func (e redisError) Error() string { return "redis: " + string(e) }

func writeCommand(w io.Writer, args []string) error {
	builder := strings.Builder{}
	builder.WriteByte('*')
	builder.WriteString(strconv.Itoa(len(args)))
	builder.WriteString("\r\n")
	for _, arg := range args {
		builder.WriteByte('$')
		builder.WriteString(strconv.Itoa(len(arg)))
		builder.WriteString("\r\n")
		builder.WriteString(arg)
		builder.WriteString("\r\n")
	}
	_, err := io.WriteString(w, builder.String())
	return err
}

func readResponse(r *bufio.Reader) (interface{}, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	switch prefix {
	case '+':
		return line, nil
	case '-':
		return nil, redisError(line)
	case ':':
		return strconv.ParseInt(line, 10, 64)
	case '$':
		length, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if length < 0 {
			return nil, nil
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if err := consumeCRLF(r); err != nil {
			return nil, err
		}
		return buf, nil
	case '*':
		count, err := strconv.Atoi(line)
		if err != nil {
			return nil, err
		}
		if count < 0 {
			return nil, nil
		}
		items := make([]interface{}, count)
		for i := 0; i < count; i++ {
			item, err := readResponse(r)
			var replyErr redisError
			if errors.As(err, &replyErr) {
				items[i] = replyErr
				continue
			}
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	default:
		return nil, fmt.Errorf("redis: unexpected prefix %q", prefix)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func consumeCRLF(r *bufio.Reader) error {
	first, err := r.ReadByte()
	if err != nil {
		return err
	}
	second, err := r.ReadByte()
	if err != nil {
		return err
	}
	if first != '\r' || second != '\n' {
		return errors.New("redis: expected CRLF")
	}
	return nil
}

func formatMillis(duration time.Duration) string {
	if duration <= 0 {
		return "0"
	}
	return strconv.FormatInt(duration.Milliseconds(), 10)
}
