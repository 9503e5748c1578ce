package cache

import "time"

type (
	RedisOption   func(*RedisConfig)
	MemoryOption  func(*MemoryConfig)
	LayeredOption func(*LayeredConfig)
)

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

type MemoryConfig struct {
	MaxSize int
	// CleanupInterval is how often expired entries are swept. Zero disables
	// the sweeper; expired entries are then dropped lazily on read.
	CleanupInterval time.Duration
}

type LayeredConfig struct {
	MemoryMaxSize int
	// L1TTL bounds how long a value read from Redis stays in memory.
	L1TTL time.Duration
	// StaleWindow is how long a failed Redis invalidation keeps reads of the
	// matching keys away from Redis. It should cover the longest TTL written.
	StaleWindow time.Duration
	OnL2Error   func(op string, err error)
}

func WithRedisHost(host string) RedisOption { return func(c *RedisConfig) { c.Host = host } }

func WithRedisPort(port int) RedisOption { return func(c *RedisConfig) { c.Port = port } }

func WithRedisPassword(pw string) RedisOption { return func(c *RedisConfig) { c.Password = pw } }

func WithRedisDB(db int) RedisOption { return func(c *RedisConfig) { c.DB = db } }

func WithRedisPrefix(prefix string) RedisOption { return func(c *RedisConfig) { c.Prefix = prefix } }

// WithRedisPool sizes the connection pool. Non-positive values keep defaults.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle > 0 {
			c.MinIdleConns = minIdle
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

func WithMemoryCleanup(every time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = every }
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemoryMaxSize = size
		}
	}
}

func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if ttl > 0 {
			c.L1TTL = ttl
		}
	}
}

func WithStaleWindow(d time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if d > 0 {
			c.StaleWindow = d
		}
	}
}

// WithL2ErrorHandler is called for every Redis error the memory layer
// absorbed.
func WithL2ErrorHandler(fn func(op string, err error)) LayeredOption {
	return func(c *LayeredConfig) { c.OnL2Error = fn }
}
