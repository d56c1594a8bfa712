package logger

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level.
type Config struct {
	Env     string // "prod" emits JSON, anything else a console encoder
	Level   string // debug | info | warn | error
	Service string
}

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the process logger. Only the first call has an effect.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the process logger, initializing a dev logger when Init was
// never called (tests, tools).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

func build(cfg Config) *zap.Logger {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Env, "prod") {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		l, _ = zap.NewProduction()
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type ctxKey struct{}

// ToContext attaches a request-scoped logger to ctx.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger stored in ctx, or the process logger.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return L()
}

// ----------------------------
// Fields
// ----------------------------

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func UserID(v string) zap.Field    { return zap.String("user_id", v) }
func State(v string) zap.Field     { return zap.String("state", v) }

func String(key, v string) zap.Field { return zap.String(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }

// Identifier logs a federated identifier with the path hidden; hosts are
// enough to debug discovery, paths usually name a person.
func Identifier(v string) zap.Field {
	return zap.String("identifier", MaskIdentifier(v))
}

// MaskIdentifier keeps scheme and host of a URL-form identifier.
func MaskIdentifier(v string) string {
	i := strings.Index(v, "://")
	if i < 0 {
		if len(v) <= 2 {
			return "***"
		}
		return v[:2] + "***"
	}
	rest := v[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 && j < len(rest)-1 {
		return v[:i+3] + rest[:j] + "/***"
	}
	return v
}
