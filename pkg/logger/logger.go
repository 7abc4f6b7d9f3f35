package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

// Lg 全局日志实例，未初始化时为 no-op
var Lg = zap.NewNop()

// 同一个日志文件只能有一个 lumberjack 实例，zap 与 logrus 共用
var (
	sinkMu sync.Mutex
	sink   *lumberjack.Logger
)

func fileSink(cfg LogConfig) io.Writer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink != nil && sink.Filename == cfg.Filename {
		return sink
	}
	if sink != nil {
		_ = sink.Close()
	}
	sink = &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return sink
}

// Init 初始化全局日志，配置了文件名时写入滚动文件，否则输出到控制台
func Init(cfg LogConfig) error {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(levelOrDefault(cfg.Level))); err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if cfg.Filename != "" {
		writer := zapcore.AddSync(fileSink(cfg))
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, level)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level)
	}

	Lg = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	zap.ReplaceGlobals(Lg)
	return nil
}

// NewLogrus 创建与全局日志同级别的 logrus 实例，供外部服务客户端使用
func NewLogrus(cfg LogConfig) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(levelOrDefault(cfg.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if cfg.Filename != "" {
		l.SetOutput(fileSink(cfg))
	}
	return l
}

func levelOrDefault(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return "info"
	}
	return level
}

func Debug(msg string, fields ...zap.Field) { Lg.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Lg.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Lg.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Lg.Error(msg, fields...) }

// Sync 刷新缓冲
func Sync() { _ = Lg.Sync() }
