package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"riskscan/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New builds the process logger. With a file configured, output goes to a
// rotating file as well as stderr.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return log, io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log directory: %w", err)
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotating))
	return log, rotating, nil
}
