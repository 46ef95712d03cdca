package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes rotated JSON logs under logDir. With pretty set it also
// mirrors everything to stderr with a console encoder for dev use.
func NewLogger(logDir, level string, pretty bool) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "watchboard.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, lvl)

	if pretty {
		devEnc := zap.NewDevelopmentEncoderConfig()
		console := zapcore.NewCore(zapcore.NewConsoleEncoder(devEnc), zapcore.AddSync(os.Stderr), lvl)
		core = zapcore.NewTee(core, console)
	}
	return zap.New(core), nil
}
