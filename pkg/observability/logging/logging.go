// Package logging builds the process logger from configuration.
package logging

import (
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and outputs.
type Config struct {
    Level       string         `mapstructure:"level"`
    Format      string         `mapstructure:"format"`  // console or json
    Outputs     []string       `mapstructure:"outputs"` // stdout, stderr or file paths
    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig enables lumberjack rotation for file outputs.
type RotationConfig struct {
    Enable     bool `mapstructure:"enable"`
    MaxSizeMB  int  `mapstructure:"max_size_mb"`
    MaxBackups int  `mapstructure:"max_backups"`
    MaxAgeDays int  `mapstructure:"max_age_days"`
    Compress   bool `mapstructure:"compress"`
}

// ParseLevel maps a level name to a zap level; unknown names are Info.
func ParseLevel(s string) zapcore.Level {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "debug":
        return zap.DebugLevel
    case "warn", "warning":
        return zap.WarnLevel
    case "error":
        return zap.ErrorLevel
    default:
        return zap.InfoLevel
    }
}

// Setup builds a logger, installs it as the zap global and redirects the
// standard library logger into it. Callers should defer Sync.
func Setup(c Config) (*zap.Logger, error) {
    level := zap.NewAtomicLevelAt(ParseLevel(c.Level))

    encCfg := zap.NewProductionEncoderConfig()
    if c.Development {
        encCfg = zap.NewDevelopmentEncoderConfig()
        encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    }
    var encoder zapcore.Encoder
    if strings.EqualFold(c.Format, "json") {
        encoder = zapcore.NewJSONEncoder(encCfg)
    } else {
        encoder = zapcore.NewConsoleEncoder(encCfg)
    }

    outputs := c.Outputs
    if len(outputs) == 0 { outputs = []string{"stderr"} }
    var cores []zapcore.Core
    for _, out := range outputs {
        ws, err := sink(out, c.Rotation)
        if err != nil { return nil, err }
        cores = append(cores, zapcore.NewCore(encoder, ws, level))
    }

    opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
    if c.Development { opts = append(opts, zap.Development()) }
    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

func sink(out string, r RotationConfig) (zapcore.WriteSyncer, error) {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.AddSync(os.Stdout), nil
    case "stderr":
        return zapcore.AddSync(os.Stderr), nil
    }
    if dir := filepath.Dir(out); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil { return nil, err }
    }
    if r.Enable {
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   out,
            MaxSize:    max(r.MaxSizeMB, 10),
            MaxBackups: max(r.MaxBackups, 1),
            MaxAge:     max(r.MaxAgeDays, 7),
            Compress:   r.Compress,
        }), nil
    }
    f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil { return nil, err }
    return zapcore.AddSync(f), nil
}
