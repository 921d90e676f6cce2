package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, expected := range testCases {
		if level := ParseLevel(input); level != expected {
			t.Fatalf("ParseLevel(%q) = %s, want %s", input, level, expected)
		}
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger("error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn to be disabled at error level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected error to be enabled")
	}
}

func TestGormLoggerReportsFailuresButNotMissingRecords(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gormLogger := NewGormLogger(zap.New(core))
	statement := func() (string, int64) { return "SELECT 1", 0 }

	gormLogger.Trace(context.Background(), time.Now(), statement, gorm.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("expected record-not-found to be ignored, got %d entries", logs.Len())
	}

	gormLogger.Trace(context.Background(), time.Now(), statement, errors.New("disk I/O error"))
	entries := logs.TakeAll()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel || entries[0].Message != "query failed" {
		t.Fatalf("unexpected entries %#v", entries)
	}

	gormLogger.Trace(context.Background(), time.Now().Add(-time.Second), statement, nil)
	entries = logs.TakeAll()
	if len(entries) != 1 || entries[0].Message != "slow query" {
		t.Fatalf("expected slow query warning, got %#v", entries)
	}

	silent := gormLogger.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), statement, errors.New("disk I/O error"))
	if logs.Len() != 0 {
		t.Fatalf("expected silent mode to suppress output")
	}
}
