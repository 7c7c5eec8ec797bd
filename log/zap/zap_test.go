package zap

import (
	"testing"

	"github.com/nodeware/wirecache"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerSatisfiesInterfaceAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	var _ wirecache.Logger = l

	l.Debug("self heal", wirecache.Fields{"key": "u:1"})
	l.Info("bulk set", wirecache.Fields{"ns": "user"})
	l.Warn("gen snapshot error", wirecache.Fields{"key": "u:2"})
	l.Error("provider outage", wirecache.Fields{"key": "u:3"})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(entries))
	}
	if entries[0].Message != "self heal" || entries[0].Level != zap.DebugLevel {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[3].Message != "provider outage" || entries[3].Level != zap.ErrorLevel {
		t.Fatalf("unexpected last entry: %+v", entries[3])
	}
}

func TestZapFieldsNilIsFine(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := ZapLogger{L: zap.New(core)}
	l.Info("no fields", nil)
	if got := logs.Len(); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
}
