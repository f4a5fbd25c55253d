package config

import (
	"testing"
	"time"
)

func TestLoadBookingDefaults(t *testing.T) {
	t.Setenv("SLOT_GRANULARITY_MINUTES", "")
	t.Setenv("BOOKING_TX_TIMEOUT", "nonsense")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")

	cfg := Load()
	if cfg.SlotGranularityMinutes != 30 {
		t.Fatalf("expected granularity 30, got %d", cfg.SlotGranularityMinutes)
	}
	if cfg.BookingTxTimeout != 5*time.Second {
		t.Fatalf("expected 5s tx timeout, got %s", cfg.BookingTxTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{BusinessTimezone: "Mars/Olympus_Mons"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
}
