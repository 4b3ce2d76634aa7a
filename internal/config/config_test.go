package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 15*time.Minute, cfg.BookingHoldTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.InvoiceDue())
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.NotifierWorkers)
	assert.Equal(t, ":9102", cfg.NotifierMetricsAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("BOOKING_HOLD_TTL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.BookingHoldTTL)
}

func TestValidation(t *testing.T) {
	base := func() *viper.Viper {
		v := viper.New()
		for k, d := range defaults {
			v.SetDefault(k, d)
		}
		v.Set("jwt_secret", "s")
		return v
	}

	_, err := fromViper(base())
	require.NoError(t, err)

	v := base()
	v.Set("jwt_secret", "")
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "JWT_SECRET")

	v = base()
	v.Set("currency", "euro")
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "currency")

	v = base()
	v.Set("invoice_due_days", 0)
	_, err = fromViper(v)
	assert.ErrorContains(t, err, "INVOICE_DUE_DAYS")
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a ,,b "))
	assert.Empty(t, splitCSV(""))
}
