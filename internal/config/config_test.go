package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "INBOX", cfg.IMAP.Folder)
	assert.Equal(t, 10, cfg.Crawl.MaxPages)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentCompanies)
	assert.Equal(t, 50, cfg.Send.MaxPerRun)
	assert.Equal(t, 7, cfg.Bounce.SinceDays)
	assert.Contains(t, cfg.Resolver.GuessTLDs, ".com")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("B2B_SEND_MAX_PER_RUN", "3")
	t.Setenv("B2B_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Send.MaxPerRun)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestSendConfig_Delays(t *testing.T) {
	c := SendConfig{MinDelaySecs: 0.5, MaxDelaySecs: 2}
	assert.Equal(t, 500*time.Millisecond, c.MinDelay())
	assert.Equal(t, 2*time.Second, c.MaxDelay())
}

func TestSMTPConfig_Validate(t *testing.T) {
	assert.Error(t, SMTPConfig{}.Validate())
	assert.NoError(t, SMTPConfig{User: "u", Password: "p"}.Validate())
}

func TestIMAPConfig_Validate(t *testing.T) {
	assert.Error(t, IMAPConfig{User: "u"}.Validate())
	assert.NoError(t, IMAPConfig{User: "u", Password: "p"}.Validate())
}
