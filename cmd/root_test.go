package cmd

import (
	"testing"
	"time"

	coreconfig "github.com/re178/mega-facebook-autoposter/core/config"
	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, splitList([]string{"a:1,b:2", " c:3 ", ""}))
	assert.Nil(t, splitList(nil))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"rest", "mcp", "migrate", "expand", "purge"} {
		assert.True(t, names[want], want)
	}
}

func TestClaimTTLCoversOneAttempt(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Scheduler.ClaimTTL = 2 * time.Minute
	cfg.Generation.CallTimeout = 60 * time.Second
	cfg.Publish.Timeout = 30 * time.Second
	assert.Equal(t, 3*time.Minute, claimTTL(cfg))

	cfg.Scheduler.ClaimTTL = 10 * time.Minute
	assert.Equal(t, 10*time.Minute, claimTTL(cfg))
}
