package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func TestMintRelayToken(t *testing.T) {
	cfg := testConfig()
	opts := &tokenOptions{userID: "user-1", tenantID: "tenant-1", role: "agent", conversationID: "conv-9"}

	var out bytes.Buffer
	require.NoError(t, mintRelayToken(&out, cfg, opts))

	svc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 5*time.Minute)
	session, err := svc.VerifyRelayToken(lastLine(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "conv-9", session.ConversationID)
	assert.Equal(t, "tenant-1", session.TenantID)
}

func TestMintAccessToken(t *testing.T) {
	cfg := testConfig()
	opts := &tokenOptions{userID: "user-1", tenantID: "tenant-1", role: "supervisor"}

	var out bytes.Buffer
	require.NoError(t, mintAccessToken(&out, cfg, opts))

	lines := strings.Split(out.String(), "\n")
	svc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 5*time.Minute)
	principal, err := svc.ValidateAccessToken(lines[1])
	require.NoError(t, err)
	assert.Equal(t, "supervisor", principal.Role)
}

func TestMintTokenRequiresSecret(t *testing.T) {
	cfg := config.Default()
	err := mintAccessToken(&bytes.Buffer{}, cfg, &tokenOptions{userID: "u", tenantID: "t"})
	assert.Error(t, err)
}
