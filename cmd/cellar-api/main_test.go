package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/config"
	"github.com/spf13/viper"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	rootCmd := newRootCommand()
	for _, name := range []string{"serve", "sync-all", "recompute-all", "issue-hook-token"} {
		found, _, err := rootCmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Fatalf("expected subcommand %s, got %v (err %v)", name, found, err)
		}
	}
}

func TestIssueHookTokenPrintsValidToken(t *testing.T) {
	t.Setenv("CELLAR_HOOKS_SIGNING_SECRET", "cli-secret")
	t.Cleanup(viper.Reset)

	rootCmd := newRootCommand()
	var output bytes.Buffer
	rootCmd.SetOut(&output)
	rootCmd.SetArgs([]string{"issue-hook-token", "--subject", "cms-webhook"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command failed: %v", err)
	}

	token := strings.TrimSpace(strings.SplitN(output.String(), "\n", 2)[0])
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	issuer, err := newTokenIssuer(appConfig)
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected printed token to validate: %v", err)
	}
	if claims.Subject != "cms-webhook" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
}
