package migration

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("expected at least one migration")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("migration %s has no down file", version)
		}
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	if _, err := RunMigrations(nil); err == nil {
		t.Fatalf("expected error for nil handle")
	}
}

func TestInitMigrationEnforcesOneActiveSubscription(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	sql := string(raw)
	for _, want := range []string{
		"ux_subscriptions_active_member_server",
		"WHERE status = 'ACTIVE'",
		"ux_transactions_gateway_order_id",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("init migration is missing %q", want)
		}
	}
}
