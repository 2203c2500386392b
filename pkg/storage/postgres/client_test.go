package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"tickscope/pkg/ibkr"
	"tickscope/pkg/storage/postgres"
)

// testClient connects to the database named by TICKSCOPE_TEST_POSTGRES_DSN.
func testClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv("TICKSCOPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TICKSCOPE_TEST_POSTGRES_DSN not set")
	}
	client, err := postgres.NewClient(dsn)
	if err != nil {
		t.Fatalf("failed to create Postgres client: %v", err)
	}
	if err := client.AutoMigrateContractRecord(); err != nil {
		t.Fatalf("auto migration failed: %v", err)
	}
	t.Cleanup(func() {
		client.DB.Exec("DELETE FROM contract_record WHERE cache_key LIKE 'TEST|%'")
		_ = client.Close()
	})
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=2"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

// go test -v --run ^TestPostgresHealthy$
func TestPostgresHealthy(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if !client.IsHealthy(ctx) {
		t.Fatal("expected healthy DB connection")
	}
}

// go test -v --run ^TestContractSaveLookup$
func TestContractSaveLookup(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	if _, ok, err := client.LookupContract(ctx, "TEST|MISSING"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := client.SaveContract(ctx, "TEST|BA", "STK", 4762, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	// last writer wins
	if err := client.SaveContract(ctx, "TEST|BA", "STK", 4763, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	id, ok, err := client.LookupContract(ctx, "TEST|BA")
	if err != nil || !ok || id != ibkr.ConID(4763) {
		t.Errorf("lookup: id=%d ok=%v err=%v", id, ok, err)
	}
}

// go test -v --run ^TestDeleteExpiredContracts$
func TestDeleteExpiredContracts(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	past := time.Now().UTC().AddDate(0, 0, -3).Truncate(24 * time.Hour)
	future := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	_ = client.SaveContract(ctx, "TEST|OLD", "OPT", 1, &past)
	_ = client.SaveContract(ctx, "TEST|NEW", "OPT", 2, &future)

	if _, ok, _ := client.LookupContract(ctx, "TEST|OLD"); ok {
		t.Error("expired option should read as missing")
	}

	n, err := client.DeleteExpiredContracts(ctx, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n < 1 {
		t.Errorf("expected at least one expired row deleted, got %d", n)
	}
	if _, ok, _ := client.LookupContract(ctx, "TEST|NEW"); !ok {
		t.Error("unexpired option was deleted")
	}
}
