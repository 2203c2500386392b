package postgres_test

import (
	"context"
	"os"
	"testing"

	"tickscope/pkg/storage/postgres"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	adminDSN := os.Getenv("TICKSCOPE_TEST_POSTGRES_ADMIN_DSN")
	if adminDSN == "" {
		t.Skip("TICKSCOPE_TEST_POSTGRES_ADMIN_DSN not set")
	}

	// second call finds the database and is a no-op
	for i := 0; i < 2; i++ {
		if err := postgres.CreateDatabase(context.Background(), adminDSN, "tickscope_test_create"); err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
	}
}
