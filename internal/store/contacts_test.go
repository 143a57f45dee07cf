package store

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestContactStoreGetOrCreateByJID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &ContactStore{pool: mock}
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(int64(1), "5511999999999@s.whatsapp.net", "5511999999999", "Maria", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "number", "jid", "is_group"}).
			AddRow(int64(7), int64(1), "Maria", "5511999999999", "5511999999999@s.whatsapp.net", false))

	rec, err := s.GetOrCreateByJID(context.Background(), 1, "5511999999999@s.whatsapp.net", "Maria", false)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if rec.ID != 7 || rec.Number != "5511999999999" {
		t.Fatalf("unexpected contact %+v", rec)
	}
}

func TestContactStoreFallsBackToNumberName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &ContactStore{pool: mock}
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(int64(1), "5511888888888@s.whatsapp.net", "5511888888888", "5511888888888", false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "number", "jid", "is_group"}).
			AddRow(int64(8), int64(1), "5511888888888", "5511888888888", "5511888888888@s.whatsapp.net", false))

	rec, err := s.GetOrCreateByJID(context.Background(), 1, "5511888888888@s.whatsapp.net", "  ", false)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if rec.Name != "5511888888888" {
		t.Fatalf("expected number fallback name, got %s", rec.Name)
	}
}

func TestNumberFromJID(t *testing.T) {
	if got := numberFromJID("5511999999999@s.whatsapp.net"); got != "5511999999999" {
		t.Fatalf("unexpected number %s", got)
	}
	if got := numberFromJID("already-bare"); got != "already-bare" {
		t.Fatalf("unexpected passthrough %s", got)
	}
}
