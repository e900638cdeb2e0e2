package database

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_BothDrivers(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPure} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "test.db")
			db, err := Open(driver, path)
			if err != nil {
				t.Fatalf("Open(%q): %v", driver, err)
			}
			defer db.Close()

			if _, err := db.Exec(`CREATE TABLE t (v TEXT)`); err != nil {
				t.Fatalf("create table: %v", err)
			}
			if _, err := db.Exec(`INSERT INTO t (v) VALUES (?)`, "x"); err != nil {
				t.Fatalf("insert: %v", err)
			}
			var v string
			if err := db.QueryRow(`SELECT v FROM t`).Scan(&v); err != nil || v != "x" {
				t.Errorf("select = %q, %v", v, err)
			}

			var fk int
			if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
				t.Errorf("foreign_keys = %d, %v, want 1", fk, err)
			}
		})
	}
}

func TestDSN_UnknownDriver(t *testing.T) {
	_, err := DSN("postgres", "x.db")
	if err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Errorf("DSN error = %v, want unsupported driver", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2025, 4, 30, 12, 1, 2, 345, time.FixedZone("IST", 19800))
	got := ParseTime(FormatTime(in))
	if !got.Equal(in) {
		t.Errorf("ParseTime(FormatTime(t)) = %v, want %v", got, in)
	}
	a := FormatTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := FormatTime(time.Date(2025, 1, 1, 0, 0, 0, 500, time.UTC))
	if !(a < b) || len(a) != len(b) {
		t.Errorf("stored times not ordered as text: %q, %q", a, b)
	}
	if !ParseTime("garbage").IsZero() {
		t.Error("ParseTime(garbage) should be zero")
	}
}
