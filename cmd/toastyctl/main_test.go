package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toastysunday/api/internal/database"
	"golang.org/x/crypto/bcrypt"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMenuCheck(t *testing.T) {
	out, err := execute(t, "menu", "check")
	if err != nil {
		t.Fatalf("menu check: %v", err)
	}
	for _, want := range []string{"mainCourse", "drinks", "desert", "Cheese", "3.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMenuCheckRejectsBadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.yaml")
	bad := "mainCourse:\n  base: {baseCost: -5}\n  extras: []\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "menu", "check", "--file", path); err == nil {
		t.Fatal("expected invalid catalog error")
	}
}

func TestMenuQuote(t *testing.T) {
	out, err := execute(t, "menu", "quote", "--main", "Cheese_toasty_0", "Ham_toasty_1")
	if err != nil {
		t.Fatalf("menu quote: %v", err)
	}
	want := "Toasty #1: Cheese\nToasty #2: Ham\ntotal: 7.25\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestMenuQuoteUnknownExtra(t *testing.T) {
	if _, err := execute(t, "menu", "quote", "--main", "Bacon_toasty_0"); err == nil {
		t.Fatal("expected unknown extra error")
	}
}

type fakeSeeder struct {
	got database.UpsertAccountPasswordParams
}

func (f *fakeSeeder) UpsertAccountPassword(_ context.Context, arg database.UpsertAccountPasswordParams) (database.Account, error) {
	f.got = arg
	return database.Account{Username: arg.Username, PasswordHash: arg.PasswordHash}, nil
}

func TestSeedAccount(t *testing.T) {
	store := &fakeSeeder{}
	if err := seedAccount(context.Background(), store, "root", "S3cret!"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if store.got.Username != "root" {
		t.Errorf("username: got %q", store.got.Username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.got.PasswordHash), []byte("S3cret!")); err != nil {
		t.Error("stored hash does not match password")
	}
}

func TestSeedAccountRequiresCredentials(t *testing.T) {
	t.Setenv("SEED_USERNAME", "")
	t.Setenv("SEED_PASSWORD", "")
	if _, err := execute(t, "seed-account", "--username", "root"); err == nil {
		t.Fatal("expected missing password error")
	}
}

func TestSeedAccountRejectsReservedUsername(t *testing.T) {
	_, err := execute(t, "seed-account", "--username", "quote", "--password", "Toast1!")
	if err == nil || !strings.Contains(err.Error(), "reserved") {
		t.Fatalf("expected reserved username error, got: %v", err)
	}
}
