package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("Ada")
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "Ada" || len(u.ID) != MaxUserIDLen {
		t.Fatalf("user = %+v", u)
	}

	if _, err := NewUser(""); !errors.Is(err, ErrNameEmpty) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := NewUser(strings.Repeat("x", MaxNameLen+1)); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("long name: %v", err)
	}
}
