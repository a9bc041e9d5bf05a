package handoff

import (
	"testing"

	"github.com/zulandar/switchboard/internal/models"
)

func TestUserLabel(t *testing.T) {
	phone := "+7 900"
	empty := ""
	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"full", models.User{ID: 1, FirstName: "Anna", LastName: "Smirnova", Phone: &phone}, "Anna Smirnova +7 900"},
		{"first only", models.User{ID: 1, FirstName: "Anna"}, "Anna"},
		{"phone only", models.User{ID: 1, Phone: &phone}, "+7 900"},
		{"empty phone", models.User{ID: 1, LastName: "Smirnova", Phone: &empty}, "Smirnova"},
		{"no data", models.User{ID: 42}, "ID: 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserLabel(&tt.user); got != tt.want {
				t.Errorf("UserLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAcceptOption(t *testing.T) {
	got := AcceptOption(&models.User{ID: 7})
	if got != "Accept chat with ID: 7" {
		t.Errorf("AcceptOption() = %q", got)
	}
}

func TestPendingSummary_Empty(t *testing.T) {
	if got := PendingSummary(nil); got != "No pending chats." {
		t.Errorf("PendingSummary(nil) = %q", got)
	}
}
