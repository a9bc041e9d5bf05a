package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement:false")
	assertGormTag(t, typ, "Username", "size:64")
	assertGormTag(t, typ, "Phone", "size:32")

	assertFieldType(t, typ, "ID", "int64")
	assertFieldType(t, typ, "Phone", "*string")
	assertFieldType(t, typ, "BirthDate", "*string")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
	assertFieldType(t, typ, "UpdatedAt", "time.Time")
}

func TestChat_Fields(t *testing.T) {
	typ := reflect.TypeOf(Chat{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "UserID", "index:idx_chat_user_status")
	assertGormTag(t, typ, "Status", "index:idx_chat_user_status")
	assertGormTag(t, typ, "Status", "default:pending")
	assertGormTag(t, typ, "ManagerID", "index")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "UserID", "int64")
	assertFieldType(t, typ, "AcceptedAt", "*time.Time")
	assertFieldType(t, typ, "ClosedAt", "*time.Time")
	assertFieldType(t, typ, "Rating", "*int")
}

func TestChat_Relations(t *testing.T) {
	typ := reflect.TypeOf(Chat{})

	assertGormTag(t, typ, "User", "foreignKey:UserID")
	assertGormTag(t, typ, "Messages", "foreignKey:ChatID")

	assertFieldType(t, typ, "User", "models.User")
	assertFieldType(t, typ, "Messages", "[]models.Message")
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ChatID", "index")
	assertGormTag(t, typ, "ChatID", "not null")
	assertGormTag(t, typ, "Text", "type:text")

	assertFieldType(t, typ, "ChatID", "uint")
	assertFieldType(t, typ, "SenderID", "int64")
}

func TestUserLog_Fields(t *testing.T) {
	typ := reflect.TypeOf(UserLog{})

	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "Action", "size:64")
	assertGormTag(t, typ, "Details", "type:text")
}

func TestContactRequest_Fields(t *testing.T) {
	typ := reflect.TypeOf(ContactRequest{})

	assertGormTag(t, typ, "RequestType", "not null")
	assertGormTag(t, typ, "Status", "default:pending")
	assertFieldType(t, typ, "UserID", "int64")
}

func TestChat_IsOpen(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{ChatPending, true},
		{ChatActive, true},
		{ChatClosed, false},
		{ChatRejected, false},
	}
	for _, tt := range tests {
		c := Chat{Status: tt.status}
		if got := c.IsOpen(); got != tt.want {
			t.Errorf("Chat{Status: %q}.IsOpen() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestChat_Counterparty(t *testing.T) {
	c := Chat{UserID: 10, ManagerID: 99}
	if got := c.Counterparty(10); got != 99 {
		t.Errorf("Counterparty(user) = %d, want 99", got)
	}
	if got := c.Counterparty(99); got != 10 {
		t.Errorf("Counterparty(manager) = %d, want 10", got)
	}
}

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ivan", "Petrov", "Ivan Petrov"},
		{"Ivan", "", "Ivan"},
		{"", "Petrov", "Petrov"},
		{"", "", ""},
	}
	for _, tt := range tests {
		u := User{FirstName: tt.first, LastName: tt.last}
		if got := u.FullName(); got != tt.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}
