package handoff

import (
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
)

// UserLabel builds the human-readable label for a user from first name, last
// name and phone, falling back to the numeric id.
func UserLabel(u *models.User) string {
	var parts []string
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if u.Phone != nil && *u.Phone != "" {
		parts = append(parts, *u.Phone)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("ID: %d", u.ID)
	}
	return strings.Join(parts, " ")
}

// AcceptOption returns the manager's accept option for the user.
func AcceptOption(u *models.User) string {
	return AcceptPrefix + UserLabel(u)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ptrOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return orDash(*s)
}

// chatRequestText is the manager notification for a new chat request.
func chatRequestText(u *models.User, chat *models.Chat) string {
	var b strings.Builder
	b.WriteString("New chat request!\n\n")
	fmt.Fprintf(&b, "User: %s\n", orDash(u.FullName()))
	if u.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", u.Username)
	}
	fmt.Fprintf(&b, "ID: %d\n", u.ID)
	fmt.Fprintf(&b, "Phone: %s\n", ptrOrDash(u.Phone))
	fmt.Fprintf(&b, "Birth date: %s\n\n", ptrOrDash(u.BirthDate))
	fmt.Fprintf(&b, "Chat ID: %d", chat.ID)
	return b.String()
}

// callbackText is the manager notification for a callback request.
func callbackText(u *models.User) string {
	return fmt.Sprintf("Callback requested by %s (ID %d), phone: %s", orDash(u.FullName()), u.ID, ptrOrDash(u.Phone))
}

// sharedContactText is the manager notification for a shared phone number.
func sharedContactText(u *models.User, phone string) string {
	return fmt.Sprintf("%s (ID %d) shared their phone: %s", orDash(u.FullName()), u.ID, phone)
}

// PendingSummary renders the pending queue for the manager.
func PendingSummary(chats []models.Chat) string {
	if len(chats) == 0 {
		return "No pending chats."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending chats: %d\n", len(chats))
	for i := range chats {
		c := &chats[i]
		label := fmt.Sprintf("ID: %d", c.UserID)
		if c.User.ID != 0 {
			label = UserLabel(&c.User)
		}
		fmt.Fprintf(&b, "%d. #%d %s, waiting since %s\n", i+1, c.ID, label, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}
