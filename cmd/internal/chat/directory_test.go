package chat

import (
	"errors"
	"testing"
)

func TestInMemoryDirectory_LookupCaseInsensitive(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDirectory()
	d.Add(User{Username: "Maria", DisplayName: "Maria Silva"})

	u, err := d.Lookup(t.Context(), "  MARIA ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if u.DisplayName != "Maria Silva" {
		t.Fatalf("DisplayName=%q", u.DisplayName)
	}

	if _, err := d.Lookup(t.Context(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Lookup unknown err=%v want ErrUserNotFound", err)
	}
}

func TestInMemoryDirectory_ListRegularUsers(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDirectory()
	d.Add(User{Username: "zeca"})
	d.Add(User{Username: "Ana"})
	d.Add(User{Username: "carla", Staff: true})

	users, err := d.ListRegularUsers(t.Context())
	if err != nil {
		t.Fatalf("ListRegularUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len=%d want 2 (staff excluded)", len(users))
	}
	if NormalizeUsername(users[0].Username) != "ana" || NormalizeUsername(users[1].Username) != "zeca" {
		t.Fatalf("unexpected order: %+v", users)
	}
}

func TestUserDisplayFallback(t *testing.T) {
	t.Parallel()

	if got := (User{Username: "joao"}).Display(); got != "joao" {
		t.Fatalf("Display()=%q", got)
	}
	if got := (User{Username: "joao", DisplayName: "João"}).Display(); got != "João" {
		t.Fatalf("Display()=%q", got)
	}
}

func TestAccountRoleAndDisplay(t *testing.T) {
	t.Parallel()

	staff := Account{Username: "carla", Staff: true}
	if staff.Role() != RoleStaff {
		t.Fatalf("Role()=%q", staff.Role())
	}
	user := Account{Username: "maria", DisplayName: "  "}
	if user.Role() != RoleRegular {
		t.Fatalf("Role()=%q", user.Role())
	}
	if user.Display() != "maria" {
		t.Fatalf("Display()=%q", user.Display())
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Maria":    "maria",
		"  JOAO  ": "joao",
		"":         "",
		"  ":       "",
	}
	for in, want := range cases {
		if got := NormalizeUsername(in); got != want {
			t.Fatalf("NormalizeUsername(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestUserGroupNames(t *testing.T) {
	t.Parallel()

	if got := UserGroup("  Maria "); got != "chat_user_maria" {
		t.Fatalf("UserGroup=%q", got)
	}
	if GroupStaff != "chat_admins" {
		t.Fatalf("GroupStaff=%q", GroupStaff)
	}
}
