package chat

import "testing"

func TestRoutingTable_BindAndLookup(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable()

	rt.BindUserToAttendant("  Maria ", "h-att-1")
	if h, ok := rt.AttendantFor("maria"); !ok || h != "h-att-1" {
		t.Fatalf("AttendantFor=(%q,%v)", h, ok)
	}
	// Lookup is insensitive to case and spacing on both sides.
	if h, ok := rt.AttendantFor("MARIA"); !ok || h != "h-att-1" {
		t.Fatalf("AttendantFor upper=(%q,%v)", h, ok)
	}

	rt.BindAttendantToUser("h-att-1", "Maria")
	if u, ok := rt.UserFor("h-att-1"); !ok || u != "maria" {
		t.Fatalf("UserFor=(%q,%v)", u, ok)
	}
}

func TestRoutingTable_LastWriteWins(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable()

	rt.BindUserToAttendant("maria", "h-att-1")
	rt.BindUserToAttendant("maria", "h-att-2")

	if h, _ := rt.AttendantFor("maria"); h != "h-att-2" {
		t.Fatalf("AttendantFor=%q want h-att-2", h)
	}

	rt.BindAttendantToUser("h-att-2", "maria")
	rt.BindAttendantToUser("h-att-2", "joao")

	if u, _ := rt.UserFor("h-att-2"); u != "joao" {
		t.Fatalf("UserFor=%q want joao", u)
	}
}

func TestRoutingTable_IgnoresEmptyKeys(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable()

	rt.BindUserToAttendant("", "h1")
	rt.BindUserToAttendant("maria", "")
	rt.BindAttendantToUser("", "maria")

	if _, ok := rt.AttendantFor("maria"); ok {
		t.Fatal("empty binds must be ignored")
	}
	if _, ok := rt.UserFor("h1"); ok {
		t.Fatal("empty binds must be ignored")
	}
}
