package schema

import "testing"

func TestCamelToUnderline(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"UserAccount", "user_account"},
		{"User", "user"},
		{"user", "user"},
		{"  GlobalUserID ", "global_user_i_d"},
		{"HTTPServer", "h_t_t_p_server"},
		{"orderItem", "order_item"},
		{"User2Account", "user2_account"},
		{"Item3", "item3"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CamelToUnderline(tt.in); got != tt.want {
			t.Errorf("CamelToUnderline(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPhysicalTableName(t *testing.T) {
	if got := PhysicalTableName("User", 7); got != "user_7" {
		t.Errorf("expected user_7, got %s", got)
	}
	if got := PhysicalTableName("UserAccount", 0); got != "user_account_0" {
		t.Errorf("expected user_account_0, got %s", got)
	}
	if got := PhysicalTableName("User", 42); got != "user_42" {
		t.Errorf("expected user_42, got %s", got)
	}
}

func TestShardTypeName(t *testing.T) {
	if got := ShardTypeName("User", 7); got != "User7" {
		t.Errorf("expected User7, got %s", got)
	}
	if got := ShardTypeName("UserAccount", 13); got != "UserAccount13" {
		t.Errorf("expected UserAccount13, got %s", got)
	}
}
