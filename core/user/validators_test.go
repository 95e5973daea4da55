package user

import (
	"testing"
)

func Test_checkPassword(t *testing.T) {
	commonPasswords = []string{"p@$$w0rd", "passw0rd"}

	tests := []struct {
		name    string
		pwd     string
		attrs   []string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Ab1! cdefg", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg1", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdef1!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Jdoe2024!", attrs: []string{"John Doe", "jdoe2024"}, wantTag: pwdAttrSimTag},
		{name: "common", pwd: "P@$$w0rd", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "LolC@t123", attrs: []string{"Bursar", "bursar", "bursar@test.cd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPassword(tt.pwd, tt.attrs...); got != tt.wantTag {
				t.Errorf("checkPassword() = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestMaxRolePriority(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{name: "none", want: 0},
		{name: "unknown", roles: []string{"lol"}, want: 0},
		{name: "auditor", roles: []string{RoleAuditor}, want: 10},
		{name: "bursar & auditor", roles: []string{RoleAuditor, RoleBursar}, want: 20},
		{name: "admin", roles: []string{RoleBursar, RoleAdmin}, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxRolePriority(tt.roles); got != tt.want {
				t.Errorf("MaxRolePriority() = %v, want %v", got, tt.want)
			}
		})
	}
}
