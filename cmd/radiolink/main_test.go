package main

import (
	"errors"
	"testing"

	"github.com/1ureka/radiolink/internal/config"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    config.Role
		wantErr bool
	}{
		{"base", []string{"--base"}, config.RoleBase, false},
		{"mobile", []string{"--mobile"}, config.RoleMobile, false},
		{"single dash", []string{"-base"}, config.RoleBase, false},
		{"none", nil, "", true},
		{"both", []string{"--base", "--mobile"}, "", true},
		{"repeated", []string{"--base", "--base"}, "", true},
		{"unknown flag", []string{"--relay"}, "", true},
		{"positional", []string{"base"}, "", true},
		{"extra positional", []string{"--base", "extra"}, "", true},
		{"explicit false", []string{"--base=false"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRole(tt.args)
			if tt.wantErr {
				if !errors.Is(err, errUsage) {
					t.Fatalf("parseRole(%q) err = %v, want errUsage", tt.args, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRole(%q): %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("parseRole(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
