package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはrun", nil, CommandRun},
		{"空スライスはrun", []string{}, CommandRun},
		{"run指定", []string{"run"}, CommandRun},
		{"purge指定", []string{"purge"}, CommandPurge},
		{"healthcheck指定", []string{"healthcheck"}, CommandHealthcheck},
		{"未知のコマンドはrun", []string{"unknown"}, CommandRun},
		{"先頭の引数のみ解釈される", []string{"purge", "run"}, CommandPurge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.args)
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}
