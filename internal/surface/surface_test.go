package surface

import (
	"reflect"
	"testing"
)

func TestCommand_Validate(t *testing.T) {
	valid := []Command{
		{Kind: KindPointer, Action: "left_click", X: 10, Y: 20},
		{Kind: KindKey, Keys: []string{"ctrl", "c"}},
		{Kind: KindText, Text: "hello"},
		{Kind: KindWait, Seconds: 1.5},
		{Kind: KindScript, Script: "ls"},
	}
	for _, cmd := range valid {
		if err := cmd.Validate(); err != nil {
			t.Errorf("Command %+v should validate: %v", cmd, err)
		}
	}

	invalid := []Command{
		{Kind: KindPointer},
		{Kind: KindKey},
		{Kind: KindText},
		{Kind: KindWait, Seconds: 0},
		{Kind: KindWait, Seconds: -1},
		{Kind: KindScript},
		{Kind: "teleport"},
		{},
	}
	for _, cmd := range invalid {
		if err := cmd.Validate(); err == nil {
			t.Errorf("Command %+v should not validate", cmd)
		}
	}
}

func TestCommand_Payload(t *testing.T) {
	cases := []struct {
		cmd  Command
		want string
	}{
		{Command{Kind: KindScript, Script: "rm -rf /tmp/x"}, "rm -rf /tmp/x"},
		{Command{Kind: KindText, Text: "hello"}, "hello"},
		{Command{Kind: KindKey, Keys: []string{"ctrl", "alt", "t"}}, "ctrl+alt+t"},
		{Command{Kind: KindPointer, Action: "left_click"}, ""},
		{Command{Kind: KindWait, Seconds: 1}, ""},
	}
	for _, tc := range cases {
		if got := tc.cmd.Payload(); got != tc.want {
			t.Errorf("Payload(%+v): got %q, want %q", tc.cmd, got, tc.want)
		}
	}
}

func TestXdotoolArgs(t *testing.T) {
	cases := []struct {
		name string
		cmd  Command
		want []string
	}{
		{
			"left click",
			Command{Kind: KindPointer, Action: "left_click", X: 120, Y: 640},
			[]string{"mousemove", "120", "640", "click", "1"},
		},
		{
			"double click",
			Command{Kind: KindPointer, Action: "double_click", X: 5, Y: 6},
			[]string{"mousemove", "5", "6", "click", "--repeat", "2", "1"},
		},
		{
			"right click",
			Command{Kind: KindPointer, Action: "right_click", X: 1, Y: 2},
			[]string{"mousemove", "1", "2", "click", "3"},
		},
		{
			"move only",
			Command{Kind: KindPointer, Action: "move", X: 30, Y: 40},
			[]string{"mousemove", "30", "40"},
		},
		{
			"scroll up",
			Command{Kind: KindPointer, Action: "scroll", Amount: 3},
			[]string{"click", "--repeat", "3", "4"},
		},
		{
			"scroll down",
			Command{Kind: KindPointer, Action: "scroll", Amount: -2},
			[]string{"click", "--repeat", "2", "5"},
		},
		{
			"scroll default amount",
			Command{Kind: KindPointer, Action: "scroll"},
			[]string{"click", "--repeat", "1", "4"},
		},
		{
			"key chord",
			Command{Kind: KindKey, Keys: []string{"ctrl", "shift", "t"}},
			[]string{"key", "ctrl+shift+t"},
		},
		{
			"type text",
			Command{Kind: KindText, Text: "2+2="},
			[]string{"type", "--delay", "30", "2+2="},
		},
	}
	for _, tc := range cases {
		got, err := xdotoolArgs(tc.cmd)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	if _, err := xdotoolArgs(Command{Kind: KindPointer, Action: "hover"}); err == nil {
		t.Error("Expected an error for an unknown pointer action")
	}
	if _, err := xdotoolArgs(Command{Kind: KindWait, Seconds: 1}); err == nil {
		t.Error("Expected an error for a kind with no xdotool mapping")
	}
}
