package telegram

import "testing"

func TestParseUse(t *testing.T) {
	cases := []struct {
		text    string
		userID  int64
		want    binding
		wantErr bool
	}{
		{text: "/use wf-1", userID: 7, want: binding{Owner: "tg:7", DraftID: "wf-1"}},
		{text: "/use wf-1 alice", userID: 7, want: binding{Owner: "alice", DraftID: "wf-1"}},
		{text: "/use  wf-2   bob", userID: 9, want: binding{Owner: "bob", DraftID: "wf-2"}},
		{text: "/use", userID: 7, wantErr: true},
	}
	for _, c := range cases {
		got, err := parseUse(c.text, c.userID)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseUse(%q) expected error", c.text)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUse(%q): %v", c.text, err)
			continue
		}
		if got != c.want {
			t.Errorf("parseUse(%q) = %+v, want %+v", c.text, got, c.want)
		}
	}
}
