package intake

import (
	"testing"

	"github.com/emersion/go-imap"
)

func TestResolveSender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		header   string
		envelope *imap.Envelope
		want     string
	}{
		{
			name:   "from header line",
			header: "Subject: hello\r\nFrom: Alex Kim <alex.kim@city.gov>\r\nDate: today\r\n",
			want:   "alex.kim@city.gov",
		},
		{
			name:   "from header case insensitive",
			header: "FROM: bureau@state.example.org\r\n",
			want:   "bureau@state.example.org",
		},
		{
			name:   "header without address falls back to envelope",
			header: "From: undisclosed recipients\r\n",
			envelope: &imap.Envelope{From: []*imap.Address{
				{MailboxName: "alex.kim", HostName: "city.gov"},
			}},
			want: "alex.kim@city.gov",
		},
		{
			name:   "envelope display name only",
			header: "",
			envelope: &imap.Envelope{From: []*imap.Address{
				{PersonalName: "Alex Kim alex.kim@city.gov"},
			}},
			want: "alex.kim@city.gov",
		},
		{
			name:     "nothing recoverable",
			header:   "Subject: hello\r\n",
			envelope: &imap.Envelope{},
			want:     "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveSender(tc.header, tc.envelope); got != tc.want {
				t.Errorf("ResolveSender() = %q, want %q", got, tc.want)
			}
		})
	}
}
