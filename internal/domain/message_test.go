package domain

import (
	"errors"
	"testing"
	"time"
)

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		message Message
		wantErr bool
	}{
		{
			name: "valid message",
			message: Message{
				ID:         "msg-1",
				Sender:     "5511999990000",
				Chat:       "5511999990000@c.us",
				Text:       "oi",
				ReceivedAt: time.Now(),
			},
			wantErr: false,
		},
		{
			name:    "missing id",
			message: Message{Sender: "5511999990000", Text: "oi"},
			wantErr: true,
		},
		{
			name:    "missing sender",
			message: Message{ID: "msg-1", Text: "oi"},
			wantErr: true,
		},
		{
			name:    "empty text is allowed",
			message: Message{ID: "msg-1", Sender: "5511999990000"},
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.message.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSessionStateParsing(t *testing.T) {
	t.Parallel()

	state, err := ParseSessionStateFromString(" open ")
	if err != nil {
		t.Fatalf("ParseSessionStateFromString() error = %v", err)
	}
	if state != SessionOpen {
		t.Fatalf("state = %s, want OPEN", state)
	}

	if _, err := ParseSessionStateFromString("dangling"); err == nil {
		t.Fatal("expected error for unknown state")
	}

	if !SessionLoggedOut.Terminal() {
		t.Fatal("LOGGED_OUT must be terminal")
	}
	if SessionClosed.Terminal() {
		t.Fatal("CLOSED must not be terminal")
	}
}
