package graph

import (
	"errors"
	"testing"

	"graphdock"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
)

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "5.26.0", want: 5},
		{in: "4.4.12", want: 4},
		{in: "5", want: 5},
		{in: " 5.26.0\n", want: 5},
		{in: "", wantErr: true},
		{in: "dev", wantErr: true},
	}
	for _, tt := range tests {
		got, err := MajorVersion(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("MajorVersion(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("MajorVersion(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("MajorVersion(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClassify_CredentialRejection(t *testing.T) {
	err := classify(&db.Neo4jError{Code: "Neo.ClientError.Security.Unauthorized", Msg: "wrong password"})
	if !errors.Is(err, graphdock.ErrAuthMismatch) {
		t.Errorf("got %v, want ErrAuthMismatch", err)
	}
}

func TestClassify_OtherErrorsPassThrough(t *testing.T) {
	transient := &db.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable", Msg: "starting"}
	if err := classify(transient); errors.Is(err, graphdock.ErrAuthMismatch) {
		t.Errorf("transient server error misclassified: %v", err)
	}

	plain := errors.New("connection refused")
	if got := classify(plain); got != plain {
		t.Errorf("plain error should pass through unchanged, got %v", got)
	}
}
