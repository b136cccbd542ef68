package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestCheckHeader(t *testing.T) {
	v := StaticToken{Token: "s3cret"}
	tests := []struct {
		header string
		ok     bool
	}{
		{"Bearer s3cret", true},
		{"bearer   s3cret ", true},
		{"Bearer wrong", false},
		{"Basic s3cret", false},
		{"Bearer", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			testlog.Start(t)
			err := CheckHeader(v, tc.header)
			if (err == nil) != tc.ok {
				t.Fatalf("header=%q got=%v", tc.header, err)
			}
		})
	}
}
