// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package validation

import (
	"strings"
	"testing"
)

type triggerRequest struct {
	StyleURL string `json:"style_url" validate:"omitempty,http_url"`
	MaxZoom  int    `json:"max_zoom" validate:"gte=0,lte=22"`
}

func TestValidateStructPasses(t *testing.T) {
	req := triggerRequest{StyleURL: "https://tiles.example.com/style.json", MaxZoom: 3}
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("expected valid struct, got %v", err)
	}

	// Optional field may be empty.
	if err := ValidateStruct(&triggerRequest{MaxZoom: 0}); err != nil {
		t.Errorf("expected empty optional field to pass, got %v", err)
	}
}

func TestValidateStructFails(t *testing.T) {
	tests := []struct {
		name      string
		req       triggerRequest
		wantField string
	}{
		{"bad URL", triggerRequest{StyleURL: "not a url"}, "StyleURL"},
		{"zoom too high", triggerRequest{MaxZoom: 99}, "MaxZoom"},
		{"zoom negative", triggerRequest{MaxZoom: -1}, "MaxZoom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if len(err.Errors()) == 0 {
				t.Fatal("expected field errors")
			}
			if got := err.Errors()[0].Field(); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("message %q does not mention %q", err.Error(), tt.wantField)
			}
		})
	}
}

func TestGetValidatorIsSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
