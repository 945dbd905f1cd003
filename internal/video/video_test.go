package video

import (
	"reflect"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{Status(""), false},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsExternalURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://cdn.example.com/bbb/master.m3u8", true},
		{"HTTP://cdn.example.com/x.m3u8", true},
		{"/assets/abc/master.m3u8", false},
		{"", false},
		{"ftp://example.com/x", false},
		{"https:///nohost", false},
		{"httpish/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsExternalURL(tt.in); got != tt.want {
				t.Errorf("IsExternalURL(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" music ", "", "live", "music", "  "})
	want := []string{"music", "live"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags() = %v, want %v", got, want)
	}

	if got := NormalizeTags(nil); got != nil {
		t.Errorf("NormalizeTags(nil) = %v, want nil", got)
	}
}
