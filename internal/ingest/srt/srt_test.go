package srt

import "testing"

func TestExtractStreamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple key", streamID: "camera1", want: "camera1"},
		{name: "leading slash", streamID: "/camera1", want: "camera1"},
		{name: "live prefix", streamID: "live/camera1", want: "camera1"},
		{name: "slash and live prefix", streamID: "/live/camera1", want: "camera1"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just live/ returns default", streamID: "live/", want: "default"},
		{name: "nested path preserved", streamID: "studio/camera1", want: "studio/camera1"},
		{name: "live in name preserved", streamID: "liveshow", want: "liveshow"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extractStreamKey(tc.streamID)
			if got != tc.want {
				t.Errorf("extractStreamKey(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

func TestParseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Endpoint
		wantErr bool
	}{
		{name: "with stream id", in: "srt://10.0.0.5:6000?streamid=live/cam1", want: Endpoint{Address: "10.0.0.5:6000", StreamID: "live/cam1"}},
		{name: "bare", in: "srt://localhost:9000", want: Endpoint{Address: "localhost:9000"}},
		{name: "missing port", in: "srt://localhost", wantErr: true},
		{name: "wrong scheme", in: "udp://localhost:9000", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseURL(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseURL(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseURL(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	t.Parallel()
	if !IsURL("srt://host:1") {
		t.Error("srt URL not recognized")
	}
	if IsURL("movie.ts") {
		t.Error("file path treated as SRT URL")
	}
}
