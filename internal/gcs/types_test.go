package gcs

import (
	"errors"
	"testing"
)

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://ledger/raw/2024/jan.csv", wantBucket: "ledger", wantObject: "raw/2024/jan.csv"},
		{uri: "gs://ledger/jan.csv", wantBucket: "ledger", wantObject: "jan.csv"},
		{uri: "gs://ledger", wantErr: true},
		{uri: "gs://ledger/", wantErr: true},
		{uri: "gs:///jan.csv", wantErr: true},
		{uri: "/tmp/jan.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURI) {
					t.Errorf("ParseGCSURI() error = %v, want ErrInvalidURI", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGCSURI() error = %v", err)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI() = (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.csv": "file.csv",
		"gs://bucket/file.xlsx":       "file.xlsx",
		"gs://bucket":                 "bucket",
	}
	for uri, want := range tests {
		if got := ExtractFilenameFromGCSURI(uri); got != want {
			t.Errorf("ExtractFilenameFromGCSURI(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		prefix string
		elems  []string
		want   string
	}{
		{prefix: "exports", elems: []string{"run-1", "bronze.csv"}, want: "exports/run-1/bronze.csv"},
		{prefix: "", elems: []string{"run-1", "silver.csv"}, want: "run-1/silver.csv"},
		{prefix: "/exports/", elems: []string{"run-1"}, want: "exports/run-1"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.prefix, tt.elems...); got != tt.want {
			t.Errorf("ObjectName(%q, %v) = %q, want %q", tt.prefix, tt.elems, got, tt.want)
		}
	}
}
