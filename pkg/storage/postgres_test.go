package storage

import (
	"reflect"
	"testing"
	"time"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "single URL",
			input: "postgres://replica1:5432/pariksha",
			want:  []string{"postgres://replica1:5432/pariksha"},
		},
		{
			name:  "multiple URLs",
			input: "postgres://replica1:5432/pariksha,postgres://replica2:5432/pariksha",
			want:  []string{"postgres://replica1:5432/pariksha", "postgres://replica2:5432/pariksha"},
		},
		{
			name:  "whitespace and empty entries",
			input: " postgres://replica1:5432/pariksha , ,postgres://replica2:5432/pariksha ",
			want:  []string{"postgres://replica1:5432/pariksha", "postgres://replica2:5432/pariksha"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReplicaURLs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseReplicaURLs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConnectionConfigFromStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostgresURL = "postgres://primary:5432/pariksha"
	cfg.PostgresReplicaURLs = "postgres://r1:5432/pariksha,postgres://r2:5432/pariksha"

	cc := ConnectionConfigFromStorage(cfg)

	if cc.PrimaryURL != cfg.PostgresURL {
		t.Errorf("PrimaryURL = %s, want %s", cc.PrimaryURL, cfg.PostgresURL)
	}
	if len(cc.ReplicaURLs) != 2 {
		t.Errorf("expected 2 replica URLs, got %d", len(cc.ReplicaURLs))
	}
	if cc.MaxConns != 20 || cc.MinConns != 2 {
		t.Errorf("pool sizes not carried over: max=%d min=%d", cc.MaxConns, cc.MinConns)
	}
	if cc.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cc.Timeout)
	}
}
