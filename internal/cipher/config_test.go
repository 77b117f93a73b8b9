package cipher

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeFailureRecorder struct {
	kinds []string
}

func (f *fakeFailureRecorder) IncConfigDecryptFailure(kind string) {
	f.kinds = append(f.kinds, kind)
}

func TestConfigDecoderRoundTrip(t *testing.T) {
	t.Parallel()

	svc, _ := NewServiceFromKey(testKey(t))
	decoder := NewConfigDecoder(svc, true, nil, nil)

	ciphertext, err := decoder.Encode(map[string]any{"endpoint": "https://ehr.example", "retries": float64(2)})
	if err != nil {
		t.Fatalf("Encode() unexpected error = %v", err)
	}
	if ciphertext == nil {
		t.Fatal("Encode() returned nil ciphertext")
	}

	config, err := decoder.Decode("flow", "f1", ciphertext)
	if err != nil {
		t.Fatalf("Decode() unexpected error = %v", err)
	}
	if config["endpoint"] != "https://ehr.example" || config["retries"] != float64(2) {
		t.Fatalf("Decode() = %v, want original config", config)
	}
}

func TestConfigDecoderAbsentCipher(t *testing.T) {
	t.Parallel()

	decoder := NewConfigDecoder(&countingCipher{}, true, nil, nil)
	config, err := decoder.Decode("flow", "f1", nil)
	if err != nil {
		t.Fatalf("Decode() unexpected error = %v", err)
	}
	if len(config) != 0 {
		t.Fatalf("Decode() = %v, want empty", config)
	}

	encoded, err := decoder.Encode(nil)
	if err != nil || encoded != nil {
		t.Fatalf("Encode(nil) = (%v, %v), want (nil, nil)", encoded, err)
	}
}

func TestConfigDecoderFailurePolicy(t *testing.T) {
	t.Parallel()

	svc, _ := NewServiceFromKey(testKey(t))
	garbage := "definitely-not-ciphertext"
	notJSON, _ := svc.Encrypt("not json")

	tests := []struct {
		name       string
		ciphertext *string
	}{
		{name: "decrypt failure", ciphertext: &garbage},
		{name: "parse failure", ciphertext: &notJSON},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, recorded := observer.New(zapcore.WarnLevel)
			recorder := &fakeFailureRecorder{}
			lenient := NewConfigDecoder(svc, false, zap.New(core), recorder)

			config, err := lenient.Decode("fax_line", "line-1", tt.ciphertext)
			if err != nil {
				t.Fatalf("lenient Decode() unexpected error = %v", err)
			}
			if len(config) != 0 {
				t.Fatalf("lenient Decode() = %v, want empty", config)
			}
			if recorded.Len() != 1 {
				t.Fatalf("warn logs = %d, want 1", recorded.Len())
			}
			if len(recorder.kinds) != 1 || recorder.kinds[0] != "fax_line" {
				t.Fatalf("failures = %v, want [fax_line]", recorder.kinds)
			}

			strict := NewConfigDecoder(svc, true, nil, nil)
			if _, err := strict.Decode("fax_line", "line-1", tt.ciphertext); !errors.Is(err, ErrConfigUnreadable) {
				t.Fatalf("strict Decode() error = %v, want ErrConfigUnreadable", err)
			}
		})
	}
}
