package cipher

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrConfigUnreadable = errors.New("encrypted config could not be read")

// FailureRecorder counts configs that could not be decrypted or parsed.
type FailureRecorder interface {
	IncConfigDecryptFailure(kind string)
}

// ConfigDecoder turns encrypted JSON configs into maps. When strict is false a
// config that fails to decrypt or parse decodes to an empty map; the failure
// is still logged and counted.
type ConfigDecoder struct {
	cipher   Cipher
	strict   bool
	logger   *zap.Logger
	failures FailureRecorder
}

func NewConfigDecoder(c Cipher, strict bool, logger *zap.Logger, failures FailureRecorder) *ConfigDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigDecoder{cipher: c, strict: strict, logger: logger, failures: failures}
}

// Decode returns the config stored in ciphertext. kind and id only label logs
// and metrics. An absent ciphertext is an empty config.
func (d *ConfigDecoder) Decode(kind, id string, ciphertext *string) (map[string]any, error) {
	plaintext, ok, err := DecryptOptional(d.cipher, ciphertext)
	if err != nil {
		return d.fail(kind, id, fmt.Errorf("decrypt: %w", err))
	}
	if !ok {
		return map[string]any{}, nil
	}

	config := map[string]any{}
	if err := json.Unmarshal([]byte(plaintext), &config); err != nil {
		return d.fail(kind, id, fmt.Errorf("parse: %w", err))
	}
	if config == nil {
		config = map[string]any{}
	}
	return config, nil
}

// Encode encrypts config as JSON. An empty config encodes to nil.
func (d *ConfigDecoder) Encode(config map[string]any) (*string, error) {
	if len(config) == 0 {
		return nil, nil
	}
	if d.cipher == nil {
		return nil, ErrDisabled
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	ciphertext, err := d.cipher.Encrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt config: %w", err)
	}
	return &ciphertext, nil
}

func (d *ConfigDecoder) fail(kind, id string, err error) (map[string]any, error) {
	if d.failures != nil {
		d.failures.IncConfigDecryptFailure(kind)
	}
	if d.strict {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrConfigUnreadable, kind, id, err)
	}

	d.logger.Warn("encrypted config unreadable, using empty config",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Error(err),
	)
	return map[string]any{}, nil
}
