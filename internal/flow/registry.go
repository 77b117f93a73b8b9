package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/domain"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"go.uber.org/zap"
)

const configKindFlow = "flow"

// ResolvedFlow is a flow ready for execution: executable content and version
// come from the system script registry for system flows.
type ResolvedFlow struct {
	Flow       domain.Flow
	Content    string
	Version    int
	ScriptName string
	Config     map[string]any
}

func (f *ResolvedFlow) FlowType() domain.FlowType {
	if f == nil || f.Flow.Source == nil {
		return domain.FlowTypeUser
	}
	return f.Flow.Source.FlowType()
}

// Registry resolves flow definitions and their encrypted configs.
type Registry struct {
	flows   repository.FlowRepository
	scripts repository.SystemScriptRepository
	configs *cipher.ConfigDecoder
	logger  *zap.Logger
	now     func() time.Time
}

func NewRegistry(
	flows repository.FlowRepository,
	scripts repository.SystemScriptRepository,
	configs *cipher.ConfigDecoder,
	logger *zap.Logger,
) (*Registry, error) {
	if flows == nil {
		return nil, fmt.Errorf("flow repository is required")
	}
	if scripts == nil {
		return nil, fmt.Errorf("system script repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config decoder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		flows:   flows,
		scripts: scripts,
		configs: configs,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// GetFlow loads a flow by GUID and resolves its executable content.
func (r *Registry) GetFlow(ctx context.Context, flowGUID string) (*ResolvedFlow, error) {
	if strings.TrimSpace(flowGUID) == "" {
		return nil, fmt.Errorf("%w: flowGuid is required", domain.ErrValidation)
	}

	f, err := r.flows.GetByGUID(ctx, flowGUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: flow %s", domain.ErrNotFound, flowGUID)
		}
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	return r.resolve(ctx, f)
}

// ResolveForStream picks the flow for a stream type, preferring one owned by
// org over a global one.
func (r *Registry) ResolveForStream(ctx context.Context, org, streamType string) (*ResolvedFlow, error) {
	candidates, err := r.flows.FindForStream(ctx, org, streamType)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows for stream: %w", err)
	}

	var global *domain.Flow
	for i := range candidates {
		f := &candidates[i]
		if !f.AccessibleBy(org) {
			continue
		}
		if !f.SystemGlobal {
			return r.resolve(ctx, f)
		}
		if global == nil {
			global = f
		}
	}
	if global == nil {
		return nil, fmt.Errorf("%w: no flow for stream %q", domain.ErrNotFound, streamType)
	}
	return r.resolve(ctx, global)
}

// SaveFlow validates and stores a flow, encrypting config.
func (r *Registry) SaveFlow(ctx context.Context, f *domain.Flow, config map[string]any) error {
	if f == nil {
		return fmt.Errorf("%w: flow is required", domain.ErrValidation)
	}
	if f.Version <= 0 {
		f.Version = 1
	}
	if err := f.Validate(); err != nil {
		return err
	}

	if ref, ok := f.Source.(domain.SystemScriptRef); ok {
		if _, err := r.scripts.GetByName(ctx, ref.Name); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: unknown system script %q", domain.ErrValidation, ref.Name)
			}
			return fmt.Errorf("failed to load system script: %w", err)
		}
	}

	ciphertext, err := r.configs.Encode(config)
	if err != nil {
		return err
	}
	f.ConfigCipher = ciphertext
	f.UpdatedAt = r.now().UTC()

	if err := r.flows.Save(ctx, f); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	return nil
}

func (r *Registry) resolve(ctx context.Context, f *domain.Flow) (*ResolvedFlow, error) {
	resolved := &ResolvedFlow{Flow: *f, Version: f.Version}

	switch src := f.Source.(type) {
	case domain.UserScript:
		resolved.Content = src.Content
	case domain.SystemScriptRef:
		script, err := r.scripts.GetByName(ctx, src.Name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: system script %q for flow %s", domain.ErrNotFound, src.Name, f.FlowGUID)
			}
			return nil, fmt.Errorf("failed to load system script: %w", err)
		}
		resolved.Content = script.Content
		resolved.Version = script.Version
		resolved.ScriptName = script.Name
	default:
		return nil, fmt.Errorf("%w: flow %s has no source", domain.ErrValidation, f.FlowGUID)
	}

	config, err := r.configs.Decode(configKindFlow, f.FlowGUID, f.ConfigCipher)
	if err != nil {
		return nil, err
	}
	resolved.Config = config

	return resolved, nil
}
