package domain

import (
	"fmt"
	"strings"
	"time"
)

// FlowType distinguishes user-authored flows from built-in system scripts.
type FlowType string

const (
	FlowTypeUser   FlowType = "user"
	FlowTypeSystem FlowType = "system"
)

func (t FlowType) String() string { return string(t) }

func (t FlowType) IsValid() bool {
	switch t {
	case FlowTypeUser, FlowTypeSystem:
		return true
	}
	return false
}

// FlowSource is where the executable content of a flow comes from.
// It is either a UserScript or a SystemScriptRef.
type FlowSource interface {
	FlowType() FlowType
	isFlowSource()
}

// UserScript carries its script content inline.
type UserScript struct {
	Content string
}

func (UserScript) FlowType() FlowType { return FlowTypeUser }
func (UserScript) isFlowSource()      {}

// SystemScriptRef names a script held by the system script registry.
type SystemScriptRef struct {
	Name string
}

func (SystemScriptRef) FlowType() FlowType { return FlowTypeSystem }
func (SystemScriptRef) isFlowSource()      {}

// Flow is a versioned script definition scoped to an organization or shared globally.
type Flow struct {
	FlowGUID        string
	OrgInternalName string
	SystemGlobal    bool
	FlowName        string
	StreamType      string
	Version         int
	Source          FlowSource
	ConfigCipher    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (f *Flow) Validate() error {
	if strings.TrimSpace(f.FlowGUID) == "" {
		return fmt.Errorf("%w: flowGuid is required", ErrValidation)
	}
	if strings.TrimSpace(f.FlowName) == "" {
		return fmt.Errorf("%w: flowName is required", ErrValidation)
	}
	if !f.SystemGlobal && strings.TrimSpace(f.OrgInternalName) == "" {
		return fmt.Errorf("%w: orgInternalName is required for non-global flows", ErrValidation)
	}
	switch src := f.Source.(type) {
	case UserScript:
		if strings.TrimSpace(src.Content) == "" {
			return fmt.Errorf("%w: flow content is required", ErrValidation)
		}
	case SystemScriptRef:
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("%w: system script name is required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: flow source is required", ErrValidation)
	}
	return nil
}

// AccessibleBy reports whether orgInternalName may use the flow.
func (f *Flow) AccessibleBy(orgInternalName string) bool {
	return accessible(f.SystemGlobal, f.OrgInternalName, orgInternalName)
}

// SystemScript is a built-in script addressed by name.
type SystemScript struct {
	Name      string
	Content   string
	Version   int
	UpdatedAt time.Time
}

func accessible(systemGlobal bool, owner, requester string) bool {
	if systemGlobal {
		return true
	}
	return owner != "" && owner == requester
}
