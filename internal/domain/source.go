package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchTemplate describes how batches from a source adapter are shaped.
type BatchTemplate struct {
	TemplateGUID                string
	OrgInternalName             string
	SystemGlobal                bool
	TemplateName                string
	BatchDataType               BatchDataType
	BatchDataTypeOptions        map[string]any
	RequiresDataEntry           bool
	FlowGUID                    *string
	DataEntryFormDefinitionName *string
}

// AccessibleBy reports whether orgInternalName may use the template.
func (t *BatchTemplate) AccessibleBy(orgInternalName string) bool {
	return accessible(t.SystemGlobal, t.OrgInternalName, orgInternalName)
}

// FaxLine is an inbound fax number owned by an organization.
type FaxLine struct {
	FaxLineID       string
	OrgInternalName string
	FacilityID      *string
	PhoneNumber     string
	TemplateGUID    *string
	ConfigCipher    *string
	CreatedAt       time.Time
}

// FtpSite is an FTP drop location owned by an organization.
type FtpSite struct {
	FtpSiteID       string
	OrgInternalName string
	FacilityID      *string
	Hostname        string
	Username        string
	TemplateGUID    *string
	ConfigCipher    *string
	CreatedAt       time.Time
}

// ArtifactSource identifies the adapter an inbound artifact came through.
type ArtifactSource string

const (
	ArtifactSourceFax ArtifactSource = "fax"
	ArtifactSourceFtp ArtifactSource = "ftp"
)

// InboundArtifact is a raw fax or FTP file as received. Ingestion always
// persists it; batch generation outcome is annotated afterwards.
type InboundArtifact struct {
	ArtifactGUID         string
	Source               ArtifactSource
	SourceID             string
	OrgInternalName      string
	FileName             string
	BlobKey              string
	ContentLength        int64
	ReceivedAt           time.Time
	ImportBatchGUID      *string
	BatchGenerationError *string
	CreatedAt            time.Time
}

func (a *InboundArtifact) Validate() error {
	if strings.TrimSpace(a.ArtifactGUID) == "" {
		return fmt.Errorf("%w: artifactGuid is required", ErrValidation)
	}
	if a.Source != ArtifactSourceFax && a.Source != ArtifactSourceFtp {
		return fmt.Errorf("%w: invalid artifact source %q", ErrValidation, a.Source)
	}
	if strings.TrimSpace(a.SourceID) == "" {
		return fmt.Errorf("%w: sourceId is required", ErrValidation)
	}
	if strings.TrimSpace(a.BlobKey) == "" {
		return fmt.Errorf("%w: blobKey is required", ErrValidation)
	}
	return nil
}
