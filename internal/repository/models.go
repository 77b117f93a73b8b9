package repository

import (
	"encoding/json"
	"time"

	"github.com/kursadbilgin/import-engine/internal/domain"
	"gorm.io/datatypes"
)

// ImportBatchModel is the persistence model for the import_batches table.
type ImportBatchModel struct {
	ImportBatchGUID             string               `gorm:"column:import_batch_guid;type:uuid;primaryKey"`
	OrgInternalName             string               `gorm:"type:varchar(255);not null;index"`
	FacilityID                  *string              `gorm:"column:facility_id;type:varchar(255)"`
	BatchName                   string               `gorm:"type:varchar(255);not null"`
	BatchSource                 domain.BatchSource   `gorm:"type:varchar(32);not null"`
	BatchSourceIDs              datatypes.JSON       `gorm:"column:batch_source_ids;type:jsonb"`
	BatchDataType               domain.BatchDataType `gorm:"type:varchar(16);not null"`
	BatchDataTypeOptions        datatypes.JSONMap    `gorm:"type:jsonb"`
	RequiresDataEntry           bool                 `gorm:"not null;default:false"`
	FlowGUID                    *string              `gorm:"column:flow_guid;type:uuid"`
	DataEntryFormDefinitionName *string              `gorm:"type:varchar(255)"`
	ProcessingType              string               `gorm:"type:varchar(16);not null"`
	BatchStatus                 domain.BatchStatus   `gorm:"type:varchar(20);not null"`
	StatusCounts                datatypes.JSON       `gorm:"type:jsonb"`
	SearchKey                   *string              `gorm:"type:varchar(255)"`
	AssignedTo                  *string              `gorm:"type:varchar(255)"`
	NextRecordIndex             int                  `gorm:"not null;default:0"`
	ReceivedAt                  time.Time            `gorm:"type:timestamptz;not null"`
	CreatedAt                   time.Time
	LastUpdatedAt               time.Time `gorm:"autoUpdateTime"`
	CompletedAt                 *time.Time
}

func (ImportBatchModel) TableName() string {
	return "import_batches"
}

// ImportBatchRecordModel is the persistence model for import_batch_records.
// Record payloads live in blob storage and are not part of this row.
type ImportBatchRecordModel struct {
	ImportBatchGUID         string                `gorm:"column:import_batch_guid;type:uuid;primaryKey"`
	RecordIndex             int                   `gorm:"primaryKey;autoIncrement:false"`
	ImportBatchRecordGUID   string                `gorm:"column:import_batch_record_guid;type:uuid;not null;uniqueIndex"`
	OrgInternalName         string                `gorm:"type:varchar(255);not null"`
	FacilityID              *string               `gorm:"column:facility_id;type:varchar(255)"`
	RecordDataType          domain.RecordDataType `gorm:"type:varchar(32);not null"`
	RecordStatus            domain.RecordStatus   `gorm:"type:varchar(32);not null"`
	RecordOrder             int                   `gorm:"not null"`
	DataEntryDataIndicated  bool                  `gorm:"not null;default:false"`
	DataEntryErrorFields    datatypes.JSON        `gorm:"type:jsonb"`
	DataEntryInvalidFields  datatypes.JSON        `gorm:"type:jsonb"`
	Notes                   *string               `gorm:"type:text"`
	DiscardReason           *string               `gorm:"type:text"`
	PageUpdateResults       datatypes.JSON        `gorm:"type:jsonb"`
	SearchKey               *string               `gorm:"type:varchar(255)"`
	SecondarySearchKey      *string               `gorm:"type:varchar(255)"`
	ProcessingFailureReason *string               `gorm:"type:text"`
	LinkedEncounterIDs      datatypes.JSON        `gorm:"column:linked_encounter_ids;type:jsonb"`
	CreatedAt               time.Time
	LastUpdatedAt           time.Time `gorm:"autoUpdateTime"`
	CompletedAt             *time.Time
	ProcessingStartedAt     *time.Time
}

func (ImportBatchRecordModel) TableName() string {
	return "import_batch_records"
}

// FlowModel is the persistence model for flows. FlowContent holds the script
// for user flows and the system script name for system flows.
type FlowModel struct {
	FlowGUID        string          `gorm:"column:flow_guid;type:uuid;primaryKey"`
	OrgInternalName string          `gorm:"type:varchar(255);not null;default:''"`
	SystemGlobal    bool            `gorm:"not null;default:false"`
	FlowName        string          `gorm:"type:varchar(255);not null"`
	FlowType        domain.FlowType `gorm:"type:varchar(16);not null"`
	FlowContent     string          `gorm:"type:text;not null"`
	StreamType      string          `gorm:"type:varchar(64)"`
	Version         int             `gorm:"not null;default:1"`
	ConfigCipher    *string         `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (FlowModel) TableName() string {
	return "flows"
}

// SystemScriptModel is the persistence model for built-in scripts.
type SystemScriptModel struct {
	Name      string `gorm:"type:varchar(255);primaryKey"`
	Content   string `gorm:"type:text;not null"`
	Version   int    `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

func (SystemScriptModel) TableName() string {
	return "system_scripts"
}

// BatchTemplateModel is the persistence model for batch_templates.
type BatchTemplateModel struct {
	TemplateGUID                string               `gorm:"column:template_guid;type:uuid;primaryKey"`
	OrgInternalName             string               `gorm:"type:varchar(255);not null;default:''"`
	SystemGlobal                bool                 `gorm:"not null;default:false"`
	TemplateName                string               `gorm:"type:varchar(255);not null"`
	BatchDataType               domain.BatchDataType `gorm:"type:varchar(16);not null"`
	BatchDataTypeOptions        datatypes.JSONMap    `gorm:"type:jsonb"`
	RequiresDataEntry           bool                 `gorm:"not null;default:false"`
	FlowGUID                    *string              `gorm:"column:flow_guid;type:uuid"`
	DataEntryFormDefinitionName *string              `gorm:"type:varchar(255)"`
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

func (BatchTemplateModel) TableName() string {
	return "batch_templates"
}

// FaxLineModel is the persistence model for fax_lines.
type FaxLineModel struct {
	FaxLineID       string  `gorm:"column:fax_line_id;type:varchar(64);primaryKey"`
	OrgInternalName string  `gorm:"type:varchar(255);not null"`
	FacilityID      *string `gorm:"column:facility_id;type:varchar(255)"`
	PhoneNumber     string  `gorm:"type:varchar(32);not null"`
	TemplateGUID    *string `gorm:"column:template_guid;type:uuid"`
	ConfigCipher    *string `gorm:"type:text"`
	CreatedAt       time.Time
}

func (FaxLineModel) TableName() string {
	return "fax_lines"
}

// FtpSiteModel is the persistence model for ftp_sites.
type FtpSiteModel struct {
	FtpSiteID       string  `gorm:"column:ftp_site_id;type:varchar(64);primaryKey"`
	OrgInternalName string  `gorm:"type:varchar(255);not null"`
	FacilityID      *string `gorm:"column:facility_id;type:varchar(255)"`
	Hostname        string  `gorm:"type:varchar(255);not null"`
	Username        string  `gorm:"type:varchar(255)"`
	TemplateGUID    *string `gorm:"column:template_guid;type:uuid"`
	ConfigCipher    *string `gorm:"type:text"`
	CreatedAt       time.Time
}

func (FtpSiteModel) TableName() string {
	return "ftp_sites"
}

// InboundArtifactModel is the persistence model for inbound_artifacts.
type InboundArtifactModel struct {
	ArtifactGUID         string                `gorm:"column:artifact_guid;type:uuid;primaryKey"`
	Source               domain.ArtifactSource `gorm:"type:varchar(8);not null"`
	SourceID             string                `gorm:"column:source_id;type:varchar(64);not null;index"`
	OrgInternalName      string                `gorm:"type:varchar(255);not null"`
	FileName             string                `gorm:"type:varchar(512)"`
	BlobKey              string                `gorm:"type:varchar(1024);not null"`
	ContentLength        int64                 `gorm:"not null"`
	ReceivedAt           time.Time             `gorm:"type:timestamptz;not null"`
	ImportBatchGUID      *string               `gorm:"column:import_batch_guid;type:uuid"`
	BatchGenerationError *string               `gorm:"type:text"`
	CreatedAt            time.Time
}

func (InboundArtifactModel) TableName() string {
	return "inbound_artifacts"
}

// AuditEventModel is the persistence model for audit_events.
type AuditEventModel struct {
	EventGUID                  string                `gorm:"column:event_guid;type:uuid;primaryKey"`
	EventType                  domain.AuditEventType `gorm:"type:varchar(64);not null"`
	ImportBatchGUID            string                `gorm:"column:import_batch_guid;type:uuid;not null;index"`
	ImportBatchRecordGUID      string                `gorm:"column:import_batch_record_guid;type:uuid"`
	ImportBatchGUIDRecordIndex string                `gorm:"column:import_batch_guid_record_index;type:varchar(64);not null"`
	OrgInternalName            string                `gorm:"type:varchar(255);not null"`
	EventData                  datatypes.JSONMap     `gorm:"type:jsonb"`
	CreatedAt                  time.Time
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}

func encodeJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func decodeJSON[T any](raw datatypes.JSON) T {
	var out T
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func batchModelFromDomain(b *domain.ImportBatch) *ImportBatchModel {
	if b == nil {
		return nil
	}

	return &ImportBatchModel{
		ImportBatchGUID:             b.ImportBatchGUID,
		OrgInternalName:             b.OrgInternalName,
		FacilityID:                  b.FacilityID,
		BatchName:                   b.BatchName,
		BatchSource:                 b.BatchSource,
		BatchSourceIDs:              encodeJSON(b.BatchSourceIDs),
		BatchDataType:               b.BatchDataType,
		BatchDataTypeOptions:        datatypes.JSONMap(b.BatchDataTypeOptions),
		RequiresDataEntry:           b.RequiresDataEntry,
		FlowGUID:                    b.FlowGUID,
		DataEntryFormDefinitionName: b.DataEntryFormDefinitionName,
		ProcessingType:              b.ProcessingType,
		BatchStatus:                 b.BatchStatus,
		StatusCounts:                encodeJSON(b.StatusCounts.AsMap()),
		SearchKey:                   b.SearchKey,
		AssignedTo:                  b.AssignedTo,
		NextRecordIndex:             b.NextRecordIndex,
		ReceivedAt:                  b.ReceivedAt,
		CreatedAt:                   b.CreatedAt,
		LastUpdatedAt:               b.LastUpdatedAt,
		CompletedAt:                 b.CompletedAt,
	}
}

func batchModelToDomain(m *ImportBatchModel) *domain.ImportBatch {
	if m == nil {
		return nil
	}

	counts := domain.StatusCounts{}
	for status, n := range decodeJSON[map[string]int](m.StatusCounts) {
		counts[domain.RecordStatus(status)] = n
	}

	return &domain.ImportBatch{
		ImportBatchGUID:             m.ImportBatchGUID,
		OrgInternalName:             m.OrgInternalName,
		FacilityID:                  m.FacilityID,
		BatchName:                   m.BatchName,
		BatchSource:                 m.BatchSource,
		BatchSourceIDs:              decodeJSON[map[string]string](m.BatchSourceIDs),
		BatchDataType:               m.BatchDataType,
		BatchDataTypeOptions:        map[string]any(m.BatchDataTypeOptions),
		RequiresDataEntry:           m.RequiresDataEntry,
		FlowGUID:                    m.FlowGUID,
		DataEntryFormDefinitionName: m.DataEntryFormDefinitionName,
		ProcessingType:              m.ProcessingType,
		BatchStatus:                 m.BatchStatus,
		StatusCounts:                counts,
		SearchKey:                   m.SearchKey,
		AssignedTo:                  m.AssignedTo,
		NextRecordIndex:             m.NextRecordIndex,
		ReceivedAt:                  m.ReceivedAt,
		CreatedAt:                   m.CreatedAt,
		LastUpdatedAt:               m.LastUpdatedAt,
		CompletedAt:                 m.CompletedAt,
	}
}

func recordModelFromDomain(r *domain.ImportBatchRecord) *ImportBatchRecordModel {
	if r == nil {
		return nil
	}

	return &ImportBatchRecordModel{
		ImportBatchGUID:         r.ImportBatchGUID,
		RecordIndex:             r.RecordIndex,
		ImportBatchRecordGUID:   r.ImportBatchRecordGUID,
		OrgInternalName:         r.OrgInternalName,
		FacilityID:              r.FacilityID,
		RecordDataType:          r.RecordDataType,
		RecordStatus:            r.RecordStatus,
		RecordOrder:             r.RecordOrder,
		DataEntryDataIndicated:  r.DataEntryDataIndicated,
		DataEntryErrorFields:    encodeJSON(r.DataEntryErrorFields),
		DataEntryInvalidFields:  encodeJSON(r.DataEntryInvalidFields),
		Notes:                   r.Notes,
		DiscardReason:           r.DiscardReason,
		PageUpdateResults:       encodeJSON(r.PageUpdateResults),
		SearchKey:               r.SearchKey,
		SecondarySearchKey:      r.SecondarySearchKey,
		ProcessingFailureReason: r.ProcessingFailureReason,
		LinkedEncounterIDs:      encodeJSON(r.LinkedEncounterIDs),
		CreatedAt:               r.CreatedAt,
		LastUpdatedAt:           r.LastUpdatedAt,
		CompletedAt:             r.CompletedAt,
		ProcessingStartedAt:     r.ProcessingStartedAt,
	}
}

func recordModelToDomain(m *ImportBatchRecordModel) *domain.ImportBatchRecord {
	if m == nil {
		return nil
	}

	return &domain.ImportBatchRecord{
		ImportBatchGUID:         m.ImportBatchGUID,
		RecordIndex:             m.RecordIndex,
		ImportBatchRecordGUID:   m.ImportBatchRecordGUID,
		OrgInternalName:         m.OrgInternalName,
		FacilityID:              m.FacilityID,
		RecordDataType:          m.RecordDataType,
		RecordStatus:            m.RecordStatus,
		RecordOrder:             m.RecordOrder,
		DataEntryDataIndicated:  m.DataEntryDataIndicated,
		DataEntryErrorFields:    decodeJSON[[]string](m.DataEntryErrorFields),
		DataEntryInvalidFields:  decodeJSON[[]string](m.DataEntryInvalidFields),
		Notes:                   m.Notes,
		DiscardReason:           m.DiscardReason,
		PageUpdateResults:       decodeJSON[map[string]domain.PageUpdateResult](m.PageUpdateResults),
		SearchKey:               m.SearchKey,
		SecondarySearchKey:      m.SecondarySearchKey,
		ProcessingFailureReason: m.ProcessingFailureReason,
		LinkedEncounterIDs:      decodeJSON[[]string](m.LinkedEncounterIDs),
		CreatedAt:               m.CreatedAt,
		LastUpdatedAt:           m.LastUpdatedAt,
		CompletedAt:             m.CompletedAt,
		ProcessingStartedAt:     m.ProcessingStartedAt,
	}
}

func flowModelFromDomain(f *domain.Flow) *FlowModel {
	if f == nil {
		return nil
	}

	m := &FlowModel{
		FlowGUID:        f.FlowGUID,
		OrgInternalName: f.OrgInternalName,
		SystemGlobal:    f.SystemGlobal,
		FlowName:        f.FlowName,
		StreamType:      f.StreamType,
		Version:         f.Version,
		ConfigCipher:    f.ConfigCipher,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
	switch src := f.Source.(type) {
	case domain.UserScript:
		m.FlowType = domain.FlowTypeUser
		m.FlowContent = src.Content
	case domain.SystemScriptRef:
		m.FlowType = domain.FlowTypeSystem
		m.FlowContent = src.Name
	}
	return m
}

func flowModelToDomain(m *FlowModel) *domain.Flow {
	if m == nil {
		return nil
	}

	var source domain.FlowSource = domain.UserScript{Content: m.FlowContent}
	if m.FlowType == domain.FlowTypeSystem {
		source = domain.SystemScriptRef{Name: m.FlowContent}
	}

	return &domain.Flow{
		FlowGUID:        m.FlowGUID,
		OrgInternalName: m.OrgInternalName,
		SystemGlobal:    m.SystemGlobal,
		FlowName:        m.FlowName,
		StreamType:      m.StreamType,
		Version:         m.Version,
		Source:          source,
		ConfigCipher:    m.ConfigCipher,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func templateModelToDomain(m *BatchTemplateModel) *domain.BatchTemplate {
	if m == nil {
		return nil
	}

	return &domain.BatchTemplate{
		TemplateGUID:                m.TemplateGUID,
		OrgInternalName:             m.OrgInternalName,
		SystemGlobal:                m.SystemGlobal,
		TemplateName:                m.TemplateName,
		BatchDataType:               m.BatchDataType,
		BatchDataTypeOptions:        map[string]any(m.BatchDataTypeOptions),
		RequiresDataEntry:           m.RequiresDataEntry,
		FlowGUID:                    m.FlowGUID,
		DataEntryFormDefinitionName: m.DataEntryFormDefinitionName,
	}
}

func templateModelFromDomain(t *domain.BatchTemplate) *BatchTemplateModel {
	if t == nil {
		return nil
	}

	return &BatchTemplateModel{
		TemplateGUID:                t.TemplateGUID,
		OrgInternalName:             t.OrgInternalName,
		SystemGlobal:                t.SystemGlobal,
		TemplateName:                t.TemplateName,
		BatchDataType:               t.BatchDataType,
		BatchDataTypeOptions:        datatypes.JSONMap(t.BatchDataTypeOptions),
		RequiresDataEntry:           t.RequiresDataEntry,
		FlowGUID:                    t.FlowGUID,
		DataEntryFormDefinitionName: t.DataEntryFormDefinitionName,
	}
}

func faxLineModelToDomain(m *FaxLineModel) *domain.FaxLine {
	if m == nil {
		return nil
	}

	return &domain.FaxLine{
		FaxLineID:       m.FaxLineID,
		OrgInternalName: m.OrgInternalName,
		FacilityID:      m.FacilityID,
		PhoneNumber:     m.PhoneNumber,
		TemplateGUID:    m.TemplateGUID,
		ConfigCipher:    m.ConfigCipher,
		CreatedAt:       m.CreatedAt,
	}
}

func ftpSiteModelToDomain(m *FtpSiteModel) *domain.FtpSite {
	if m == nil {
		return nil
	}

	return &domain.FtpSite{
		FtpSiteID:       m.FtpSiteID,
		OrgInternalName: m.OrgInternalName,
		FacilityID:      m.FacilityID,
		Hostname:        m.Hostname,
		Username:        m.Username,
		TemplateGUID:    m.TemplateGUID,
		ConfigCipher:    m.ConfigCipher,
		CreatedAt:       m.CreatedAt,
	}
}

func artifactModelFromDomain(a *domain.InboundArtifact) *InboundArtifactModel {
	if a == nil {
		return nil
	}

	return &InboundArtifactModel{
		ArtifactGUID:         a.ArtifactGUID,
		Source:               a.Source,
		SourceID:             a.SourceID,
		OrgInternalName:      a.OrgInternalName,
		FileName:             a.FileName,
		BlobKey:              a.BlobKey,
		ContentLength:        a.ContentLength,
		ReceivedAt:           a.ReceivedAt,
		ImportBatchGUID:      a.ImportBatchGUID,
		BatchGenerationError: a.BatchGenerationError,
		CreatedAt:            a.CreatedAt,
	}
}

func artifactModelToDomain(m *InboundArtifactModel) *domain.InboundArtifact {
	if m == nil {
		return nil
	}

	return &domain.InboundArtifact{
		ArtifactGUID:         m.ArtifactGUID,
		Source:               m.Source,
		SourceID:             m.SourceID,
		OrgInternalName:      m.OrgInternalName,
		FileName:             m.FileName,
		BlobKey:              m.BlobKey,
		ContentLength:        m.ContentLength,
		ReceivedAt:           m.ReceivedAt,
		ImportBatchGUID:      m.ImportBatchGUID,
		BatchGenerationError: m.BatchGenerationError,
		CreatedAt:            m.CreatedAt,
	}
}

func auditEventModelFromDomain(e *domain.AuditEvent) *AuditEventModel {
	if e == nil {
		return nil
	}

	return &AuditEventModel{
		EventGUID:                  e.EventGUID,
		EventType:                  e.EventType,
		ImportBatchGUID:            e.ImportBatchGUID,
		ImportBatchRecordGUID:      e.ImportBatchRecordGUID,
		ImportBatchGUIDRecordIndex: e.ImportBatchGUIDRecordIndex,
		OrgInternalName:            e.OrgInternalName,
		EventData:                  datatypes.JSONMap(e.EventData),
		CreatedAt:                  e.CreatedAt,
	}
}

func auditEventModelToDomain(m *AuditEventModel) *domain.AuditEvent {
	if m == nil {
		return nil
	}

	return &domain.AuditEvent{
		EventGUID:                  m.EventGUID,
		EventType:                  m.EventType,
		ImportBatchGUID:            m.ImportBatchGUID,
		ImportBatchRecordGUID:      m.ImportBatchRecordGUID,
		ImportBatchGUIDRecordIndex: m.ImportBatchGUIDRecordIndex,
		OrgInternalName:            m.OrgInternalName,
		EventData:                  map[string]any(m.EventData),
		CreatedAt:                  m.CreatedAt,
	}
}
