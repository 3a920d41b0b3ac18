package snapshot

import (
	"fmt"
	"time"

	"graphdock"
	"graphdock/graph"
)

// FormatVersion is stamped into every archive this build produces. Import
// requires an exact match, so bump it whenever the archive layout changes.
const FormatVersion = "1.0"

// Metadata describes an archive's origin and contents. It is written as
// metadata.json at the archive root and is the basis of the import
// compatibility gate.
type Metadata struct {
	FormatVersion     string    `json:"formatVersion"`
	EngineVersion     string    `json:"engineVersion"`
	Environment       string    `json:"environment"`
	ExportedAt        time.Time `json:"exportedAt"`
	NodeCount         int64     `json:"nodeCount"`
	RelationshipCount int64     `json:"relationshipCount"`
	DataSizeBytes     int64     `json:"dataSizeBytes"`
}

// Validate checks whether the archive can be loaded into an instance
// running targetVersion: archive format must match exactly, engine major
// versions must be equal. Minor and patch drift is fine because the native
// load facility handles it.
func (m Metadata) Validate(targetVersion string) error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("archive format %s does not match supported format %s: %w",
			m.FormatVersion, FormatVersion, graphdock.ErrVersionIncompatible)
	}
	archiveMajor, err := graph.MajorVersion(m.EngineVersion)
	if err != nil {
		return fmt.Errorf("archive engine version: %w", err)
	}
	targetMajor, err := graph.MajorVersion(targetVersion)
	if err != nil {
		return fmt.Errorf("target engine version: %w", err)
	}
	if archiveMajor != targetMajor {
		return fmt.Errorf("archive engine %s does not match target engine %s: %w",
			m.EngineVersion, targetVersion, graphdock.ErrVersionIncompatible)
	}
	return nil
}
