// Package domain holds the entities of the run lifecycle engine. These are
// plain structs with no persistence or transport concerns; store and
// httpapi map to/from them.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Robot is a named, versioned automation unit. Name is unique globally.
type Robot struct {
	ID        uuid.UUID
	Name      string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is the release channel of a RobotVersion.
type Channel string

const (
	ChannelStable Channel = "stable"
	ChannelBeta   Channel = "beta"
	ChannelHotfix Channel = "hotfix"
)

// ArtifactKind is the packaging format of a robot's published artifact.
type ArtifactKind string

const (
	ArtifactKindZip ArtifactKind = "zip"
	ArtifactKindExe ArtifactKind = "exe"
)

// EntrypointKind selects how the worker invokes the entrypoint file.
type EntrypointKind string

const (
	EntrypointScript EntrypointKind = "script"
	EntrypointBinary EntrypointKind = "binary"
)

// CreatedSource distinguishes versions published by a human from those
// published by CI through the deploy token route.
type CreatedSource string

const (
	CreatedSourceUser CreatedSource = "user"
	CreatedSourceCI   CreatedSource = "ci"
)

// SourceMeta captures provenance for CI-published versions. Fields are
// empty for user-published versions.
type SourceMeta struct {
	Commit        string
	Branch        string
	BuildURL      string
	CreatedSource CreatedSource
}

// RobotVersion is one publish of a Robot's artifact. (robot, version) is
// unique; at most one version per robot has IsActive set.
type RobotVersion struct {
	ID                uuid.UUID
	RobotID           uuid.UUID
	Version           string // SemVer
	Channel           Channel
	ArtifactKind      ArtifactKind
	ArtifactDigest    string // sha256 hex
	EntrypointKind    EntrypointKind
	EntrypointPath    string
	DefaultArguments  []string
	DefaultEnv        map[string]string
	WorkingDir        string
	RequiredEnvKeys   []string
	SourceMeta        SourceMeta
	Changelog         string
	IsActive          bool
	CreatedBy         uuid.UUID
	CreatedAt         time.Time
}
