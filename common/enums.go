package common

// SpaceEntityType distinguishes an Avatar (carries an AvatarComponent) from
// a plain Object. Numbering starts at 1, matching the original C++ source
// (csp::multiplayer::SpaceEntityType), which reserves 0 for internal use.
type SpaceEntityType uint8

const (
	SpaceEntityTypeAvatar SpaceEntityType = iota + 1
	SpaceEntityTypeObject
)

// ComponentType identifies the schema of a Component's property bag. The
// set is intentionally open (a string-backed enum, mirroring the teacher's
// `type NodeType string`): concrete per-component semantic behavior is out
// of scope for this engine, so unknown component types round-trip opaquely.
type ComponentType string

const (
	ComponentTypeInvalid     ComponentType = "Invalid"
	ComponentTypeAvatar      ComponentType = "AvatarData"
	ComponentTypeScriptData  ComponentType = "ScriptData"
	ComponentTypeStaticModel ComponentType = "StaticModel"
	ComponentTypeTransform   ComponentType = "Transform"
	ComponentTypeCustom      ComponentType = "Custom"
	// ComponentTypeView tags the reserved pseudo-component a
	// SpaceEntitySerializer packs an entity's own view properties (name,
	// transform, third-party ref/platform, selection) under; no concrete
	// Component value of this type ever exists.
	ComponentTypeView ComponentType = "View"
)

// ComponentUpdateType tells a remote peer what kind of change a component
// entry in a patch represents.
type ComponentUpdateType uint8

const (
	ComponentUpdateTypeUpdate ComponentUpdateType = iota
	ComponentUpdateTypeAdd
	ComponentUpdateTypeDelete
)

// AvatarPlayMode mirrors the small, closed set of playback states an
// AvatarComponent can be created with.
type AvatarPlayMode uint8

const (
	AvatarPlayModeDefault AvatarPlayMode = iota
	AvatarPlayModeAR
	AvatarPlayModeVR
)

// ThirdPartyPlatform tags an entity's association with an external avatar
// or asset platform; the engine treats the value opaquely.
type ThirdPartyPlatform uint8

const (
	ThirdPartyPlatformNone ThirdPartyPlatform = iota
	ThirdPartyPlatformReadyPlayerMe
	ThirdPartyPlatformOther
)

// SpaceEntityUpdateFlags is a bitwise flag set describing which parts of a
// SpaceEntity changed during a local or remote patch apply. Ported 1:1 from
// original_source/Library/include/CSP/Multiplayer/SpaceEntity.h
// (SpaceEntityUpdateFlags).
type SpaceEntityUpdateFlags uint32

const (
	UpdateFlagsName SpaceEntityUpdateFlags = 1 << iota
	UpdateFlagsPosition
	UpdateFlagsRotation
	UpdateFlagsScale
	UpdateFlagsComponents
	UpdateFlagsSelectionID
	UpdateFlagsThirdPartyRef
	UpdateFlagsThirdPartyPlatform
	UpdateFlagsParent
)

func (f SpaceEntityUpdateFlags) Has(flag SpaceEntityUpdateFlags) bool { return f&flag != 0 }
