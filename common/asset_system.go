package common

// Result is the generic callback payload for AssetSystem operations,
// matching the spec's "REST-backed ... CRUD + blob upload with result
// callbacks" description of the out-of-scope storage collaborator.
type Result struct {
	Success bool
	Err     error
	Value   any
}

// AssetSystem is the narrow boundary this engine has with the REST-backed
// asset/space/user/conversation storage system (spec.md §1 Non-goals). The
// engine never calls it; config.Config only carries the handle
// (WithAssetSystem), so a host application's HTTP client and auth stack stay
// fully out of this module.
type AssetSystem interface {
	UploadBlob(spaceID string, name string, data []byte, cb func(Result))
	GetAssetByID(spaceID, assetID string, cb func(Result))
}
