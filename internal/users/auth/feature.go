// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

// Feature is an opaque capability token: the unit of authorization. A user
// may perform an action iff the corresponding Feature is in their feature
// set (plus the ownership override documented on [Can]).
type Feature string

// The closed set of capabilities recognized by the platform.
const (
	// user
	FeatureCreateUser       Feature = "create:user"
	FeatureReadUser         Feature = "read:user"
	FeatureReadUserSelf     Feature = "read:user:self"
	FeatureUpdateUser       Feature = "update:user"
	FeatureUpdateUserOthers Feature = "update:user:others"

	// session
	FeatureCreateSession Feature = "create:session"
	FeatureReadSession   Feature = "read:session"

	// activation token
	FeatureReadActivationToken Feature = "read:activation_token"

	// migration
	FeatureCreateMigration Feature = "create:migration"
	FeatureReadMigration   Feature = "read:migration"

	// status
	FeatureReadStatus    Feature = "read:status"
	FeatureReadStatusAll Feature = "read:status:all"
)

// availableFeatures is the process-wide Feature Registry. It is initialized
// once and never mutated; map membership doubles as the IsKnown check.
var availableFeatures = map[Feature]struct{}{
	FeatureCreateUser:          {},
	FeatureReadUser:            {},
	FeatureReadUserSelf:        {},
	FeatureUpdateUser:          {},
	FeatureUpdateUserOthers:    {},
	FeatureCreateSession:       {},
	FeatureReadSession:         {},
	FeatureReadActivationToken: {},
	FeatureCreateMigration:     {},
	FeatureReadMigration:       {},
	FeatureReadStatus:          {},
	FeatureReadStatusAll:       {},
}

// IsKnownFeature reports whether feature belongs to the registry. Passing an
// unknown feature anywhere in the authorization engine is a programming
// error, not user input: consumers fail with an internal error, never a
// validation error.
func IsKnownFeature(feature Feature) bool {
	_, known := availableFeatures[feature]
	return known
}

// RegisteredFeatures returns a copy of the registry contents. Order is not
// significant.
func RegisteredFeatures() []Feature {
	features := make([]Feature, 0, len(availableFeatures))
	for feature := range availableFeatures {
		features = append(features, feature)
	}
	return features
}

// # Initial grants

// registrationFeatures is granted to every freshly registered user: they can
// do nothing but redeem their activation token.
var registrationFeatures = []Feature{FeatureReadActivationToken}

// activatedFeatures replaces the feature set wholesale when an account is
// activated. Note that read:activation_token is deliberately absent:
// activation revokes its own trigger capability, which is how re-activation
// attempts are detected.
var activatedFeatures = []Feature{FeatureCreateSession, FeatureReadSession}
