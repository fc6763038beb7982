package auth

// Identity is the subject a token is minted for.
type Identity interface {
	ID() string
	Username() string
	Email() string
	Roles() []string
	Stores() []StoreAccess
}

// ProfileIdentity adapts a UserProfile into the Identity interface for token generation.
type ProfileIdentity struct {
	profile *UserProfile
}

// NewIdentityFromProfile returns an Identity adapter for the provided profile.
func NewIdentityFromProfile(profile *UserProfile) Identity {
	if profile == nil {
		return nil
	}
	return ProfileIdentity{profile: profile}
}

// ID returns the profile id.
func (p ProfileIdentity) ID() string {
	if p.profile == nil {
		return ""
	}
	return p.profile.ID
}

// Username returns the profile username.
func (p ProfileIdentity) Username() string {
	if p.profile == nil {
		return ""
	}
	return p.profile.Username
}

// Email returns the profile email address.
func (p ProfileIdentity) Email() string {
	if p.profile == nil {
		return ""
	}
	return p.profile.Email
}

// Roles returns the role names in profile order.
func (p ProfileIdentity) Roles() []string {
	return p.profile.RoleNames()
}

// Stores returns the store memberships.
func (p ProfileIdentity) Stores() []StoreAccess {
	if p.profile == nil {
		return nil
	}
	return p.profile.Clone().StoreAccess
}
