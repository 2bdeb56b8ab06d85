package domain

import "github.com/google/uuid"

// Permission is a capability a Subscriber may hold.
type Permission string

// PermissionViewMonitoring is required to receive any classified Result (§4.8a).
const PermissionViewMonitoring Permission = "view_monitoring"

// Group scopes which probe kinds (or the global group) a Subscriber receives.
type Group string

const (
	GroupHTTP     Group = "http"
	GroupDatabase Group = "database"
	GroupGlobal   Group = "global"
)

// Subscriber is a capability record for one live connection: not persisted,
// created on accept and destroyed on disconnect (§3).
type Subscriber struct {
	ID          uuid.UUID
	Principal   string
	Roles       map[string]struct{}
	Permissions map[Permission]struct{}
	Groups      map[Group]struct{}
}

// NewSubscriber registers a capability record for a freshly accepted connection.
func NewSubscriber(principal string, roles []string, permissions []Permission, groups []Group) *Subscriber {
	s := &Subscriber{
		ID:          uuid.New(),
		Principal:   principal,
		Roles:       make(map[string]struct{}, len(roles)),
		Permissions: make(map[Permission]struct{}, len(permissions)),
		Groups:      make(map[Group]struct{}, len(groups)),
	}
	for _, r := range roles {
		s.Roles[r] = struct{}{}
	}
	for _, p := range permissions {
		s.Permissions[p] = struct{}{}
	}
	for _, g := range groups {
		s.Groups[g] = struct{}{}
	}
	return s
}

// HasPermission reports whether the subscriber holds p.
func (s *Subscriber) HasPermission(p Permission) bool {
	_, ok := s.Permissions[p]
	return ok
}

// InGroup reports whether the subscriber joined g or the global group.
func (s *Subscriber) InGroup(g Group) bool {
	if _, ok := s.Groups[GroupGlobal]; ok {
		return true
	}
	_, ok := s.Groups[g]
	return ok
}

// groupForKind maps a probe kind to the fan-out group that receives its events.
func groupForKind(kind TargetKind) Group {
	switch kind {
	case TargetKindHTTP:
		return GroupHTTP
	case TargetKindSQL:
		return GroupDatabase
	default:
		return GroupGlobal
	}
}

// Eligible implements the §4.8 delivery predicate (a) and (b); buffer-full
// drop (c) is a transport concern handled by the fan-out publisher.
func (s *Subscriber) Eligible(kind TargetKind) bool {
	return s.HasPermission(PermissionViewMonitoring) && s.InGroup(groupForKind(kind))
}
