package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriberEligible(t *testing.T) {
	s := NewSubscriber("alice", []string{"viewer"}, []Permission{PermissionViewMonitoring}, []Group{GroupHTTP})

	assert.True(t, s.Eligible(TargetKindHTTP))
	assert.False(t, s.Eligible(TargetKindSQL))
}

func TestSubscriberGlobalGroupSeesEverything(t *testing.T) {
	s := NewSubscriber("bob", nil, []Permission{PermissionViewMonitoring}, []Group{GroupGlobal})

	assert.True(t, s.Eligible(TargetKindHTTP))
	assert.True(t, s.Eligible(TargetKindSQL))
}

func TestSubscriberWithoutPermissionIsNeverEligible(t *testing.T) {
	s := NewSubscriber("mallory", nil, nil, []Group{GroupGlobal})

	assert.False(t, s.Eligible(TargetKindHTTP))
}
