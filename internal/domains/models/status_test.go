package models

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type StatusSuite struct {
	suite.Suite
}

func TestStatusSuite(t *testing.T) {
	suite.Run(t, new(StatusSuite))
}

func (s *StatusSuite) TestCanTransitionTo() {
	cases := []struct {
		from    DomainStatus
		to      DomainStatus
		allowed bool
	}{
		{StatusPendingRegistration, StatusPending, true},
		{StatusPendingRegistration, StatusPendingNameservers, true},
		{StatusPending, StatusVerifying, true},
		{StatusPendingNameservers, StatusVerifying, true},
		{StatusVerifying, StatusSSLPending, true},
		{StatusVerifying, StatusActive, true},
		{StatusVerifying, StatusPending, true},
		{StatusSSLPending, StatusActive, true},
		{StatusActive, StatusDeploying, true},
		{StatusDeploying, StatusDeployed, true},
		{StatusDeployed, StatusDeploying, true},
		{StatusDeployed, StatusVerifying, true},
		{StatusError, StatusVerifying, true},
		{StatusError, StatusDeploying, true},

		{StatusPending, StatusActive, false},
		{StatusPending, StatusDeployed, false},
		{StatusActive, StatusPendingRegistration, false},
		{StatusDeployed, StatusPendingRegistration, false},
	}
	for _, tc := range cases {
		s.Equal(tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func (s *StatusSuite) TestErrorReachableFromEveryNonTerminalState() {
	for status := range allowedTransitions {
		if status == StatusDeleted || status == StatusError {
			continue
		}
		s.True(status.CanTransitionTo(StatusError), "%s -> error", status)
	}
}

func (s *StatusSuite) TestDeletedReachableFromEveryNonTerminalState() {
	for status := range allowedTransitions {
		if status == StatusDeleted {
			continue
		}
		s.True(status.CanTransitionTo(StatusDeleted), "%s -> deleted", status)
	}
}

func (s *StatusSuite) TestDeletedIsTerminal() {
	for status := range allowedTransitions {
		s.False(StatusDeleted.CanTransitionTo(status), "deleted -> %s", status)
	}
	s.True(StatusDeleted.IsTerminal())
}

func (s *StatusSuite) TestSelfTransitionRejected() {
	for status := range allowedTransitions {
		s.False(status.CanTransitionTo(status), "%s -> itself", status)
	}
}

func (s *StatusSuite) TestIsValid() {
	s.True(StatusActive.IsValid())
	s.True(StatusPendingNameservers.IsValid())
	s.False(DomainStatus("limbo").IsValid())
	s.True(SSLProvisioning.IsValid())
	s.False(SSLStatus("revoked").IsValid())
}
