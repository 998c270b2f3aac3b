// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

type State string

const (
	StateEnabled            State = "Enabled"
	StateDisabled           State = "Disabled"
	StateStandbyOffline     State = "StandbyOffline"
	StateStandbySpare       State = "StandbySpare"
	StateInTest             State = "InTest"
	StateStarting           State = "Starting"
	StateAbsent             State = "Absent"
	StateUnavailableOffline State = "UnavailableOffline"
	StateDeferring          State = "Deferring"
	StateQuiesced           State = "Quiesced"
	StateUpdating           State = "Updating"
)

type Health string

const (
	HealthOK       Health = "OK"
	HealthWarning  Health = "Warning"
	HealthCritical Health = "Critical"
)

type Status struct {
	State        State  `json:"State,omitempty"`
	Health       Health `json:"Health,omitempty"`
	HealthRollup Health `json:"HealthRollup,omitempty"`
}

var (
	StatusEnabledOK       = Status{State: StateEnabled, Health: HealthOK, HealthRollup: HealthOK}
	StatusEnabledCritical = Status{State: StateEnabled, Health: HealthCritical, HealthRollup: HealthCritical}
	StatusOfflineCritical = Status{State: StateUnavailableOffline, Health: HealthCritical}
	StatusAbsent          = Status{State: StateAbsent}
)

// IsEnabledAndHealthy treats a missing health as OK.
func (s Status) IsEnabledAndHealthy() bool {
	return s.State == StateEnabled && (s.Health == "" || s.Health == HealthOK)
}

// IsOperational reports whether an asset still backs a composed node: the
// state is Enabled or StandbyOffline and health is not Critical.
func (s Status) IsOperational() bool {
	if s.Health == HealthCritical {
		return false
	}
	return s.State == StateEnabled || s.State == StateStandbyOffline
}
