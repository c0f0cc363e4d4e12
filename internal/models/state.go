package models

import (
	"time"
)

// AlertState remembers when each direction last fired. The zero time means never.
type AlertState struct {
	LastUpFiredAt   time.Time
	LastDownFiredAt time.Time
}

// LastFired returns the last firing time for the direction.
func (s AlertState) LastFired(d Direction) time.Time {
	if d == DirectionUp {
		return s.LastUpFiredAt
	}
	return s.LastDownFiredAt
}

// ConnectionState is the feed supervisor's position in its connect cycle.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
