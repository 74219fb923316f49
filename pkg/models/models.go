package models

import (
	"fmt"
	"strings"
)

// Location represents a geographic location with latitude and longitude
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

func (l Location) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", l.Lat, l.Lon)
}

// Status is the reachability state reported for a node.
type Status uint8

const (
	StatusOnline Status = iota
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts "online"/"offline" (case-insensitive) into a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return StatusOnline, nil
	case "offline":
		return StatusOffline, nil
	default:
		return 0, fmt.Errorf("unknown node status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusOnline && s != StatusOffline {
		return nil, fmt.Errorf("unknown node status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Node is a located, status-bearing network endpoint (a router).
type Node struct {
	ID       string   `json:"id,omitempty"`
	Location Location `json:"location"`
	Status   Status   `json:"status"`
	Provider string   `json:"provider,omitempty"`
}

// Offline reports whether the node is marked offline.
func (n Node) Offline() bool {
	return n.Status == StatusOffline
}

// NodeSet is an ordered collection of nodes. Locations need not be unique.
type NodeSet []Node

// CountOffline returns how many nodes in the set are offline.
func (ns NodeSet) CountOffline() int {
	count := 0
	for _, n := range ns {
		if n.Offline() {
			count++
		}
	}
	return count
}

// AffectedZone is the location of a node whose neighborhood failed the
// offline-ratio check, together with the counts behind the decision.
type AffectedZone struct {
	Location     Location `json:"location"`
	NodeIndex    int      `json:"node_index"`
	NodeID       string   `json:"node_id,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Neighbors    int      `json:"neighbors"`
	Offline      int      `json:"offline"`
	OfflineRatio float64  `json:"offline_ratio"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft Location
	TopRight   Location
}

// Contains reports whether loc lies inside the box, edges included.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Lat >= b.BottomLeft.Lat && loc.Lat <= b.TopRight.Lat &&
		loc.Lon >= b.BottomLeft.Lon && loc.Lon <= b.TopRight.Lon
}
