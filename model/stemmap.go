package model

import (
	"fmt"
	"time"
)

// BPM bounds accepted anywhere in a stemmap document (closed range).
const (
	BPMMin = 90
	BPMMax = 190
)

// SlotCount is the fixed number of instrument-role slots.
const SlotCount = 8

// slotTypes binds each slot number 1..8 to its type name. The pairing is
// fixed: an item assigned to a slot must carry that slot's type.
var slotTypes = [SlotCount + 1]string{
	"", // slot numbers are 1-based
	"kick",
	"bass",
	"drums",
	"percussion",
	"synth",
	"pads",
	"effects",
	"vocals",
}

// SlotType returns the type name bound to a slot number, or "" if the slot
// number is outside 1..8.
func SlotType(slot int) string {
	if slot < 1 || slot > SlotCount {
		return ""
	}
	return slotTypes[slot]
}

// SlotTypes returns the slot→type table in slot order (index 0 is slot 1).
func SlotTypes() []string {
	out := make([]string, SlotCount)
	copy(out, slotTypes[1:])
	return out
}

// StemmapItem assigns one source file to a slot. Slot 0 means unassigned.
// Disabled items are retained in the document and skipped by apply, so
// re-enabling is lossless.
type StemmapItem struct {
	File     string `json:"file" yaml:"file"`
	Detected string `json:"detected,omitempty" yaml:"detected,omitempty"` // transformer's type guess
	Slot     int    `json:"slot" yaml:"slot"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	BPM      int    `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Note     string `json:"note,omitempty" yaml:"note,omitempty"`
}

// StemmapDocument is the editable 8-slot assignment document for one upload.
// The canonical copy lives on the workspace as stemmap.yaml; the database
// record mirrors it for dashboard listings.
type StemmapDocument struct {
	Title string        `json:"title" yaml:"title"`
	BPM   int           `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	Key   string        `json:"key,omitempty" yaml:"key,omitempty"`
	Items []StemmapItem `json:"items" yaml:"items"`
}

// Validate enforces the document invariants: slot numbers inside the fixed
// table, a slotted item carrying exactly its slot's bound type, and BPM
// values inside the closed [90,190] range.
func (d *StemmapDocument) Validate() error {
	if d.BPM != 0 && (d.BPM < BPMMin || d.BPM > BPMMax) {
		return fmt.Errorf("document bpm %d outside [%d,%d]", d.BPM, BPMMin, BPMMax)
	}
	for i, item := range d.Items {
		if item.File == "" {
			return fmt.Errorf("item %d: missing file reference", i)
		}
		if item.Slot != 0 {
			bound := SlotType(item.Slot)
			if bound == "" {
				return fmt.Errorf("item %d (%s): slot %d outside 1..%d", i, item.File, item.Slot, SlotCount)
			}
			if item.Type == "" {
				return fmt.Errorf("item %d (%s): slot %d requires type %q", i, item.File, item.Slot, bound)
			}
			if item.Type != bound {
				return fmt.Errorf("item %d (%s): type %q does not match slot %d type %q",
					i, item.File, item.Type, item.Slot, bound)
			}
		}
		if item.BPM != 0 && (item.BPM < BPMMin || item.BPM > BPMMax) {
			return fmt.Errorf("item %d (%s): bpm %d outside [%d,%d]", i, item.File, item.BPM, BPMMin, BPMMax)
		}
	}
	return nil
}

// EnabledItems returns the items apply will materialize.
func (d *StemmapDocument) EnabledItems() []StemmapItem {
	out := make([]StemmapItem, 0, len(d.Items))
	for _, item := range d.Items {
		if item.Enabled {
			out = append(out, item)
		}
	}
	return out
}

// StemmapRecord is the database mirror of the stemmap document.
type StemmapRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UploadID     string    `json:"uploadId" gorm:"size:36;uniqueIndex;not null"`
	StemmapYAML  string    `json:"-" gorm:"type:longtext"`
	PackTitle    string    `json:"packTitle" gorm:"size:255"`
	BPM          int       `json:"bpm"`
	KeySignature string    `json:"keySignature" gorm:"size:16"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (StemmapRecord) TableName() string {
	return "stemmaps"
}
