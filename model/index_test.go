package model

import "testing"

func TestRawIndexValidate(t *testing.T) {
	idx := &RawIndex{
		Files: []FileEntry{
			{ID: "f1", Name: "kick.wav"},
			{ID: "f2", Name: "kick copy.wav"},
		},
		Duplicates: []DuplicateGroup{
			{Hash: "abc123", FileIDs: []string{"f1", "f2"}},
		},
	}
	if err := idx.Validate(); err != nil {
		t.Fatalf("consistent index rejected: %v", err)
	}

	idx.Duplicates[0].FileIDs = append(idx.Duplicates[0].FileIDs, "f9")
	if err := idx.Validate(); err == nil {
		t.Fatal("expected unknown file id in duplicate group to be rejected")
	}
}

func TestRawIndexValidateEmptyID(t *testing.T) {
	idx := &RawIndex{Files: []FileEntry{{Name: "x.wav"}}}
	if err := idx.Validate(); err == nil {
		t.Fatal("expected empty file id to be rejected")
	}
}

func TestRawIndexValidateEmptyHash(t *testing.T) {
	idx := &RawIndex{
		Files:      []FileEntry{{ID: "f1", Name: "x.wav"}},
		Duplicates: []DuplicateGroup{{FileIDs: []string{"f1"}}},
	}
	if err := idx.Validate(); err == nil {
		t.Fatal("expected empty duplicate hash to be rejected")
	}
}
