package modelloader

import "testing"

func TestValidate_HuggingFace_RequiresOrgSlashName(t *testing.T) {
	s := HuggingFaceSource("not-a-valid-repo", "")
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for a repo without org/name shape")
	}

	s = HuggingFaceSource("org/name", "")
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error for a valid repo: %v", err)
	}
}

func TestValidate_RejectsNonGGUFFilename(t *testing.T) {
	s := HuggingFaceSource("org/name", "model.bin")
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for a non-.gguf filename")
	}
}

func TestValidate_Local_RequiresFolder(t *testing.T) {
	s := LocalSource("", "")
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for a local source with no folder")
	}

	s = LocalSource("/models", "")
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error for a valid local source: %v", err)
	}
}

func TestMultiPartGroup_ExpandsAllParts(t *testing.T) {
	files, ok := multiPartGroup("llama-00002-of-00003.gguf")
	if !ok {
		t.Fatal("expected a multi-part filename to match")
	}
	want := []string{
		"llama-00001-of-00003.gguf",
		"llama-00002-of-00003.gguf",
		"llama-00003-of-00003.gguf",
	}
	if len(files) != len(want) {
		t.Fatalf("got %d parts, want %d", len(files), len(want))
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("part %d: got %q, want %q", i, files[i], want[i])
		}
	}
}

func TestMultiPartGroup_SingleFileIsNotMultiPart(t *testing.T) {
	if _, ok := multiPartGroup("model.gguf"); ok {
		t.Fatal("expected a plain filename not to match the multi-part pattern")
	}
}

func TestAutoDetectFilename_PrefersBF16(t *testing.T) {
	candidates := []string{"model-q4.gguf", "model-bf16.gguf", "README.md"}
	got, ok := autoDetectFilename(candidates)
	if !ok {
		t.Fatal("expected a .gguf candidate to be detected")
	}
	if got != "model-bf16.gguf" {
		t.Fatalf("got %q, want the bf16 variant", got)
	}
}

func TestAutoDetectFilename_FallsBackToFirstGGUF(t *testing.T) {
	candidates := []string{"README.md", "model-q4.gguf", "model-q8.gguf"}
	got, ok := autoDetectFilename(candidates)
	if !ok {
		t.Fatal("expected a .gguf candidate to be detected")
	}
	if got != "model-q4.gguf" {
		t.Fatalf("got %q, want the first .gguf candidate", got)
	}
}

func TestAutoDetectFilename_NoneFound(t *testing.T) {
	if _, ok := autoDetectFilename([]string{"README.md", "LICENSE"}); ok {
		t.Fatal("expected no detection when no .gguf candidate exists")
	}
}
